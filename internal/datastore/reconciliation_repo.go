package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

// ReconciliationRepo persists stored-vs-live reconciliation runs (§4.9).
type ReconciliationRepo struct{ db *DB }

func NewReconciliationRepo(db *DB) *ReconciliationRepo { return &ReconciliationRepo{db: db} }

func (r *ReconciliationRepo) InsertRun(ctx context.Context, run domain.ReconciliationRun) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		checksJSON, err := json.Marshal(run.Checks)
		if err != nil {
			return fmt.Errorf("marshal reconciliation checks %s: %w", run.RunID, err)
		}
		absTol, _ := run.AbsoluteToleranceTAO.Value()
		_, err = tx.Exec(`
			INSERT INTO reconciliation_runs (
				run_id, wallet, created_at, total_checks, passed_checks, failed_checks,
				absolute_tolerance_tao, relative_tolerance_pct, checks_json, passed, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Wallet, formatTime(run.CreatedAt), run.TotalChecks, run.PassedChecks, run.FailedChecks,
			absTol, run.RelativeTolerancePct, string(checksJSON), run.Passed, run.Error)
		if err != nil {
			return fmt.Errorf("insert reconciliation run %s: %w", run.RunID, err)
		}
		return nil
	})
}

// LatestRun returns the most recent reconciliation run for a wallet, used
// by the trust gate (§4.10).
func (r *ReconciliationRepo) LatestRun(ctx context.Context, wallet string) (domain.ReconciliationRun, error) {
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT run_id, wallet, created_at, total_checks, passed_checks, failed_checks,
			absolute_tolerance_tao, relative_tolerance_pct, checks_json, passed, error
		FROM reconciliation_runs WHERE wallet = ? ORDER BY created_at DESC LIMIT 1`, wallet)

	var run domain.ReconciliationRun
	var createdAt, absTol, checksJSON string
	err := row.Scan(&run.RunID, &run.Wallet, &createdAt, &run.TotalChecks, &run.PassedChecks, &run.FailedChecks,
		&absTol, &run.RelativeTolerancePct, &checksJSON, &run.Passed, &run.Error)
	if err != nil {
		return domain.ReconciliationRun{}, fmt.Errorf("latest reconciliation run %s: %w", wallet, err)
	}
	run.CreatedAt = parseTime(createdAt)
	run.AbsoluteToleranceTAO, err = money.TAOFromString(absTol)
	if err != nil {
		return domain.ReconciliationRun{}, err
	}
	if err := json.Unmarshal([]byte(checksJSON), &run.Checks); err != nil {
		return domain.ReconciliationRun{}, fmt.Errorf("unmarshal reconciliation checks %s: %w", run.RunID, err)
	}
	return run, nil
}

// ValidatorRepo persists per-(hotkey, netuid) validator performance rows.
type ValidatorRepo struct{ db *DB }

func NewValidatorRepo(db *DB) *ValidatorRepo { return &ValidatorRepo{db: db} }

func (r *ValidatorRepo) Upsert(ctx context.Context, v domain.Validator) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stake, _ := v.StakeTAO.Value()
		flagsJSON, err := json.Marshal(v.QualityFlags)
		if err != nil {
			return fmt.Errorf("marshal validator flags %s: %w", v.Hotkey, err)
		}
		_, err = tx.Exec(`
			INSERT INTO validators (hotkey, netuid, apy_current, apy_7d, apy_30d, take_rate, stake_tao, quality_flags)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(hotkey, netuid) DO UPDATE SET
				apy_current = excluded.apy_current, apy_7d = excluded.apy_7d, apy_30d = excluded.apy_30d,
				take_rate = excluded.take_rate, stake_tao = excluded.stake_tao, quality_flags = excluded.quality_flags`,
			v.Hotkey, v.NetUID, v.APYCurrent, v.APY7d, v.APY30d, v.TakeRate, stake, string(flagsJSON))
		if err != nil {
			return fmt.Errorf("upsert validator %s/%d: %w", v.Hotkey, v.NetUID, err)
		}
		return nil
	})
}

func (r *ValidatorRepo) ListByNetUID(ctx context.Context, netuid int) ([]domain.Validator, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT hotkey, netuid, apy_current, apy_7d, apy_30d, take_rate, stake_tao, quality_flags
		FROM validators WHERE netuid = ? ORDER BY stake_tao DESC`, netuid)
	if err != nil {
		return nil, fmt.Errorf("list validators for %d: %w", netuid, err)
	}
	defer rows.Close()

	var out []domain.Validator
	for rows.Next() {
		var v domain.Validator
		var stake, flagsJSON string
		if err := rows.Scan(&v.Hotkey, &v.NetUID, &v.APYCurrent, &v.APY7d, &v.APY30d, &v.TakeRate, &stake, &flagsJSON); err != nil {
			return nil, fmt.Errorf("scan validator: %w", err)
		}
		v.StakeTAO, err = money.TAOFromString(stake)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(flagsJSON), &v.QualityFlags); err != nil {
			return nil, fmt.Errorf("unmarshal validator flags %s: %w", v.Hotkey, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
