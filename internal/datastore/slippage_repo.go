package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

// SlippageRepo persists the per-(netuid, action, size) slippage surface
// cache described in §4.6.
type SlippageRepo struct{ db *DB }

func NewSlippageRepo(db *DB) *SlippageRepo { return &SlippageRepo{db: db} }

func (r *SlippageRepo) Upsert(ctx context.Context, s domain.SlippageSurface) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		poolTAO, _ := s.PoolTAOReserve.Value()
		_, err := tx.Exec(`
			INSERT INTO slippage_surfaces (
				netuid, action, size_tao, slippage_pct, expected_output,
				pool_tao_reserve, pool_alpha_reserve, computed_at, expires_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(netuid, action, size_tao) DO UPDATE SET
				slippage_pct = excluded.slippage_pct,
				expected_output = excluded.expected_output,
				pool_tao_reserve = excluded.pool_tao_reserve,
				pool_alpha_reserve = excluded.pool_alpha_reserve,
				computed_at = excluded.computed_at,
				expires_at = excluded.expires_at`,
			s.NetUID, string(s.Action), s.SizeTAO, s.SlippagePct, s.ExpectedOutput,
			poolTAO, s.PoolAlphaReserve, formatTime(s.ComputedAt), formatTime(s.ExpiresAt))
		if err != nil {
			return fmt.Errorf("upsert slippage surface %d/%s/%v: %w", s.NetUID, s.Action, s.SizeTAO, err)
		}
		return nil
	})
}

// ListByNetUIDAction returns every cached size point for a (netuid,
// action) pair, ordered by size ascending — the shape the monotone
// interpolation in internal/slippage expects.
func (r *SlippageRepo) ListByNetUIDAction(ctx context.Context, netuid int, action domain.StakeAction) ([]domain.SlippageSurface, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT netuid, action, size_tao, slippage_pct, expected_output, pool_tao_reserve, pool_alpha_reserve, computed_at, expires_at
		FROM slippage_surfaces WHERE netuid = ? AND action = ? ORDER BY size_tao ASC`, netuid, string(action))
	if err != nil {
		return nil, fmt.Errorf("list slippage surfaces %d/%s: %w", netuid, action, err)
	}
	defer rows.Close()

	var out []domain.SlippageSurface
	for rows.Next() {
		var s domain.SlippageSurface
		var actionStr, poolTAO, computedAt, expiresAt string
		if err := rows.Scan(&s.NetUID, &actionStr, &s.SizeTAO, &s.SlippagePct, &s.ExpectedOutput, &poolTAO, &s.PoolAlphaReserve, &computedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan slippage surface: %w", err)
		}
		s.Action = domain.StakeAction(actionStr)
		s.PoolTAOReserve, err = money.TAOFromString(poolTAO)
		if err != nil {
			return nil, err
		}
		s.ComputedAt = parseTime(computedAt)
		s.ExpiresAt = parseTime(expiresAt)
		out = append(out, s)
	}
	return out, rows.Err()
}
