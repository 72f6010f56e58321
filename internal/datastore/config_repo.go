package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aristath/tao-treasury/internal/config"
)

// ViabilityConfigRepo persists the operator-editable viability weights and
// thresholds row referenced by §4.8 and config.Config.ApplyActiveViabilityConfig.
type ViabilityConfigRepo struct{ db *DB }

func NewViabilityConfigRepo(db *DB) *ViabilityConfigRepo { return &ViabilityConfigRepo{db: db} }

// SetActive replaces the single active row (the partial unique index
// enforces at most one) with weights/thresholds marshaled to JSON.
func (r *ViabilityConfigRepo) SetActive(ctx context.Context, weights config.ViabilityWeights, thresholds config.ViabilityThresholds) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		weightsJSON, err := json.Marshal(weights)
		if err != nil {
			return fmt.Errorf("marshal viability weights: %w", err)
		}
		thresholdsJSON, err := json.Marshal(thresholds)
		if err != nil {
			return fmt.Errorf("marshal viability thresholds: %w", err)
		}
		if _, err := tx.Exec(`UPDATE viability_config SET active = 0 WHERE active = 1`); err != nil {
			return fmt.Errorf("deactivate prior viability config: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO viability_config (active, weights_json, thresholds_json, created_at)
			VALUES (1, ?, ?, datetime('now'))`, string(weightsJSON), string(thresholdsJSON)); err != nil {
			return fmt.Errorf("insert active viability config: %w", err)
		}
		return nil
	})
}

// ActiveRow returns the active config row, or ok=false if none has ever
// been set (the process falls back to config.Load's env-sourced defaults).
func (r *ViabilityConfigRepo) ActiveRow(ctx context.Context) (config.ActiveViabilityConfigRow, bool, error) {
	var weightsJSON, thresholdsJSON string
	row := r.db.conn.QueryRowContext(ctx, `SELECT weights_json, thresholds_json FROM viability_config WHERE active = 1 LIMIT 1`)
	err := row.Scan(&weightsJSON, &thresholdsJSON)
	if err == sql.ErrNoRows {
		return config.ActiveViabilityConfigRow{}, false, nil
	}
	if err != nil {
		return config.ActiveViabilityConfigRow{}, false, fmt.Errorf("active viability config: %w", err)
	}

	var out config.ActiveViabilityConfigRow
	if err := json.Unmarshal([]byte(weightsJSON), &out.Weights); err != nil {
		return config.ActiveViabilityConfigRow{}, false, fmt.Errorf("unmarshal viability weights: %w", err)
	}
	if err := json.Unmarshal([]byte(thresholdsJSON), &out.Thresholds); err != nil {
		return config.ActiveViabilityConfigRow{}, false, fmt.Errorf("unmarshal viability thresholds: %w", err)
	}
	return out, true, nil
}

// SyncRunRepo records sync-tier run history (§4.4) for observability and
// for the partial-failure-to-trust-gate path (§4.10).
type SyncRunRepo struct{ db *DB }

func NewSyncRunRepo(db *DB) *SyncRunRepo { return &SyncRunRepo{db: db} }

func (r *SyncRunRepo) Start(ctx context.Context, tier string) (int64, error) {
	res, err := r.db.conn.ExecContext(ctx, `INSERT INTO sync_runs (tier, started_at) VALUES (?, datetime('now'))`, tier)
	if err != nil {
		return 0, fmt.Errorf("start sync run %s: %w", tier, err)
	}
	return res.LastInsertId()
}

func (r *SyncRunRepo) Finish(ctx context.Context, id int64, success bool, errs []string) error {
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal sync run errors: %w", err)
	}
	_, err = r.db.conn.ExecContext(ctx,
		`UPDATE sync_runs SET finished_at = datetime('now'), success = ?, errors_json = ? WHERE id = ?`,
		success, string(errsJSON), id)
	if err != nil {
		return fmt.Errorf("finish sync run %d: %w", id, err)
	}
	return nil
}

// DatasetHealthRepo tracks per-dataset consecutive failure counters and
// last-success timestamps, the raw material for the trust gate's
// staleness checks (§4.10).
type DatasetHealthRepo struct{ db *DB }

func NewDatasetHealthRepo(db *DB) *DatasetHealthRepo { return &DatasetHealthRepo{db: db} }

func (r *DatasetHealthRepo) RecordSuccess(ctx context.Context, dataset string) error {
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO dataset_health (dataset, consecutive_failures, last_success_at, ever_succeeded)
		VALUES (?, 0, datetime('now'), 1)
		ON CONFLICT(dataset) DO UPDATE SET consecutive_failures = 0, last_success_at = datetime('now'), ever_succeeded = 1`,
		dataset)
	if err != nil {
		return fmt.Errorf("record dataset success %s: %w", dataset, err)
	}
	return nil
}

func (r *DatasetHealthRepo) RecordFailure(ctx context.Context, dataset string) error {
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO dataset_health (dataset, consecutive_failures, last_success_at, ever_succeeded)
		VALUES (?, 1, '', 0)
		ON CONFLICT(dataset) DO UPDATE SET consecutive_failures = consecutive_failures + 1`,
		dataset)
	if err != nil {
		return fmt.Errorf("record dataset failure %s: %w", dataset, err)
	}
	return nil
}

type DatasetHealth struct {
	Dataset             string
	ConsecutiveFailures int
	LastSuccessAt       string
	EverSucceeded       bool
}

func (r *DatasetHealthRepo) Get(ctx context.Context, dataset string) (DatasetHealth, error) {
	var h DatasetHealth
	row := r.db.conn.QueryRowContext(ctx, `SELECT dataset, consecutive_failures, last_success_at, ever_succeeded FROM dataset_health WHERE dataset = ?`, dataset)
	err := row.Scan(&h.Dataset, &h.ConsecutiveFailures, &h.LastSuccessAt, &h.EverSucceeded)
	if err == sql.ErrNoRows {
		return DatasetHealth{Dataset: dataset}, nil
	}
	if err != nil {
		return DatasetHealth{}, fmt.Errorf("dataset health %s: %w", dataset, err)
	}
	return h, nil
}
