package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

// AdvisoryRepo persists the advisory surfaces: trade recommendations,
// alerts, and the decision log. None of these are ever consumed by a
// write path — per §1 this whole system is advisory-only.
type AdvisoryRepo struct{ db *DB }

func NewAdvisoryRepo(db *DB) *AdvisoryRepo { return &AdvisoryRepo{db: db} }

func (r *AdvisoryRepo) InsertRecommendation(ctx context.Context, t domain.TradeRecommendation) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		size, _ := t.SizeTAO.Value()
		_, err := tx.Exec(`
			INSERT INTO trade_recommendations (id, created_at, wallet, netuid, action, size_tao, confidence, reason, snapshot_ref)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, formatTime(t.CreatedAt), t.Wallet, t.NetUID, string(t.Action), size, t.Confidence, t.Reason, t.SnapshotRef)
		if err != nil {
			return fmt.Errorf("insert trade recommendation %s: %w", t.ID, err)
		}
		return nil
	})
}

// RecentRecommendations returns the most recent N recommendations for a
// wallet, newest first — used to avoid re-issuing the same advisory
// before the prior one has been reviewed.
func (r *AdvisoryRepo) RecentRecommendations(ctx context.Context, wallet string, limit int) ([]domain.TradeRecommendation, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, created_at, wallet, netuid, action, size_tao, confidence, reason, snapshot_ref
		FROM trade_recommendations WHERE wallet = ? ORDER BY created_at DESC LIMIT ?`, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("recent recommendations %s: %w", wallet, err)
	}
	defer rows.Close()

	var out []domain.TradeRecommendation
	for rows.Next() {
		var t domain.TradeRecommendation
		var createdAt, size string
		if err := rows.Scan(&t.ID, &createdAt, &t.Wallet, &t.NetUID, &t.Action, &size, &t.Confidence, &t.Reason, &t.SnapshotRef); err != nil {
			return nil, fmt.Errorf("scan trade recommendation: %w", err)
		}
		t.CreatedAt = parseTime(createdAt)
		t.SizeTAO, err = money.TAOFromString(size)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *AdvisoryRepo) InsertAlert(ctx context.Context, a domain.Alert) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO alerts (id, created_at, wallet, netuid, severity, message, snapshot_ref)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, formatTime(a.CreatedAt), a.Wallet, a.NetUID, string(a.Severity), a.Message, a.SnapshotRef)
		if err != nil {
			return fmt.Errorf("insert alert %s: %w", a.ID, err)
		}
		return nil
	})
}

func (r *AdvisoryRepo) InsertDecision(ctx context.Context, d domain.DecisionLog) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO decision_log (id, created_at, wallet, netuid, decision, reason, snapshot_ref)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.ID, formatTime(d.CreatedAt), d.Wallet, d.NetUID, d.Decision, d.Reason, d.SnapshotRef)
		if err != nil {
			return fmt.Errorf("insert decision log %s: %w", d.ID, err)
		}
		return nil
	})
}

// SignalRunRepo persists the named-signal evidence trail (§2's "Signals"
// component), used by the dashboard/report surface and by tests asserting
// a signal fired with the evidence it claims.
type SignalRunRepo struct{ db *DB }

func NewSignalRunRepo(db *DB) *SignalRunRepo { return &SignalRunRepo{db: db} }

func (r *SignalRunRepo) Insert(ctx context.Context, s domain.SignalRun) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		evidence, err := json.Marshal(s.Evidence)
		if err != nil {
			return fmt.Errorf("marshal signal evidence %s: %w", s.ID, err)
		}
		guardrails, err := json.Marshal(s.Guardrails)
		if err != nil {
			return fmt.Errorf("marshal signal guardrails %s: %w", s.ID, err)
		}
		_, err = tx.Exec(`
			INSERT INTO signal_runs (id, name, created_at, evidence_json, guardrails_json, passed)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.ID, s.Name, formatTime(s.CreatedAt), string(evidence), string(guardrails), s.Passed)
		if err != nil {
			return fmt.Errorf("insert signal run %s: %w", s.ID, err)
		}
		return nil
	})
}
