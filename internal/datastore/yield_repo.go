package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

// DelegationEventRepo persists the ground-truth reward/stake/unstake
// event stream the yield package sums over (§4.5).
type DelegationEventRepo struct{ db *DB }

func NewDelegationEventRepo(db *DB) *DelegationEventRepo { return &DelegationEventRepo{db: db} }

func (r *DelegationEventRepo) Insert(ctx context.Context, e domain.DelegationEvent) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		amount, _ := e.AmountTAO.Value()
		_, err := tx.Exec(`
			INSERT INTO delegation_events (event_id, timestamp, wallet, netuid, hotkey, kind, amount_tao, amount_alpha)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.EventID, formatTime(e.Timestamp), e.Wallet, e.NetUID, e.Hotkey, string(e.Kind), amount, e.AmountAlpha)
		if err != nil {
			if IsUniqueConstraintViolation(err) {
				return nil
			}
			return fmt.Errorf("insert delegation event %s: %w", e.EventID, err)
		}
		return nil
	})
}

// ListByPositionSince returns events for a position at or after fromDate
// (RFC3339), ascending, the window the earnings-attribution formula in
// §4.5 walks.
func (r *DelegationEventRepo) ListByPositionSince(ctx context.Context, wallet string, netuid int, fromDate string) ([]domain.DelegationEvent, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT event_id, timestamp, wallet, netuid, hotkey, kind, amount_tao, amount_alpha
		FROM delegation_events WHERE wallet = ? AND netuid = ? AND timestamp >= ? ORDER BY timestamp ASC`,
		wallet, netuid, fromDate)
	if err != nil {
		return nil, fmt.Errorf("list delegation events %s/%d: %w", wallet, netuid, err)
	}
	defer rows.Close()

	var out []domain.DelegationEvent
	for rows.Next() {
		var e domain.DelegationEvent
		var timestamp, amount, kind string
		if err := rows.Scan(&e.EventID, &timestamp, &e.Wallet, &e.NetUID, &e.Hotkey, &kind, &amount, &e.AmountAlpha); err != nil {
			return nil, fmt.Errorf("scan delegation event: %w", err)
		}
		e.Timestamp = parseTime(timestamp)
		e.Kind = domain.DelegationEventKind(kind)
		e.AmountTAO, err = money.TAOFromString(amount)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PositionYieldHistoryRepo persists the daily yield decomposition rows.
type PositionYieldHistoryRepo struct{ db *DB }

func NewPositionYieldHistoryRepo(db *DB) *PositionYieldHistoryRepo {
	return &PositionYieldHistoryRepo{db: db}
}

func (r *PositionYieldHistoryRepo) Upsert(ctx context.Context, h domain.PositionYieldHistory) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		netDelta, _ := h.NetStakeDeltaTAO.Value()
		yieldTAO, _ := h.YieldTAO.Value()
		_, err := tx.Exec(`
			INSERT INTO position_yield_history (
				wallet, netuid, date, start_alpha_balance, end_alpha_balance,
				net_stake_delta_tao, yield_alpha, yield_tao, daily_apy
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(wallet, netuid, date) DO UPDATE SET
				start_alpha_balance = excluded.start_alpha_balance,
				end_alpha_balance = excluded.end_alpha_balance,
				net_stake_delta_tao = excluded.net_stake_delta_tao,
				yield_alpha = excluded.yield_alpha,
				yield_tao = excluded.yield_tao,
				daily_apy = excluded.daily_apy`,
			h.Wallet, h.NetUID, formatTime(h.Date), h.StartAlphaBalance, h.EndAlphaBalance,
			netDelta, h.YieldAlpha, yieldTAO, h.DailyAPY)
		if err != nil {
			return fmt.Errorf("upsert position yield history %s/%d@%s: %w", h.Wallet, h.NetUID, h.Date, err)
		}
		return nil
	})
}

// Range returns daily yield rows between two dates, inclusive, ascending.
func (r *PositionYieldHistoryRepo) Range(ctx context.Context, wallet string, netuid int, fromDate, toDate string) ([]domain.PositionYieldHistory, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT wallet, netuid, date, start_alpha_balance, end_alpha_balance, net_stake_delta_tao, yield_alpha, yield_tao, daily_apy
		FROM position_yield_history WHERE wallet = ? AND netuid = ? AND date >= ? AND date <= ? ORDER BY date ASC`,
		wallet, netuid, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("yield history range %s/%d: %w", wallet, netuid, err)
	}
	defer rows.Close()

	var out []domain.PositionYieldHistory
	for rows.Next() {
		var h domain.PositionYieldHistory
		var date, netDelta, yieldTAO string
		if err := rows.Scan(&h.Wallet, &h.NetUID, &date, &h.StartAlphaBalance, &h.EndAlphaBalance, &netDelta, &h.YieldAlpha, &yieldTAO, &h.DailyAPY); err != nil {
			return nil, fmt.Errorf("scan position yield history: %w", err)
		}
		h.Date = parseTime(date)
		h.NetStakeDeltaTAO, err = money.TAOFromString(netDelta)
		if err != nil {
			return nil, err
		}
		h.YieldTAO, err = money.TAOFromString(yieldTAO)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
