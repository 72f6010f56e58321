package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

// PortfolioRepo persists per-wallet portfolio snapshots and the daily
// NAV/OHLC history table (§4.6).
type PortfolioRepo struct{ db *DB }

func NewPortfolioRepo(db *DB) *PortfolioRepo { return &PortfolioRepo{db: db} }

func (r *PortfolioRepo) InsertSnapshot(ctx context.Context, s domain.PortfolioSnapshot) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		navMid, _ := s.NAVMid.Value()
		navExec, _ := s.NAVExec.Value()
		turnover, _ := s.TurnoverTAO.Value()
		_, err := tx.Exec(`
			INSERT INTO portfolio_snapshots (
				wallet, timestamp, nav_mid, nav_exec, root_allocation_pct, sleeve_allocation_pct,
				buffer_allocation_pct, turnover_tao, regime, regime_reason
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(wallet, timestamp) DO UPDATE SET
				nav_mid = excluded.nav_mid, nav_exec = excluded.nav_exec,
				root_allocation_pct = excluded.root_allocation_pct,
				sleeve_allocation_pct = excluded.sleeve_allocation_pct,
				buffer_allocation_pct = excluded.buffer_allocation_pct,
				turnover_tao = excluded.turnover_tao,
				regime = excluded.regime, regime_reason = excluded.regime_reason`,
			s.Wallet, formatTime(s.Timestamp), navMid, navExec, s.RootAllocationPct, s.SleeveAllocationPct,
			s.BufferAllocationPct, turnover, string(s.Regime), s.RegimeReason)
		if err != nil {
			return fmt.Errorf("insert portfolio snapshot %s@%s: %w", s.Wallet, s.Timestamp, err)
		}
		return nil
	})
}

// LatestSnapshot returns the most recent portfolio snapshot for a wallet.
func (r *PortfolioRepo) LatestSnapshot(ctx context.Context, wallet string) (domain.PortfolioSnapshot, error) {
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT wallet, timestamp, nav_mid, nav_exec, root_allocation_pct, sleeve_allocation_pct,
			buffer_allocation_pct, turnover_tao, regime, regime_reason
		FROM portfolio_snapshots WHERE wallet = ? ORDER BY timestamp DESC LIMIT 1`, wallet)

	var s domain.PortfolioSnapshot
	var timestamp, navMid, navExec, turnover, regime string
	err := row.Scan(&s.Wallet, &timestamp, &navMid, &navExec, &s.RootAllocationPct, &s.SleeveAllocationPct,
		&s.BufferAllocationPct, &turnover, &regime, &s.RegimeReason)
	if err != nil {
		return domain.PortfolioSnapshot{}, fmt.Errorf("latest portfolio snapshot %s: %w", wallet, err)
	}
	s.Timestamp = parseTime(timestamp)
	s.Regime = domain.PortfolioRegime(regime)
	s.NAVMid, err = money.TAOFromString(navMid)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	s.NAVExec, err = money.TAOFromString(navExec)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	s.TurnoverTAO, err = money.TAOFromString(turnover)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	return s, nil
}

// UpsertNAVHistory writes (or OHLC-merges via the caller's pre-computed
// values) one daily NAV row.
func (r *PortfolioRepo) UpsertNAVHistory(ctx context.Context, h domain.NAVHistory) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		open, _ := h.Open.Value()
		high, _ := h.High.Value()
		low, _ := h.Low.Value()
		closeV, _ := h.Close.Value()
		ath, _ := h.ATH.Value()
		dailyReturn, _ := h.DailyReturnTAO.Value()

		_, err := tx.Exec(`
			INSERT INTO nav_history (wallet, date, open, high, low, close, ath, daily_return_tao, daily_return_pct, drawdown_pct)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(wallet, date) DO UPDATE SET
				high = excluded.high, low = excluded.low, close = excluded.close, ath = excluded.ath,
				daily_return_tao = excluded.daily_return_tao, daily_return_pct = excluded.daily_return_pct,
				drawdown_pct = excluded.drawdown_pct`,
			h.Wallet, formatTime(h.Date), open, high, low, closeV, ath, dailyReturn, h.DailyReturnPct, h.DrawdownPct)
		if err != nil {
			return fmt.Errorf("upsert nav history %s@%s: %w", h.Wallet, h.Date, err)
		}
		return nil
	})
}

// NAVHistoryRange returns daily rows between two dates, inclusive,
// ascending by date — the series internal/nav and internal/strategy walk.
func (r *PortfolioRepo) NAVHistoryRange(ctx context.Context, wallet, fromDate, toDate string) ([]domain.NAVHistory, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT wallet, date, open, high, low, close, ath, daily_return_tao, daily_return_pct, drawdown_pct
		FROM nav_history WHERE wallet = ? AND substr(date, 1, 10) >= ? AND substr(date, 1, 10) <= ? ORDER BY date ASC`, wallet, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("nav history range %s: %w", wallet, err)
	}
	defer rows.Close()

	var out []domain.NAVHistory
	for rows.Next() {
		var h domain.NAVHistory
		var date, open, high, low, closeV, ath, dailyReturn string
		if err := rows.Scan(&h.Wallet, &date, &open, &high, &low, &closeV, &ath, &dailyReturn, &h.DailyReturnPct, &h.DrawdownPct); err != nil {
			return nil, fmt.Errorf("scan nav history: %w", err)
		}
		h.Date = parseTime(date)
		for _, pair := range []struct {
			dst *money.TAO
			src string
		}{{&h.Open, open}, {&h.High, high}, {&h.Low, low}, {&h.Close, closeV}, {&h.ATH, ath}, {&h.DailyReturnTAO, dailyReturn}} {
			v, err := money.TAOFromString(pair.src)
			if err != nil {
				return nil, err
			}
			*pair.dst = v
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
