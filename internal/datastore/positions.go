package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

// PositionRepo persists current positions and their history snapshots.
type PositionRepo struct{ db *DB }

func NewPositionRepo(db *DB) *PositionRepo { return &PositionRepo{db: db} }

// Upsert writes the current-state row for one (wallet, netuid) position.
// Zero-balance positions are kept, never deleted, so realized-pnl history
// survives a full exit.
func (r *PositionRepo) Upsert(ctx context.Context, p domain.Position) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		return upsertPositionTx(tx, p)
	})
}

func upsertPositionTx(tx *sql.Tx, p domain.Position) error {
	mid, _ := p.TAOValueMid.Value()
	exec50, _ := p.TAOValueExec50.Value()
	exec100, _ := p.TAOValueExec100.Value()
	entryPrice, _ := p.EntryPrice.Value()
	costTAO, _ := p.CostBasisTAO.Value()
	costUSD, _ := p.CostBasisUSD.Value()
	realized, _ := p.RealizedPnLTAO.Value()
	unrealized, _ := p.UnrealizedPnLTAO.Value()
	unrealizedYield, _ := p.UnrealizedYield.Value()

	_, err := tx.Exec(`
		INSERT INTO positions (
			wallet, netuid, alpha_balance, alpha_purchased, cost_basis_complete,
			tao_value_mid, tao_value_exec_50, tao_value_exec_100,
			entry_price, entry_date, cost_basis_tao, cost_basis_usd,
			realized_pnl_tao, unrealized_pnl_tao, unrealized_yield, unrealized_alpha_pnl,
			recommended_action
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet, netuid) DO UPDATE SET
			alpha_balance = excluded.alpha_balance,
			alpha_purchased = excluded.alpha_purchased,
			cost_basis_complete = excluded.cost_basis_complete,
			tao_value_mid = excluded.tao_value_mid,
			tao_value_exec_50 = excluded.tao_value_exec_50,
			tao_value_exec_100 = excluded.tao_value_exec_100,
			entry_price = excluded.entry_price,
			entry_date = excluded.entry_date,
			cost_basis_tao = excluded.cost_basis_tao,
			cost_basis_usd = excluded.cost_basis_usd,
			realized_pnl_tao = excluded.realized_pnl_tao,
			unrealized_pnl_tao = excluded.unrealized_pnl_tao,
			unrealized_yield = excluded.unrealized_yield,
			unrealized_alpha_pnl = excluded.unrealized_alpha_pnl,
			recommended_action = excluded.recommended_action`,
		p.Wallet, p.NetUID, p.AlphaBalance, p.AlphaPurchased, p.CostBasisComplete,
		mid, exec50, exec100,
		entryPrice, formatTime(p.EntryDate), costTAO, costUSD,
		realized, unrealized, unrealizedYield, p.UnrealizedAlphaPnL,
		string(p.RecommendedAction))
	if err != nil {
		return fmt.Errorf("upsert position %s/%d: %w", p.Wallet, p.NetUID, err)
	}
	return nil
}

// Get returns one position, or sql.ErrNoRows wrapped if absent.
func (r *PositionRepo) Get(ctx context.Context, wallet string, netuid int) (domain.Position, error) {
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT wallet, netuid, alpha_balance, alpha_purchased, cost_basis_complete,
			tao_value_mid, tao_value_exec_50, tao_value_exec_100,
			entry_price, entry_date, cost_basis_tao, cost_basis_usd,
			realized_pnl_tao, unrealized_pnl_tao, unrealized_yield, unrealized_alpha_pnl,
			recommended_action
		FROM positions WHERE wallet = ? AND netuid = ?`, wallet, netuid)
	return scanPosition(row)
}

// ListByWallet returns every position (active or closed) for a wallet.
func (r *PositionRepo) ListByWallet(ctx context.Context, wallet string) ([]domain.Position, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT wallet, netuid, alpha_balance, alpha_purchased, cost_basis_complete,
			tao_value_mid, tao_value_exec_50, tao_value_exec_100,
			entry_price, entry_date, cost_basis_tao, cost_basis_usd,
			realized_pnl_tao, unrealized_pnl_tao, unrealized_yield, unrealized_alpha_pnl,
			recommended_action
		FROM positions WHERE wallet = ? ORDER BY netuid`, wallet)
	if err != nil {
		return nil, fmt.Errorf("list positions for %s: %w", wallet, err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ActiveByWallet returns only positions with a non-zero alpha balance.
func (r *PositionRepo) ActiveByWallet(ctx context.Context, wallet string) ([]domain.Position, error) {
	all, err := r.ListByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	var out []domain.Position
	for _, p := range all {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	return out, nil
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var p domain.Position
	var mid, exec50, exec100, entryPrice, costTAO, costUSD, realized, unrealized, unrealizedYield string
	var entryDate string

	err := row.Scan(
		&p.Wallet, &p.NetUID, &p.AlphaBalance, &p.AlphaPurchased, &p.CostBasisComplete,
		&mid, &exec50, &exec100,
		&entryPrice, &entryDate, &costTAO, &costUSD,
		&realized, &unrealized, &unrealizedYield, &p.UnrealizedAlphaPnL,
		&p.RecommendedAction)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Position{}, err
		}
		return domain.Position{}, fmt.Errorf("scan position: %w", err)
	}

	for _, pair := range []struct {
		dst *money.TAO
		src string
	}{
		{&p.TAOValueMid, mid}, {&p.TAOValueExec50, exec50}, {&p.TAOValueExec100, exec100},
		{&p.EntryPrice, entryPrice}, {&p.CostBasisTAO, costTAO},
		{&p.RealizedPnLTAO, realized}, {&p.UnrealizedPnLTAO, unrealized},
	} {
		v, err := money.TAOFromString(pair.src)
		if err != nil {
			return domain.Position{}, err
		}
		*pair.dst = v
	}
	p.CostBasisUSD, err = money.USDFromString(costUSD)
	if err != nil {
		return domain.Position{}, err
	}
	p.UnrealizedYield, err = money.PercentFromString(unrealizedYield)
	if err != nil {
		return domain.Position{}, err
	}
	p.EntryDate = parseTime(entryDate)
	return p, nil
}
