package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

// CostBasisRepo persists the derived FIFO-lot aggregate per position.
type CostBasisRepo struct{ db *DB }

func NewCostBasisRepo(db *DB) *CostBasisRepo { return &CostBasisRepo{db: db} }

func (r *CostBasisRepo) Upsert(ctx context.Context, cb domain.PositionCostBasis) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		staked, _ := cb.TotalStakedTAO.Value()
		unstaked, _ := cb.TotalUnstakedTAO.Value()
		netInvested, _ := cb.NetInvestedTAO.Value()
		avgEntry, _ := cb.WeightedAvgEntryPrice.Value()
		realizedPnL, _ := cb.RealizedPnLTAO.Value()
		realizedYield, _ := cb.RealizedYieldTAO.Value()
		fees, _ := cb.TotalFeesTAO.Value()
		stakedUSD, _ := cb.TotalStakedUSD.Value()
		unstakedUSD, _ := cb.TotalUnstakedUSD.Value()
		netInvestedUSD, _ := cb.NetInvestedUSD.Value()
		realizedPnLUSD, _ := cb.RealizedPnLUSD.Value()

		_, err := tx.Exec(`
			INSERT INTO position_cost_basis (
				wallet, netuid, total_staked_tao, total_unstaked_tao, net_invested_tao,
				weighted_avg_entry_price, realized_pnl_tao, realized_yield_tao, realized_yield_alpha,
				total_fees_tao, total_staked_usd, total_unstaked_usd, net_invested_usd, realized_pnl_usd, complete
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(wallet, netuid) DO UPDATE SET
				total_staked_tao = excluded.total_staked_tao,
				total_unstaked_tao = excluded.total_unstaked_tao,
				net_invested_tao = excluded.net_invested_tao,
				weighted_avg_entry_price = excluded.weighted_avg_entry_price,
				realized_pnl_tao = excluded.realized_pnl_tao,
				realized_yield_tao = excluded.realized_yield_tao,
				realized_yield_alpha = excluded.realized_yield_alpha,
				total_fees_tao = excluded.total_fees_tao,
				total_staked_usd = excluded.total_staked_usd,
				total_unstaked_usd = excluded.total_unstaked_usd,
				net_invested_usd = excluded.net_invested_usd,
				realized_pnl_usd = excluded.realized_pnl_usd,
				complete = excluded.complete`,
			cb.Wallet, cb.NetUID, staked, unstaked, netInvested,
			avgEntry, realizedPnL, realizedYield, cb.RealizedYieldAlpha,
			fees, stakedUSD, unstakedUSD, netInvestedUSD, realizedPnLUSD, cb.Complete)
		if err != nil {
			return fmt.Errorf("upsert cost basis %s/%d: %w", cb.Wallet, cb.NetUID, err)
		}
		return nil
	})
}

func (r *CostBasisRepo) Get(ctx context.Context, wallet string, netuid int) (domain.PositionCostBasis, error) {
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT wallet, netuid, total_staked_tao, total_unstaked_tao, net_invested_tao,
			weighted_avg_entry_price, realized_pnl_tao, realized_yield_tao, realized_yield_alpha,
			total_fees_tao, total_staked_usd, total_unstaked_usd, net_invested_usd, realized_pnl_usd, complete
		FROM position_cost_basis WHERE wallet = ? AND netuid = ?`, wallet, netuid)

	var cb domain.PositionCostBasis
	var staked, unstaked, netInvested, avgEntry, realizedPnL, realizedYield, fees string
	var stakedUSD, unstakedUSD, netInvestedUSD, realizedPnLUSD string

	err := row.Scan(&cb.Wallet, &cb.NetUID, &staked, &unstaked, &netInvested,
		&avgEntry, &realizedPnL, &realizedYield, &cb.RealizedYieldAlpha,
		&fees, &stakedUSD, &unstakedUSD, &netInvestedUSD, &realizedPnLUSD, &cb.Complete)
	if err != nil {
		return domain.PositionCostBasis{}, fmt.Errorf("get cost basis %s/%d: %w", wallet, netuid, err)
	}

	taoFields := []struct {
		dst *money.TAO
		src string
	}{
		{&cb.TotalStakedTAO, staked}, {&cb.TotalUnstakedTAO, unstaked}, {&cb.NetInvestedTAO, netInvested},
		{&cb.WeightedAvgEntryPrice, avgEntry}, {&cb.RealizedPnLTAO, realizedPnL}, {&cb.RealizedYieldTAO, realizedYield},
		{&cb.TotalFeesTAO, fees},
	}
	for _, f := range taoFields {
		v, err := money.TAOFromString(f.src)
		if err != nil {
			return domain.PositionCostBasis{}, err
		}
		*f.dst = v
	}
	usdFields := []struct {
		dst *money.USD
		src string
	}{
		{&cb.TotalStakedUSD, stakedUSD}, {&cb.TotalUnstakedUSD, unstakedUSD},
		{&cb.NetInvestedUSD, netInvestedUSD}, {&cb.RealizedPnLUSD, realizedPnLUSD},
	}
	for _, f := range usdFields {
		v, err := money.USDFromString(f.src)
		if err != nil {
			return domain.PositionCostBasis{}, err
		}
		*f.dst = v
	}
	return cb, nil
}
