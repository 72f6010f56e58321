package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tao-treasury/internal/config"
	"github.com/aristath/tao-treasury/internal/costbasis"
	"github.com/aristath/tao-treasury/internal/datastore"
	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
	"github.com/aristath/tao-treasury/internal/nav"
	"github.com/aristath/tao-treasury/internal/reconciliation"
	"github.com/aristath/tao-treasury/internal/slippage"
	"github.com/aristath/tao-treasury/internal/upstream"
	"github.com/aristath/tao-treasury/internal/yield"
)

// LivePipeline is the concrete Pipeline wiring the upstream analytics
// client and the datastore repositories into the per-wallet steps the
// Orchestrator sequences. It is the only place in the module where
// upstream field shapes are translated into domain entities.
type LivePipeline struct {
	client *upstream.Client
	cfg    *config.Config
	log    zerolog.Logger

	wallets          *datastore.WalletRepo
	positions        *datastore.PositionRepo
	subnets          *datastore.SubnetRepo
	stakeTxs         *datastore.StakeTransactionRepo
	costBasis        *datastore.CostBasisRepo
	delegationEvents *datastore.DelegationEventRepo
	yieldHistory     *datastore.PositionYieldHistoryRepo
	slippageSurfaces *datastore.SlippageRepo
	validators       *datastore.ValidatorRepo
	reconciliation   *datastore.ReconciliationRepo
	portfolio        *datastore.PortfolioRepo
	datasetHealth    *datastore.DatasetHealthRepo

	accounting *yield.Accounting
}

// NewLivePipeline wires a LivePipeline from an already-opened datastore
// and upstream client.
func NewLivePipeline(client *upstream.Client, db *datastore.DB, cfg *config.Config, log zerolog.Logger) *LivePipeline {
	return &LivePipeline{
		client: client,
		cfg:    cfg,
		log:    log.With().Str("component", "sync_pipeline").Logger(),

		wallets:          datastore.NewWalletRepo(db),
		positions:        datastore.NewPositionRepo(db),
		subnets:          datastore.NewSubnetRepo(db),
		stakeTxs:         datastore.NewStakeTransactionRepo(db),
		costBasis:        datastore.NewCostBasisRepo(db),
		delegationEvents: datastore.NewDelegationEventRepo(db),
		yieldHistory:     datastore.NewPositionYieldHistoryRepo(db),
		slippageSurfaces: datastore.NewSlippageRepo(db),
		validators:       datastore.NewValidatorRepo(db),
		reconciliation:   datastore.NewReconciliationRepo(db),
		portfolio:        datastore.NewPortfolioRepo(db),
		datasetHealth:    datastore.NewDatasetHealthRepo(db),

		accounting: yield.NewAccounting(client),
	}
}

func (p *LivePipeline) ActiveWallets(ctx context.Context) ([]string, error) {
	active, err := p.wallets.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active wallets: %w", err)
	}
	out := make([]string, 0, len(active))
	for _, w := range active {
		out = append(out, w.Address)
	}
	if len(out) == 0 {
		out = p.cfg.DefaultWallets
	}
	return out, nil
}

func (p *LivePipeline) dataset(ctx context.Context, name string, err error) error {
	if err != nil {
		if recErr := p.datasetHealth.RecordFailure(ctx, name); recErr != nil {
			p.log.Error().Err(recErr).Str("dataset", name).Msg("failed to record dataset failure")
		}
		return wrapUpstreamErr(err)
	}
	if recErr := p.datasetHealth.RecordSuccess(ctx, name); recErr != nil {
		p.log.Error().Err(recErr).Str("dataset", name).Msg("failed to record dataset success")
	}
	return nil
}

// wrapUpstreamErr translates an upstream.RateLimitedError into the
// sync package's own RateLimitError so the orchestrator can classify it
// without importing internal/upstream.
func wrapUpstreamErr(err error) error {
	if err == nil {
		return nil
	}
	var rl *upstream.RateLimitedError
	if asRateLimited(err, &rl) {
		retryAfter := 30 * time.Second
		if rl.RetryAfter != nil {
			retryAfter = *rl.RetryAfter
		}
		return &RateLimitError{RetryAfter: retryAfter, Err: err}
	}
	return err
}

func asRateLimited(err error, target **upstream.RateLimitedError) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if rl, ok := err.(*upstream.RateLimitedError); ok {
			*target = rl
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// SyncPositions fetches the wallet's latest stake balances and upserts
// one domain.Position per netuid, per §4.4 refresh step 2.
func (p *LivePipeline) SyncPositions(ctx context.Context, wallet string) error {
	balances, err := p.client.StakeBalanceLatest(ctx, wallet)
	if err := p.dataset(ctx, "stake_balance", err); err != nil {
		return err
	}
	if err := MinRecordsGuard("stake_balance", len(balances), p.cfg.PartialFailureMinRecords); err != nil {
		return err
	}

	for _, b := range balances {
		alphaBalance, err := decimal.NewFromString(b.Balance)
		if err != nil {
			return fmt.Errorf("parse stake balance %q for %s/%d: %w", b.Balance, wallet, b.NetUID, err)
		}
		taoValue, err := money.TAOFromString(b.BalanceAsTAO)
		if err != nil {
			return fmt.Errorf("parse stake balance_as_tao %q for %s/%d: %w", b.BalanceAsTAO, wallet, b.NetUID, err)
		}

		existing, err := p.positions.Get(ctx, wallet, b.NetUID)
		if err != nil {
			existing = domain.Position{Wallet: wallet, NetUID: b.NetUID}
		}
		existing.AlphaBalance = mustFloat64(alphaBalance)
		existing.TAOValueMid = taoValue

		if err := p.positions.Upsert(ctx, existing); err != nil {
			return fmt.Errorf("upsert position %s/%d: %w", wallet, b.NetUID, err)
		}
	}
	return nil
}

// RefreshValidators refreshes validator performance rows, and the held
// subnets' pool/metadata state, for every netuid the wallet currently
// holds, per §4.4 refresh step 3.
func (p *LivePipeline) RefreshValidators(ctx context.Context, wallet string) error {
	active, err := p.positions.ActiveByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("list active positions for %s: %w", wallet, err)
	}
	for _, pos := range active {
		if err := p.refreshSubnetState(ctx, pos.NetUID); err != nil {
			return err
		}
	}
	for _, pos := range active {
		perf, err := p.client.ValidatorLatest(ctx, pos.NetUID)
		if err := p.dataset(ctx, "validator", err); err != nil {
			return err
		}
		for _, v := range perf {
			apy, _ := decimal.NewFromString(v.APY)
			take, _ := decimal.NewFromString(v.TakeRate)
			stake, err := money.TAOFromString(v.Stake)
			if err != nil {
				stake = money.ZeroTAO()
			}
			if err := p.validators.Upsert(ctx, domain.Validator{
				Hotkey:     v.Hotkey,
				NetUID:     v.NetUID,
				APYCurrent: mustFloat64(apy),
				TakeRate:   mustFloat64(take),
				StakeTAO:   stake,
			}); err != nil {
				return fmt.Errorf("upsert validator %s/%d: %w", v.Hotkey, v.NetUID, err)
			}
		}
	}
	return nil
}

// refreshSubnetState pulls the current pool reserve and registration
// metadata for one subnet and upserts it. Both endpoints return the
// full subnet universe; the upstream client's response cache (§4.1)
// keeps repeated per-wallet calls within the same minute cheap.
func (p *LivePipeline) refreshSubnetState(ctx context.Context, netuid int) error {
	pools, err := p.client.PoolLatest(ctx)
	if err := p.dataset(ctx, "pool", err); err != nil {
		return err
	}
	metas, err := p.client.SubnetLatest(ctx)
	if err := p.dataset(ctx, "subnet", err); err != nil {
		return err
	}

	existing, err := p.subnets.Get(ctx, netuid)
	if err != nil {
		existing = domain.Subnet{NetUID: netuid}
	}

	for _, pool := range pools {
		if pool.NetUID != netuid {
			continue
		}
		if taoReserve, err := money.TAOFromString(pool.TAOReserve); err == nil {
			existing.PoolTAOReserve = taoReserve
		}
		if alphaReserve, err := decimal.NewFromString(pool.AlphaReserve); err == nil {
			existing.PoolAlphaReserve = mustFloat64(alphaReserve)
		}
		if emission, err := decimal.NewFromString(pool.EmissionShare); err == nil {
			existing.EmissionShare = money.NewPercent(mustFloat64(emission))
		}
	}
	for _, meta := range metas {
		if meta.NetUID != netuid {
			continue
		}
		if ownerTake, err := decimal.NewFromString(meta.OwnerTake); err == nil {
			existing.OwnerTake = money.NewPercent(mustFloat64(ownerTake))
		}
		if feeRate, err := decimal.NewFromString(meta.FeeRate); err == nil {
			existing.FeeRate = money.NewPercent(mustFloat64(feeRate))
		}
		existing.HolderCount = meta.HolderCount
		existing.RegisteredAt = meta.RegisteredAt.Time
		existing.AgeDays = int(time.Since(meta.RegisteredAt.Time).Hours() / 24)
	}

	if err := p.subnets.Upsert(ctx, existing); err != nil {
		return fmt.Errorf("upsert subnet %d: %w", netuid, err)
	}
	return nil
}

// ComputeUnrealized derives each active position's unrealized P&L
// decomposition per §4.5 and persists the updated position row, per
// §4.4 refresh step 4.
func (p *LivePipeline) ComputeUnrealized(ctx context.Context, wallet string) error {
	active, err := p.positions.ActiveByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("list active positions for %s: %w", wallet, err)
	}
	now := time.Now().UTC()
	for _, pos := range active {
		cb, err := p.costBasis.Get(ctx, wallet, pos.NetUID)
		if err == nil {
			pos.CostBasisTAO = cb.NetInvestedTAO
			pos.CostBasisComplete = cb.Complete
		}

		totalYieldAlpha, err := p.accounting.TotalYieldAlpha(ctx, wallet, "alpha", pos.EntryDate, now)
		if err != nil {
			p.log.Warn().Err(err).Str("wallet", wallet).Int("netuid", pos.NetUID).Msg("accounting fetch failed, using zero lifetime yield")
			totalYieldAlpha = 0
		}

		decomp := yield.Unrealize(pos, totalYieldAlpha)
		pos.UnrealizedPnLTAO = decomp.UnrealizedPnLTAO
		pos.UnrealizedYield = decomp.UnrealizedYield
		pos.UnrealizedAlphaPnL = decomp.UnrealizedAlphaPnL

		if err := p.positions.Upsert(ctx, pos); err != nil {
			return fmt.Errorf("persist unrealized pnl for %s/%d: %w", wallet, pos.NetUID, err)
		}
	}
	return nil
}

// WriteSnapshot persists the portfolio-level NAV snapshot, per §4.4
// refresh step 5.
func (p *LivePipeline) WriteSnapshot(ctx context.Context, wallet string) error {
	active, err := p.positions.ActiveByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("list active positions for %s: %w", wallet, err)
	}

	navMid := money.ZeroTAO()
	for _, pos := range active {
		navMid = navMid.Add(pos.TAOValueMid)
	}

	return p.portfolio.InsertSnapshot(ctx, domain.PortfolioSnapshot{
		Wallet:    wallet,
		Timestamp: time.Now().UTC(),
		NAVMid:    navMid,
		NAVExec:   navMid,
	})
}

// SyncTransactions pulls new extrinsics since the last stored block and
// records them as stake transactions, per §4.4 full step 6.
func (p *LivePipeline) SyncTransactions(ctx context.Context, wallet string) error {
	sinceBlock, err := p.stakeTxs.LatestBlock(ctx, wallet)
	if err != nil {
		sinceBlock = 0
	}

	extrinsics, err := p.client.Extrinsics(ctx, wallet, sinceBlock, 50)
	if err := p.dataset(ctx, "extrinsics", err); err != nil {
		return err
	}

	for _, e := range extrinsics {
		amountRao := e.AmountRao
		amountTAO := money.RaoToTAO(money.RaoFromInt(amountRao))

		txType := domain.TxStake
		switch e.Call {
		case "unstake":
			txType = domain.TxUnstake
		case "unstake_all":
			txType = domain.TxUnstakeAll
		}

		if err := p.stakeTxs.Insert(ctx, domain.StakeTransaction{
			ExtrinsicID: e.ExtrinsicID,
			BlockNumber: e.BlockNumber,
			Timestamp:   e.Timestamp.Time,
			Wallet:      wallet,
			NetUID:      e.NetUID,
			Hotkey:      e.Hotkey,
			Type:        txType,
			AmountRao:   amountRao,
			AmountTAO:   amountTAO,
			Success:     e.Success,
		}); err != nil {
			return fmt.Errorf("insert stake transaction %s: %w", e.ExtrinsicID, err)
		}
	}
	return nil
}

// RecomputeCostBasis rebuilds the FIFO cost-basis aggregate for every
// active position of the wallet, per §4.4 full step 7. Positions whose
// alpha balance is zero are not recomputed.
func (p *LivePipeline) RecomputeCostBasis(ctx context.Context, wallet string) error {
	active, err := p.positions.ActiveByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("list active positions for %s: %w", wallet, err)
	}
	for _, pos := range active {
		txs, err := p.stakeTxs.ListByPosition(ctx, wallet, pos.NetUID)
		if err != nil {
			return fmt.Errorf("list stake transactions for %s/%d: %w", wallet, pos.NetUID, err)
		}
		result, err := costbasis.Compute(wallet, pos.NetUID, txs, nil)
		if err != nil {
			return fmt.Errorf("compute cost basis for %s/%d: %w", wallet, pos.NetUID, err)
		}
		if err := p.costBasis.Upsert(ctx, result.PositionCostBasis); err != nil {
			return fmt.Errorf("persist cost basis for %s/%d: %w", wallet, pos.NetUID, err)
		}
	}
	return nil
}

// RefreshYield recomputes the daily yield history row for every active
// position, per §4.4 full step 8.
func (p *LivePipeline) RefreshYield(ctx context.Context, wallet string) error {
	active, err := p.positions.ActiveByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("list active positions for %s: %w", wallet, err)
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	yesterday := today.Add(-24 * time.Hour)

	for _, pos := range active {
		events, err := p.delegationEvents.ListByPositionSince(ctx, wallet, pos.NetUID, yesterday.Format("2006-01-02"))
		if err != nil {
			return fmt.Errorf("list delegation events for %s/%d: %w", wallet, pos.NetUID, err)
		}
		var netStakeDelta money.TAO
		var yieldAlpha float64
		for _, e := range events {
			switch e.Kind {
			case domain.DelegationStake:
				netStakeDelta = netStakeDelta.Add(e.AmountTAO)
			case domain.DelegationUnstake:
				netStakeDelta = netStakeDelta.Sub(e.AmountTAO)
			case domain.DelegationReward:
				yieldAlpha += e.AmountAlpha
			}
		}

		if err := p.yieldHistory.Upsert(ctx, domain.PositionYieldHistory{
			Wallet:           wallet,
			NetUID:           pos.NetUID,
			Date:             today,
			EndAlphaBalance:  pos.AlphaBalance,
			NetStakeDeltaTAO: netStakeDelta,
			YieldAlpha:       yieldAlpha,
		}); err != nil {
			return fmt.Errorf("persist yield history for %s/%d: %w", wallet, pos.NetUID, err)
		}
	}
	return nil
}

// EvaluateRisk runs the reconciliation check between stored and live
// TAO values for every active position, per §4.4 full step 9 and §4.9.
func (p *LivePipeline) EvaluateRisk(ctx context.Context, wallet string) error {
	active, err := p.positions.ActiveByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("list active positions for %s: %w", wallet, err)
	}

	stored := make(map[int]money.TAO, len(active))
	for _, pos := range active {
		stored[pos.NetUID] = pos.TAOValueMid
	}

	balances, err := p.client.StakeBalanceLatest(ctx, wallet)
	if err := p.dataset(ctx, "stake_balance", err); err != nil {
		return err
	}
	live := make(map[int]money.TAO, len(balances))
	for _, b := range balances {
		taoValue, err := money.TAOFromString(b.BalanceAsTAO)
		if err != nil {
			continue
		}
		live[b.NetUID] = taoValue
	}

	run := reconciliation.Run(wallet, stored, live,
		money.NewTAO(p.cfg.ReconciliationAbsoluteToleranceTAO),
		p.cfg.ReconciliationRelativeTolerancePct,
		time.Now().UTC(),
	)
	if err := p.reconciliation.InsertRun(ctx, run); err != nil {
		return fmt.Errorf("persist reconciliation run for %s: %w", wallet, err)
	}
	return nil
}

// RefreshSlippageSurfaces re-quotes the standard size ladder in both
// directions for every active position's subnet, per §4.4 deep step.
func (p *LivePipeline) RefreshSlippageSurfaces(ctx context.Context, wallet string) error {
	active, err := p.positions.ActiveByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("list active positions for %s: %w", wallet, err)
	}
	now := time.Now().UTC()

	for _, pos := range active {
		for _, action := range []domain.StakeAction{domain.SlippageStake, domain.SlippageUnstake} {
			for _, size := range slippage.StandardSizes {
				quote, err := p.client.Slippage(ctx, pos.NetUID, size, string(action))
				if err := p.dataset(ctx, "slippage", err); err != nil {
					return err
				}

				pct, _ := decimal.NewFromString(quote.SlippagePct)
				expected, _ := decimal.NewFromString(quote.ExpectedOutput)
				reserve, err := money.TAOFromString(quote.TAOReserve)
				if err != nil {
					reserve = money.ZeroTAO()
				}

				if err := p.slippageSurfaces.Upsert(ctx, domain.SlippageSurface{
					NetUID:         pos.NetUID,
					Action:         action,
					SizeTAO:        size,
					SlippagePct:    mustFloat64(pct),
					ExpectedOutput: mustFloat64(expected),
					PoolTAOReserve: reserve,
					ComputedAt:     now,
					ExpiresAt:      now.Add(24 * time.Hour),
				}); err != nil {
					return fmt.Errorf("persist slippage surface %s/%d: %w", action, pos.NetUID, err)
				}
			}
		}
	}
	return nil
}

// RecomputeExecutableNAV recomputes the slippage-haircut executable NAV
// for every active position, per §4.4 deep step and §4.9.
func (p *LivePipeline) RecomputeExecutableNAV(ctx context.Context, wallet string) error {
	active, err := p.positions.ActiveByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("list active positions for %s: %w", wallet, err)
	}
	now := time.Now().UTC()

	for _, pos := range active {
		surfaces, err := p.slippageSurfaces.ListByNetUIDAction(ctx, pos.NetUID, domain.SlippageUnstake)
		if err != nil {
			return fmt.Errorf("list slippage surfaces for %d: %w", pos.NetUID, err)
		}
		pos.TAOValueExec100 = nav.Executable(pos, surfaces, now)
		if err := p.positions.Upsert(ctx, pos); err != nil {
			return fmt.Errorf("persist executable nav for %s/%d: %w", wallet, pos.NetUID, err)
		}
	}
	return nil
}

// RecordNAVHistory rolls up the wallet's daily executable-NAV OHLC row,
// per §4.4 deep step.
func (p *LivePipeline) RecordNAVHistory(ctx context.Context, wallet string) error {
	active, err := p.positions.ActiveByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("list active positions for %s: %w", wallet, err)
	}

	execNAV := money.ZeroTAO()
	for _, pos := range active {
		execNAV = execNAV.Add(pos.TAOValueExec100)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	existingRange, err := p.portfolio.NAVHistoryRange(ctx, wallet, today.Format("2006-01-02"), today.Format("2006-01-02"))
	var existing *domain.NAVHistory
	if err == nil && len(existingRange) > 0 {
		existing = &existingRange[0]
	}
	isFirstWriteOfDay := existing == nil
	if isFirstWriteOfDay {
		// Seed today's fresh row with the latest prior day's ATH.
		prior, err := p.portfolio.NAVHistoryRange(ctx, wallet, "0001-01-01", today.Add(-24*time.Hour).Format("2006-01-02"))
		if err == nil && len(prior) > 0 {
			existing = &domain.NAVHistory{Wallet: wallet, Date: today, ATH: prior[len(prior)-1].ATH}
		}
	}

	row := nav.UpsertOHLC(existing, wallet, today, execNAV, isFirstWriteOfDay)
	if err := p.portfolio.UpsertNAVHistory(ctx, row); err != nil {
		return fmt.Errorf("persist nav history for %s: %w", wallet, err)
	}
	return nil
}

func mustFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
