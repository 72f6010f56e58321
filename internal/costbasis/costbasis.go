// Package costbasis computes FIFO lot-based cost basis and realized P&L
// from an ordered stream of stake transactions, per §4.5.
package costbasis

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

// timeMax bounds the final pushDueCredits call so any emission credits
// dated after the last transaction are still folded into the open lots.
var timeMax = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// lot is one open stake position slice, FIFO-consumed on unstake.
type lot struct {
	alpha           float64
	priceAtEntry    money.TAO
	isEmissionAlpha bool // alpha credited by emission rather than purchased
}

// Result is the derived aggregate for one (wallet, netuid) position, plus
// the still-open lot breakdown the unrealized-decomposition step needs.
type Result struct {
	domain.PositionCostBasis
	OpenAlpha         float64
	OpenEmissionAlpha float64
}

// EmissionCredit represents alpha added to the position other than by a
// purchase — a reward or delegation credit (domain.DelegationEvent with
// Kind == DelegationReward) — pushed onto the FIFO queue ahead of
// purchased lots of the same or later timestamp so it is consumed first
// on a subsequent unstake, per §4.5's tie-break rule.
type EmissionCredit struct {
	Timestamp time.Time
	Alpha     float64
}

// Compute replays txs (any order; re-sorted here by block then
// timestamp) through a FIFO lot queue and returns the derived cost-basis
// aggregate. Transactions with Success == false are ignored: a failed
// extrinsic moved no alpha. emissionCredits are merged into the replay so
// unstakes draw down emission-origin alpha before purchased lots.
func Compute(wallet string, netuid int, txs []domain.StakeTransaction, emissionCredits []EmissionCredit) (Result, error) {
	sorted := make([]domain.StakeTransaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].BlockNumber != sorted[j].BlockNumber {
			return sorted[i].BlockNumber < sorted[j].BlockNumber
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	credits := make([]EmissionCredit, len(emissionCredits))
	copy(credits, emissionCredits)
	sort.SliceStable(credits, func(i, j int) bool { return credits[i].Timestamp.Before(credits[j].Timestamp) })

	var lots []lot
	var totalStaked, totalUnstaked, netInvested money.TAO
	var realizedPnL, realizedYield, totalFees money.TAO
	var realizedYieldAlpha float64
	complete := true
	creditIdx := 0

	// pushDueCredits inserts emission lots whose timestamp is on or
	// before `asOf` at the FRONT of the queue, so they are FIFO-consumed
	// ahead of purchased lots per the tie-break rule.
	pushDueCredits := func(asOf time.Time) {
		for creditIdx < len(credits) && !credits[creditIdx].Timestamp.After(asOf) {
			lots = append([]lot{{alpha: credits[creditIdx].Alpha, isEmissionAlpha: true}}, lots...)
			creditIdx++
		}
	}

	for _, tx := range sorted {
		if !tx.Success {
			continue
		}
		totalFees = totalFees.Add(tx.FeeTAO)
		pushDueCredits(tx.Timestamp)

		switch tx.Type {
		case domain.TxStake:
			totalStaked = totalStaked.Add(tx.AmountTAO)
			netInvested = netInvested.Add(tx.AmountTAO)

			if tx.LimitPrice == nil || tx.LimitPrice.IsZero() {
				// Deferred: no price to size the lot, flagged incomplete
				// until a reconciling snapshot backfills it.
				complete = false
				continue
			}
			alphaDec, ok := tx.AmountTAO.Div(*tx.LimitPrice)
			if !ok {
				complete = false
				continue
			}
			alphaF, _ := alphaDec.Float64()
			lots = append(lots, lot{alpha: alphaF, priceAtEntry: *tx.LimitPrice})

		case domain.TxUnstake, domain.TxUnstakeAll:
			totalUnstaked = totalUnstaked.Add(tx.AmountTAO)
			netInvested = netInvested.Sub(tx.AmountTAO)

			var remaining float64
			if tx.AlphaAmount != nil {
				remaining = *tx.AlphaAmount
			} else {
				complete = false
				continue
			}
			if remaining <= 0 {
				continue
			}

			avgUnstakePrice, ok := tx.AmountTAO.Div(money.NewTAO(remaining))
			if !ok {
				continue
			}
			avgUnstakeTAO := money.TAOFromDecimal(avgUnstakePrice)

			for remaining > 1e-12 && len(lots) > 0 {
				head := &lots[0]
				consumeAlpha := remaining
				if consumeAlpha > head.alpha {
					consumeAlpha = head.alpha
				}
				fraction := decimal.NewFromFloat(consumeAlpha)
				costSlice := head.priceAtEntry.Mul(fraction)
				proceedsSlice := avgUnstakeTAO.Mul(fraction)
				gain := proceedsSlice.Sub(costSlice)

				if head.isEmissionAlpha {
					realizedYield = realizedYield.Add(gain)
					realizedYieldAlpha += consumeAlpha
				} else {
					realizedPnL = realizedPnL.Add(gain)
				}

				head.alpha -= consumeAlpha
				remaining -= consumeAlpha
				if head.alpha <= 1e-12 {
					lots = lots[1:]
				}
			}
		}
	}
	pushDueCredits(timeMax)

	var openAlpha, openEmissionAlpha float64
	var weightedNumerator money.TAO
	for _, l := range lots {
		openAlpha += l.alpha
		if l.isEmissionAlpha {
			openEmissionAlpha += l.alpha
		} else {
			weightedNumerator = weightedNumerator.Add(l.priceAtEntry.Mul(decimal.NewFromFloat(l.alpha)))
		}
	}
	var avgEntry money.TAO
	if openAlpha > 0 {
		if d, ok := weightedNumerator.Div(money.NewTAO(openAlpha)); ok {
			avgEntry = money.TAOFromDecimal(d)
		}
	}

	return Result{
		PositionCostBasis: domain.PositionCostBasis{
			Wallet:                wallet,
			NetUID:                netuid,
			TotalStakedTAO:        totalStaked,
			TotalUnstakedTAO:      totalUnstaked,
			NetInvestedTAO:        netInvested,
			WeightedAvgEntryPrice: avgEntry,
			RealizedPnLTAO:        realizedPnL,
			RealizedYieldTAO:      realizedYield,
			RealizedYieldAlpha:    realizedYieldAlpha,
			TotalFeesTAO:          totalFees,
			Complete:              complete,
		},
		OpenAlpha:         openAlpha,
		OpenEmissionAlpha: openEmissionAlpha,
	}, nil
}
