// Package yield sums the authoritative upstream accounting-endpoint
// income stream and decomposes unrealized P&L per §4.5.
package yield

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
	"github.com/aristath/tao-treasury/internal/upstream"
)

func decimalFromFloat(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

const queryWindow = 365 * 24 * time.Hour // upstream's 12-month chunk limit, minus a day of slack

// Accounting fetches a wallet's taxable-income rows, chunked to the
// upstream's 12-month query window, merging the results.
type Accounting struct {
	client *upstream.Client
}

func NewAccounting(client *upstream.Client) *Accounting { return &Accounting{client: client} }

// TotalYieldAlpha sums daily_income across [from, to] for one (coldkey,
// token/hotkey) pair, chunking requests no wider than the upstream's
// query-window limit.
func (a *Accounting) TotalYieldAlpha(ctx context.Context, coldkey, token string, from, to time.Time) (float64, error) {
	var total float64
	cursor := from
	for cursor.Before(to) {
		chunkEnd := cursor.Add(queryWindow)
		if chunkEnd.After(to) {
			chunkEnd = to
		}
		rows, err := a.client.AccountingTax(ctx, coldkey, token, cursor, chunkEnd)
		if err != nil {
			return 0, fmt.Errorf("fetch accounting chunk [%s,%s] for %s: %w", cursor, chunkEnd, coldkey, err)
		}
		for _, row := range rows {
			income, err := decimal.NewFromString(row.DailyIncome)
			if err != nil {
				return 0, fmt.Errorf("parse daily_income %q: %w", row.DailyIncome, err)
			}
			total += mustFloat(income)
		}
		cursor = chunkEnd
	}
	return total, nil
}

// Decomposition is the §4.5 unrealized breakdown for one live position.
type Decomposition struct {
	UnrealizedPnLTAO   money.TAO
	UnrealizedYield    money.Percent // fraction of tao_value_mid, not a raw TAO amount — see Unrealize
	UnrealizedYieldTAO money.TAO
	UnrealizedAlphaPnL float64
}

// Unrealize computes the §4.5 decomposition. totalYieldAlpha is the
// position's lifetime sum from TotalYieldAlpha. The identity
// unrealized_pnl = unrealized_yield_tao + unrealized_alpha_pnl holds by
// construction.
func Unrealize(p domain.Position, totalYieldAlpha float64) Decomposition {
	if p.AlphaBalance <= 0 {
		return Decomposition{}
	}

	currentAlphaPrice, ok := p.TAOValueMid.Div(money.NewTAO(p.AlphaBalance))
	if !ok {
		return Decomposition{}
	}

	var unrealizedPnL money.TAO
	if !p.CostBasisTAO.IsZero() || p.CostBasisComplete {
		unrealizedPnL = p.TAOValueMid.Sub(p.CostBasisTAO)
	}

	emissionRemaining := totalYieldAlpha
	if emissionRemaining > p.AlphaBalance {
		emissionRemaining = p.AlphaBalance
	}
	unrealizedYieldTAO := money.TAOFromDecimal(currentAlphaPrice).Mul(decimalFromFloat(emissionRemaining))
	unrealizedAlphaPnL := unrealizedPnL.Sub(unrealizedYieldTAO)

	var yieldFraction money.Percent
	if !p.TAOValueMid.IsZero() {
		if frac, ok := unrealizedYieldTAO.Div(p.TAOValueMid); ok {
			yieldFraction = money.NewPercent(mustFloat(frac))
		}
	}

	return Decomposition{
		UnrealizedPnLTAO:   unrealizedPnL,
		UnrealizedYield:    yieldFraction,
		UnrealizedYieldTAO: unrealizedYieldTAO,
		UnrealizedAlphaPnL: unrealizedAlphaPnL.Float64(),
	}
}

// Earnings computes the §4.5 window earnings and annualized APY estimate
// for a single (wallet, netuid) series, given the snapshots closest
// on-or-before each side of the window and the net TAO flows (stakes
// minus unstake proceeds) inside the window.
type EarningsResult struct {
	EarningsTAO money.TAO
	APYEstimate float64
}

var ErrMissingSnapshot = fmt.Errorf("earnings window: missing boundary snapshot")

func Earnings(startValue, endValue, netFlows money.TAO, windowDays float64, haveStart, haveEnd bool) (EarningsResult, error) {
	if !haveStart || !haveEnd {
		return EarningsResult{}, ErrMissingSnapshot
	}
	earnings := endValue.Sub(startValue).Sub(netFlows)
	var apy float64
	if !startValue.IsZero() && windowDays > 0 {
		ratio, ok := earnings.Div(startValue)
		if ok {
			r, _ := ratio.Float64()
			apy = (r / windowDays) * 365
		}
	}
	return EarningsResult{EarningsTAO: earnings, APYEstimate: apy}, nil
}
