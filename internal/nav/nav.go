// Package nav computes executable NAV per position and maintains the
// per-wallet daily OHLC NAV history, per §4.6.
package nav

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
	"github.com/aristath/tao-treasury/internal/slippage"
)

// Executable returns the slippage-adjusted TAO value of a position.
// Root (netuid 0) has no pool and therefore no slippage.
func Executable(p domain.Position, surfaces []domain.SlippageSurface, now time.Time) money.TAO {
	if p.NetUID == 0 || p.TAOValueMid.IsZero() {
		return p.TAOValueMid
	}
	q := slippage.Interpolate(surfaces, p.AlphaBalance, now)
	factor := decimal.NewFromFloat(1 - q.SlippagePct)
	return p.TAOValueMid.Mul(factor)
}

// UpsertOHLC merges a new exec-NAV reading into today's OHLC row,
// following the §4.6 rules exactly: close is always overwritten; high/low
// track the running extremes; open is set only on the day's first write;
// ath never decreases.
func UpsertOHLC(existing *domain.NAVHistory, wallet string, date time.Time, execNAV money.TAO, isFirstWriteOfDay bool) domain.NAVHistory {
	row := domain.NAVHistory{Wallet: wallet, Date: date}
	if existing != nil {
		row = *existing
	}

	row.Close = execNAV
	if isFirstWriteOfDay || existing == nil {
		row.Open = execNAV
		row.High = execNAV
		row.Low = execNAV
	} else {
		row.High = money.MaxTAO(row.High, execNAV)
		row.Low = money.MinTAO(row.Low, execNAV)
	}
	row.ATH = money.MaxTAO(row.ATH, execNAV)

	if !row.ATH.IsZero() {
		if ratio, ok := row.ATH.Sub(row.Close).Div(row.ATH); ok {
			f, _ := ratio.Float64()
			row.DrawdownPct = f
		}
	}
	return row
}

// DailyReturn computes the return fields against the prior day's close.
func DailyReturn(close, priorClose money.TAO) (returnTAO money.TAO, returnPct float64) {
	returnTAO = close.Sub(priorClose)
	if !priorClose.IsZero() {
		if ratio, ok := returnTAO.Div(priorClose); ok {
			returnPct, _ = ratio.Float64()
		}
	}
	return returnTAO, returnPct
}
