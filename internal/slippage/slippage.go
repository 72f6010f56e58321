// Package slippage caches per-(netuid, action, size) slippage quotes and
// interpolates between cached sizes, per §4.6.
package slippage

import (
	"time"

	"github.com/aristath/tao-treasury/internal/domain"
)

// DefaultSlippagePct is the conservative fallback used when no surface is
// cached and no upstream fetch is available (§4.6).
const DefaultSlippagePct = 0.02

// Quote is an interpolated (or directly cached) slippage estimate.
type Quote struct {
	SlippagePct float64
	Stale       bool
	Defaulted   bool // true if no cached data existed and DefaultSlippagePct was used
}

// Interpolate returns the slippage at sizeTAO given a sorted-by-size
// cache for one (netuid, action) pair. Below the smallest cached size
// the smallest cached slippage is returned; above the largest, the
// largest. Between two points, monotone linear interpolation is used.
// Points considered stale as of `now` are still used for interpolation
// (the caller decides whether to reject a stale quote) but the returned
// Quote is flagged.
func Interpolate(surfaces []domain.SlippageSurface, sizeTAO float64, now time.Time) Quote {
	if len(surfaces) == 0 {
		return Quote{SlippagePct: DefaultSlippagePct, Defaulted: true}
	}

	stale := false
	for _, s := range surfaces {
		if s.Stale(now) {
			stale = true
			break
		}
	}

	if sizeTAO <= surfaces[0].SizeTAO {
		return Quote{SlippagePct: surfaces[0].SlippagePct, Stale: stale}
	}
	last := surfaces[len(surfaces)-1]
	if sizeTAO >= last.SizeTAO {
		return Quote{SlippagePct: last.SlippagePct, Stale: stale}
	}

	for i := 0; i < len(surfaces)-1; i++ {
		lo, hi := surfaces[i], surfaces[i+1]
		if sizeTAO >= lo.SizeTAO && sizeTAO <= hi.SizeTAO {
			span := hi.SizeTAO - lo.SizeTAO
			if span == 0 {
				return Quote{SlippagePct: lo.SlippagePct, Stale: stale}
			}
			frac := (sizeTAO - lo.SizeTAO) / span
			pct := lo.SlippagePct + frac*(hi.SlippagePct-lo.SlippagePct)
			return Quote{SlippagePct: pct, Stale: stale}
		}
	}
	return Quote{SlippagePct: last.SlippagePct, Stale: stale}
}

// StandardSizes are the sizes refreshed by the deep sync tier for each
// active position, per §4.4 step "deep" (both directions).
var StandardSizes = []float64{2, 5, 10, 15, 20}
