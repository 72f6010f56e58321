// Package viability scores active subnets via hard-fail gates plus a
// weighted percentile-rank composite, per §4.8.
package viability

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/tao-treasury/internal/config"
	"github.com/aristath/tao-treasury/internal/domain"
)

// Metrics bundles the six percentile-scored inputs for one subnet.
type Metrics struct {
	NetUID          int
	TAOReserve      float64
	NetFlow7d       float64
	EmissionShare   float64
	PriceTrend7d    float64
	SubnetAgeDays   float64
	MaxDrawdown30d  float64 // inverted: lower drawdown scores higher
}

// HardFailInputs bundles the gate-check fields, separate from Metrics so
// a caller can hard-fail a subnet it otherwise lacks full metrics for.
type HardFailInputs struct {
	TAOReserve    float64
	EmissionShare float64
	AgeDays       int
	HolderCount   int
	MaxDrawdown30d float64
	NetFlow7dOverReserve float64
}

// HardFails reports whether a subnet fails any configured hard gate.
// A failing subnet's score is undefined and its tier is always unviable.
func HardFails(in HardFailInputs, t config.ViabilityThresholds) bool {
	switch {
	case in.TAOReserve < t.MinPoolTAOReserve:
		return true
	case in.HolderCount < t.MinHolderCount:
		return true
	case in.AgeDays < t.MinAgeDays:
		return true
	case in.EmissionShare <= 0:
		return true
	default:
		return false
	}
}

// Score computes the 0-100 weighted composite for every subnet in the
// input set simultaneously, since percentile rank is inherently relative
// to the population being scored this sync pass.
func Score(metrics []Metrics, w config.ViabilityWeights, ageCapDays float64) map[int]float64 {
	n := len(metrics)
	scores := make(map[int]float64, n)
	if n == 0 {
		return scores
	}

	reserve := make([]float64, n)
	flow := make([]float64, n)
	emission := make([]float64, n)
	trend := make([]float64, n)
	age := make([]float64, n)
	drawdown := make([]float64, n)
	for i, m := range metrics {
		reserve[i] = m.TAOReserve
		flow[i] = m.NetFlow7d
		emission[i] = m.EmissionShare
		trend[i] = m.PriceTrend7d
		a := m.SubnetAgeDays
		if a > ageCapDays {
			a = ageCapDays
		}
		age[i] = a
		drawdown[i] = -m.MaxDrawdown30d // inverted: smaller drawdown ranks higher
	}

	reserveRank := percentileRanks(reserve)
	flowRank := percentileRanks(flow)
	emissionRank := percentileRanks(emission)
	trendRank := percentileRanks(trend)
	ageRank := percentileRanks(age)
	drawdownRank := percentileRanks(drawdown)

	for i, m := range metrics {
		composite := w.Liquidity*reserveRank[i] +
			w.Flow*flowRank[i] +
			w.Emission*emissionRank[i] +
			w.Validator*trendRank[i] + // price trend folded into the validator/quality weight slot
			w.Age*ageRank[i] +
			w.HolderBase*drawdownRank[i]
		scores[m.NetUID] = composite * 100
	}
	return scores
}

// percentileRanks returns, for each input value, the fraction of the
// population it is greater-than-or-equal-to (0..1), using gonum/floats
// for the sort so ties share the midpoint rank.
func percentileRanks(values []float64) []float64 {
	n := len(values)
	ranks := make([]float64, n)
	if n == 1 {
		ranks[0] = 1
		return ranks
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sorted := append([]float64(nil), values...)
	floats.Sort(sorted)

	for i, v := range values {
		pos := sort.SearchFloat64s(sorted, v)
		// midpoint of the tie band containing v
		lastPos := pos
		for lastPos < n && sorted[lastPos] == v {
			lastPos++
		}
		mid := float64(pos+lastPos-1) / 2
		ranks[i] = mid / float64(n-1)
	}
	return ranks
}

// Tier maps a 0-100 score to a tier using configurable, strictly
// descending cut points.
func Tier(score float64, t config.ViabilityThresholds, cuts TierCuts) domain.ViabilityTier {
	switch {
	case score >= cuts.Tier1Min:
		return domain.TierOne
	case score >= cuts.Tier2Min:
		return domain.TierTwo
	case score >= cuts.Tier3Min:
		return domain.TierThree
	case score > 0:
		return domain.TierFour
	default:
		return domain.TierUnviable
	}
}

// TierCuts are the score cut-points from §4.8. Nothing validates them;
// Tier assumes Tier1Min > Tier2Min > Tier3Min.
type TierCuts struct {
	Tier1Min float64
	Tier2Min float64
	Tier3Min float64
}

var DefaultTierCuts = TierCuts{Tier1Min: 75, Tier2Min: 50, Tier3Min: 25}
