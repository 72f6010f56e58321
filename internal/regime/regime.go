// Package regime implements the per-subnet flow-regime state machine and
// its portfolio-level rollup, per §4.7.
package regime

import (
	"time"

	"github.com/aristath/tao-treasury/internal/domain"
)

// Thresholds configures the candidate-regime cascade's cut points.
type Thresholds struct {
	QuarantineFlow float64 // Q, default -0.15
	RiskOffFlow    float64 // R, default -0.05
}

// DefaultThresholds matches §4.7's stated defaults.
var DefaultThresholds = Thresholds{QuarantineFlow: -0.15, RiskOffFlow: -0.05}

// Persistence is the number of consecutive candidate proposals required
// to commit a transition into each target regime.
type Persistence struct {
	Dead     int
	Quarantine int
	RiskOff  int
	RiskOn   int
	Neutral  int
}

// DefaultPersistence matches §4.7's stated example.
var DefaultPersistence = Persistence{Dead: 2, Quarantine: 3, RiskOff: 2, RiskOn: 2, Neutral: 1}

func (p Persistence) daysFor(r domain.FlowRegime) int {
	switch r {
	case domain.RegimeDead:
		return p.Dead
	case domain.RegimeQuarantine:
		return p.Quarantine
	case domain.RegimeRiskOff:
		return p.RiskOff
	case domain.RegimeRiskOn:
		return p.RiskOn
	default:
		return p.Neutral
	}
}

// negativeCount counts negative entries in the most recent n days of
// history (most-recent-first, per domain.Flows.DailyHistory's contract).
func negativeCount(history []float64, n int) int {
	count := 0
	for i := 0; i < n && i < len(history); i++ {
		if history[i] < 0 {
			count++
		}
	}
	return count
}

// Candidate runs the §4.7 six-step cascade and returns the proposed
// regime for this sync pass, before persistence is applied.
func Candidate(flows domain.Flows, t Thresholds) domain.FlowRegime {
	switch {
	case flows.F7d < t.QuarantineFlow && flows.F14d < t.QuarantineFlow:
		return domain.RegimeDead
	case flows.F7d < t.RiskOffFlow && flows.F14d < t.RiskOffFlow:
		return domain.RegimeQuarantine
	case negativeCount(flows.DailyHistory, 4) >= 3 && flows.F7d < 0:
		return domain.RegimeQuarantine
	case flows.F7d < t.RiskOffFlow || (flows.F3d < 0 && flows.F7d < 0):
		return domain.RegimeRiskOff
	case flows.F7d > absf(t.RiskOffFlow) && flows.F14d > 0:
		return domain.RegimeRiskOn
	default:
		return domain.RegimeNeutral
	}
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Advance applies the anti-whipsaw persistence rule to one subnet,
// returning the updated subnet fields. persistenceEnabled=false commits
// the candidate immediately, per §4.7's "persistence disabled" escape
// hatch.
func Advance(s domain.Subnet, candidate domain.FlowRegime, p Persistence, persistenceEnabled bool, now time.Time) domain.Subnet {
	if !persistenceEnabled {
		if candidate != s.FlowRegime {
			s.FlowRegimeSince = now
		}
		s.FlowRegime = candidate
		s.RegimeCandidate = ""
		s.RegimeCandidateDays = 0
		return s
	}

	switch {
	case candidate == s.FlowRegime:
		s.RegimeCandidate = ""
		s.RegimeCandidateDays = 0
	case candidate == s.RegimeCandidate:
		s.RegimeCandidateDays++
		if s.RegimeCandidateDays >= p.daysFor(candidate) {
			s.FlowRegime = candidate
			s.FlowRegimeSince = now
			s.RegimeCandidate = ""
			s.RegimeCandidateDays = 0
		}
	default:
		s.RegimeCandidate = candidate
		s.RegimeCandidateDays = 1
	}
	return s
}

// Policy is the set of rebalance behaviors a committed regime unlocks,
// consumed by internal/strategy.
type Policy struct {
	NewBuysAllowed  bool
	AddsAllowed     bool
	TrimPct         float64
	SleeveExpansion bool
}

// PolicyFor returns the policy bound to a committed flow regime.
func PolicyFor(r domain.FlowRegime) Policy {
	switch r {
	case domain.RegimeRiskOn:
		return Policy{NewBuysAllowed: true, AddsAllowed: true, SleeveExpansion: true}
	case domain.RegimeNeutral:
		return Policy{NewBuysAllowed: true, AddsAllowed: true}
	case domain.RegimeRiskOff:
		return Policy{TrimPct: 0.25}
	case domain.RegimeQuarantine:
		return Policy{TrimPct: 0.5}
	case domain.RegimeDead:
		return Policy{TrimPct: 1.0}
	default:
		return Policy{}
	}
}

// PositionValue pairs a subnet's committed regime with the TAO value
// used to value-weight the portfolio rollup.
type PositionValue struct {
	Regime  domain.FlowRegime
	ValueTAO float64
}

// PortfolioRollup computes the §4.7 value-weighted portfolio regime: any
// dead/quarantine exposure forces risk_off; otherwise the value-weighted
// share of risk_off vs risk_on positions decides the label.
func PortfolioRollup(positions []PositionValue) (domain.PortfolioRegime, string) {
	var total, riskOffValue, riskOnValue float64
	for _, p := range positions {
		total += p.ValueTAO
		if p.Regime == domain.RegimeDead || p.Regime == domain.RegimeQuarantine {
			return domain.PortfolioRiskOff, "dead or quarantined subnet exposure present"
		}
		if p.Regime == domain.RegimeRiskOff {
			riskOffValue += p.ValueTAO
		}
		if p.Regime == domain.RegimeRiskOn {
			riskOnValue += p.ValueTAO
		}
	}
	if total <= 0 {
		return domain.PortfolioNeutral, "no valued positions"
	}
	riskOffShare := riskOffValue / total
	riskOnShare := riskOnValue / total
	switch {
	case riskOffShare >= 0.5:
		return domain.PortfolioRiskOff, "majority of portfolio value in risk_off subnets"
	case riskOnShare >= 0.5:
		return domain.PortfolioRiskOn, "majority of portfolio value in risk_on subnets"
	default:
		return domain.PortfolioNeutral, "no dominant regime by value"
	}
}
