package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/tao-treasury/internal/domain"
)

func TestCandidateDead(t *testing.T) {
	flows := domain.Flows{F7d: -0.2, F14d: -0.2}
	assert.Equal(t, domain.RegimeDead, Candidate(flows, DefaultThresholds))
}

func TestCandidateQuarantineByMultiHorizon(t *testing.T) {
	flows := domain.Flows{F7d: -0.1, F14d: -0.1}
	assert.Equal(t, domain.RegimeQuarantine, Candidate(flows, DefaultThresholds))
}

func TestCandidateQuarantineByDailyHistory(t *testing.T) {
	flows := domain.Flows{F7d: -0.01, F14d: 0.1, DailyHistory: []float64{-0.01, -0.02, -0.01, 0.01}}
	assert.Equal(t, domain.RegimeQuarantine, Candidate(flows, DefaultThresholds))
}

func TestCandidateRiskOff(t *testing.T) {
	flows := domain.Flows{F3d: -0.02, F7d: -0.01, F14d: 0.1}
	assert.Equal(t, domain.RegimeRiskOff, Candidate(flows, DefaultThresholds))
}

func TestCandidateRiskOn(t *testing.T) {
	flows := domain.Flows{F7d: 0.1, F14d: 0.05}
	assert.Equal(t, domain.RegimeRiskOn, Candidate(flows, DefaultThresholds))
}

func TestCandidateNeutralDefault(t *testing.T) {
	flows := domain.Flows{F7d: 0.01, F14d: -0.01}
	assert.Equal(t, domain.RegimeNeutral, Candidate(flows, DefaultThresholds))
}

func TestAdvancePersistsBeforeCommitting(t *testing.T) {
	s := domain.Subnet{FlowRegime: domain.RegimeNeutral}
	now := time.Now()

	s = Advance(s, domain.RegimeRiskOff, DefaultPersistence, true, now)
	assert.Equal(t, domain.RegimeNeutral, s.FlowRegime, "first proposal must not commit immediately")
	assert.Equal(t, domain.RegimeRiskOff, s.RegimeCandidate)
	assert.Equal(t, 1, s.RegimeCandidateDays)

	s = Advance(s, domain.RegimeRiskOff, DefaultPersistence, true, now)
	assert.Equal(t, domain.RegimeRiskOff, s.FlowRegime, "second consecutive proposal (N=2) must commit")
	assert.Equal(t, 0, s.RegimeCandidateDays)
}

func TestAdvanceResetsCounterOnDifferentCandidate(t *testing.T) {
	s := domain.Subnet{FlowRegime: domain.RegimeNeutral, RegimeCandidate: domain.RegimeRiskOff, RegimeCandidateDays: 1}
	s = Advance(s, domain.RegimeRiskOn, DefaultPersistence, true, time.Now())
	assert.Equal(t, domain.RegimeRiskOn, s.RegimeCandidate)
	assert.Equal(t, 1, s.RegimeCandidateDays)
}

func TestAdvanceImmediateWhenPersistenceDisabled(t *testing.T) {
	s := domain.Subnet{FlowRegime: domain.RegimeNeutral}
	s = Advance(s, domain.RegimeDead, DefaultPersistence, false, time.Now())
	assert.Equal(t, domain.RegimeDead, s.FlowRegime)
}

func TestPortfolioRollupDeadForcesRiskOff(t *testing.T) {
	regime, reason := PortfolioRollup([]PositionValue{{Regime: domain.RegimeDead, ValueTAO: 1}})
	assert.Equal(t, domain.PortfolioRiskOff, regime)
	assert.NotEmpty(t, reason)
}

func TestPortfolioRollupValueWeighted(t *testing.T) {
	regime, _ := PortfolioRollup([]PositionValue{
		{Regime: domain.RegimeRiskOn, ValueTAO: 80},
		{Regime: domain.RegimeRiskOff, ValueTAO: 20},
	})
	assert.Equal(t, domain.PortfolioRiskOn, regime)
}
