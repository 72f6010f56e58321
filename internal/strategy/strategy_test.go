package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
	"github.com/aristath/tao-treasury/internal/regime"
)

func TestEvaluateBlockedGateSuppresses(t *testing.T) {
	e := Evaluate(regime.Policy{AddsAllowed: true, NewBuysAllowed: true}, domain.TierOne, domain.GateBlocked)
	assert.False(t, e.Eligible)
}

func TestEvaluateDegradedGateAllowsButLowConfidence(t *testing.T) {
	e := Evaluate(regime.Policy{AddsAllowed: true, NewBuysAllowed: true}, domain.TierOne, domain.GateDegraded)
	assert.True(t, e.Eligible)
	assert.Equal(t, "low", e.Confidence)
}

func TestEvaluateUnviableTierIneligible(t *testing.T) {
	e := Evaluate(regime.Policy{AddsAllowed: true, NewBuysAllowed: true}, domain.TierUnviable, domain.GateOK)
	assert.False(t, e.Eligible)
}

func TestEvaluatePolicyDisallowsAddsAndBuys(t *testing.T) {
	e := Evaluate(regime.Policy{AddsAllowed: false, NewBuysAllowed: false}, domain.TierOne, domain.GateOK)
	assert.False(t, e.Eligible)
}

func TestSizePositionZeroForZeroWeightTier(t *testing.T) {
	size := SizePosition(domain.TierUnviable, DefaultConfig, money.NewTAO(1000), nil, time.Now())
	assert.True(t, size.IsZero())
}

func TestSizePositionCapsAtConcentration(t *testing.T) {
	cfg := DefaultConfig
	cfg.TargetWeightByTier = map[domain.ViabilityTier]float64{domain.TierOne: 0.9}
	cfg.ConcentrationCapPct = 0.25
	size := SizePosition(domain.TierOne, cfg, money.NewTAO(1000), nil, time.Now())
	assert.InDelta(t, 250, size.Float64(), 0.001)
}

func TestSizePositionDownsizedBySlippageCeiling(t *testing.T) {
	now := time.Now()
	surfaces := []domain.SlippageSurface{
		{NetUID: 5, SizeTAO: 2, SlippagePct: 0.01, ExpiresAt: now.Add(time.Hour)},
		{NetUID: 5, SizeTAO: 200, SlippagePct: 0.5, ExpiresAt: now.Add(time.Hour)},
	}
	cfg := Config{TargetWeightByTier: map[domain.ViabilityTier]float64{domain.TierOne: 1.0}, ConcentrationCapPct: 1.0, SlippageCeilingPct: 0.02}
	size := SizePosition(domain.TierOne, cfg, money.NewTAO(1000), surfaces, now)
	assert.LessOrEqual(t, size.Float64(), 1000.0)
	assert.Greater(t, size.Float64(), 0.0)
}

func TestWeeklyPlanProposesAddWhenBelowTarget(t *testing.T) {
	now := time.Now()
	positions := []PositionState{
		{
			NetUID:            7,
			Tier:              domain.TierOne,
			Policy:            regime.Policy{AddsAllowed: true, NewBuysAllowed: true, TrimPct: 0.1},
			Gate:              domain.GateOK,
			CurrentValueTAO:   money.NewTAO(10),
			PortfolioValueTAO: money.NewTAO(1000),
			SnapshotRef:       "snap-1",
		},
	}
	recs := WeeklyPlan("5Wallet", positions, DefaultConfig, now)
	assert.Len(t, recs, 1)
	assert.Equal(t, domain.ActionAdd, recs[0].Action)
}

func TestWeeklyPlanProposesTrimBoundedByRegimeCap(t *testing.T) {
	now := time.Now()
	positions := []PositionState{
		{
			NetUID:            7,
			Tier:              domain.TierFour, // target weight 0 -> always trim
			Policy:            regime.Policy{AddsAllowed: true, NewBuysAllowed: true, TrimPct: 0.1},
			Gate:              domain.GateOK,
			CurrentValueTAO:   money.NewTAO(100),
			PortfolioValueTAO: money.NewTAO(1000),
			SnapshotRef:       "snap-1",
		},
	}
	recs := WeeklyPlan("5Wallet", positions, DefaultConfig, now)
	assert.Len(t, recs, 1)
	assert.Equal(t, domain.ActionTrim, recs[0].Action)
	assert.InDelta(t, 10, recs[0].SizeTAO.Float64(), 0.001, "trim bounded by 10%% regime cap on a 100 TAO position")
}

func TestEventPlanExitsOnDeadRegime(t *testing.T) {
	rec := EventPlan("5Wallet", 9, money.NewTAO(50), domain.RegimeDead, false, "snap-2")
	assert.NotNil(t, rec)
	assert.Equal(t, domain.ActionExit, rec.Action)
}

func TestEventPlanTrimsOnReconciliationFailure(t *testing.T) {
	rec := EventPlan("5Wallet", 9, money.NewTAO(50), domain.RegimeNeutral, true, "snap-2")
	assert.NotNil(t, rec)
	assert.Equal(t, domain.ActionTrim, rec.Action)
}

func TestEventPlanNilWhenNothingTriggered(t *testing.T) {
	rec := EventPlan("5Wallet", 9, money.NewTAO(50), domain.RegimeNeutral, false, "snap-2")
	assert.Nil(t, rec)
}
