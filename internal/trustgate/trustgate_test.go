package trustgate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/tao-treasury/internal/domain"
)

func baseInputs(now time.Time) Inputs {
	return Inputs{
		LastSyncSuccess:     now.Add(-time.Minute),
		EverSynced:          true,
		StalenessMax:        time.Hour,
		LastReconRun:        now.Add(-time.Minute),
		HaveReconRun:        true,
		LastReconPassed:     true,
		ReconMaxAge:         24 * time.Hour,
		MaxConsecutiveFails: DefaultMaxConsecutiveFailures,
	}
}

func TestEvaluateAllHealthyIsOK(t *testing.T) {
	now := time.Now()
	s := Evaluate(baseInputs(now), now)
	assert.Equal(t, domain.GateOK, s.State)
	assert.Empty(t, s.Reasons)
}

func TestEvaluateNeverSyncedIsBlocked(t *testing.T) {
	now := time.Now()
	in := baseInputs(now)
	in.EverSynced = false
	s := Evaluate(in, now)
	assert.Equal(t, domain.GateBlocked, s.State)
}

func TestEvaluateStaleSyncIsDegraded(t *testing.T) {
	now := time.Now()
	in := baseInputs(now)
	in.LastSyncSuccess = now.Add(-2 * time.Hour)
	s := Evaluate(in, now)
	assert.Equal(t, domain.GateDegraded, s.State)
}

func TestEvaluateNoReconRunIsDegraded(t *testing.T) {
	now := time.Now()
	in := baseInputs(now)
	in.HaveReconRun = false
	s := Evaluate(in, now)
	assert.Equal(t, domain.GateDegraded, s.State)
}

func TestEvaluateReconDriftIsDegraded(t *testing.T) {
	now := time.Now()
	in := baseInputs(now)
	in.LastReconPassed = false
	s := Evaluate(in, now)
	assert.Equal(t, domain.GateDegraded, s.State)
}

func TestEvaluateStaleReconIsDegraded(t *testing.T) {
	now := time.Now()
	in := baseInputs(now)
	in.LastReconRun = now.Add(-25 * time.Hour)
	s := Evaluate(in, now)
	assert.Equal(t, domain.GateDegraded, s.State)
}

func TestEvaluateDatasetOverFailureBudgetIsDegraded(t *testing.T) {
	now := time.Now()
	in := baseInputs(now)
	in.Datasets = []DatasetHealth{{Dataset: "subnets", ConsecutiveFailures: 4, EverSucceeded: true}}
	s := Evaluate(in, now)
	assert.Equal(t, domain.GateDegraded, s.State)
}

func TestEvaluateDatasetNeverSucceededIsBlocked(t *testing.T) {
	now := time.Now()
	in := baseInputs(now)
	in.Datasets = []DatasetHealth{{Dataset: "validators", EverSucceeded: false}}
	s := Evaluate(in, now)
	assert.Equal(t, domain.GateBlocked, s.State)
}

func TestEvaluateBlockedTakesPriorityOverDegraded(t *testing.T) {
	now := time.Now()
	in := baseInputs(now)
	in.EverSynced = false
	in.LastReconPassed = false
	s := Evaluate(in, now)
	assert.Equal(t, domain.GateBlocked, s.State)
	assert.GreaterOrEqual(t, len(s.Reasons), 2)
}
