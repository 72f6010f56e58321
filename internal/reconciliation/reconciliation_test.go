package reconciliation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/tao-treasury/internal/money"
)

func TestCheckPassesWithinAbsoluteTolerance(t *testing.T) {
	c := Check(3, Side{Present: true, Value: money.NewTAO(100)}, Side{Present: true, Value: money.NewTAO(100.5)}, money.NewTAO(1), 1)
	assert.True(t, c.Passed)
}

func TestCheckFailsOutsideBothTolerances(t *testing.T) {
	c := Check(3, Side{Present: true, Value: money.NewTAO(100)}, Side{Present: true, Value: money.NewTAO(150)}, money.NewTAO(1), 1)
	assert.False(t, c.Passed)
}

func TestCheckOneSidedBelowToleranceePasses(t *testing.T) {
	c := Check(3, Side{Present: false}, Side{Present: true, Value: money.NewTAO(0.0001)}, money.NewTAO(1), 1)
	assert.True(t, c.Passed)
}

func TestCheckOneSidedAboveToleranceFailsRegardlessOfRelative(t *testing.T) {
	c := Check(3, Side{Present: false}, Side{Present: true, Value: money.NewTAO(1000)}, money.NewTAO(1), 1000)
	assert.False(t, c.Passed, "one-sided presence above absolute tolerance always fails")
}

func TestCheckZeroStoredUsesAbsoluteOnly(t *testing.T) {
	c := Check(3, Side{Present: true, Value: money.ZeroTAO()}, Side{Present: true, Value: money.NewTAO(0.5)}, money.NewTAO(1), 0.01)
	assert.True(t, c.Passed)
}

func TestRunAggregatesTotals(t *testing.T) {
	stored := map[int]money.TAO{1: money.NewTAO(100), 2: money.NewTAO(50)}
	live := map[int]money.TAO{1: money.NewTAO(100.1), 2: money.NewTAO(200)}
	run := Run("5Wallet", stored, live, money.NewTAO(1), 1, time.Now())

	assert.Equal(t, 2, run.TotalChecks)
	assert.Equal(t, 1, run.PassedChecks)
	assert.Equal(t, 1, run.FailedChecks)
	assert.False(t, run.Passed)
	assert.NotEmpty(t, run.RunID)
}
