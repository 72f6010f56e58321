package viability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/tao-treasury/internal/config"
)

func TestHardFailsBelowMinReserve(t *testing.T) {
	in := HardFailInputs{TAOReserve: 10, EmissionShare: 0.01, AgeDays: 100, HolderCount: 50}
	th := config.ViabilityThresholds{MinPoolTAOReserve: 100, MinHolderCount: 10, MinAgeDays: 30}
	assert.True(t, HardFails(in, th))
}

func TestHardFailsPassesWhenAboveAllGates(t *testing.T) {
	in := HardFailInputs{TAOReserve: 1000, EmissionShare: 0.01, AgeDays: 100, HolderCount: 50}
	th := config.ViabilityThresholds{MinPoolTAOReserve: 100, MinHolderCount: 10, MinAgeDays: 30}
	assert.False(t, HardFails(in, th))
}

func TestScoreHighestMetricsScoreHighest(t *testing.T) {
	w := config.ViabilityWeights{Liquidity: 1.0 / 6, Flow: 1.0 / 6, Emission: 1.0 / 6, Validator: 1.0 / 6, Age: 1.0 / 6, HolderBase: 1.0 / 6}
	metrics := []Metrics{
		{NetUID: 1, TAOReserve: 100, NetFlow7d: 0.1, EmissionShare: 0.02, PriceTrend7d: 0.05, SubnetAgeDays: 300, MaxDrawdown30d: 0.05},
		{NetUID: 2, TAOReserve: 10, NetFlow7d: -0.1, EmissionShare: 0.001, PriceTrend7d: -0.05, SubnetAgeDays: 10, MaxDrawdown30d: 0.5},
	}
	scores := Score(metrics, w, 365)
	assert.Greater(t, scores[1], scores[2])
}

func TestTierMapsByDescendingCuts(t *testing.T) {
	cuts := DefaultTierCuts
	th := config.ViabilityThresholds{}
	assert.Equal(t, "tier_1", string(Tier(80, th, cuts)))
	assert.Equal(t, "tier_2", string(Tier(60, th, cuts)))
	assert.Equal(t, "tier_3", string(Tier(30, th, cuts)))
	assert.Equal(t, "tier_4", string(Tier(10, th, cuts)))
	assert.Equal(t, "unviable", string(Tier(0, th, cuts)))
}
