package yield

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

func TestUnrealizeZeroBalanceIsAllZero(t *testing.T) {
	d := Unrealize(domain.Position{AlphaBalance: 0}, 10)
	assert.True(t, d.UnrealizedPnLTAO.IsZero())
	assert.Equal(t, 0.0, d.UnrealizedAlphaPnL)
}

func TestUnrealizeIdentityHoldsByConstruction(t *testing.T) {
	p := domain.Position{
		AlphaBalance: 100,
		TAOValueMid:  money.NewTAO(5),
		CostBasisTAO: money.NewTAO(4),
	}
	d := Unrealize(p, 20) // emission_remaining = min(20, 100) = 20

	sum := d.UnrealizedYieldTAO.Add(money.NewTAO(d.UnrealizedAlphaPnL))
	assert.InDelta(t, d.UnrealizedPnLTAO.Float64(), sum.Float64(), 1e-6,
		"unrealized_pnl must equal unrealized_yield + unrealized_alpha_pnl")
}

func TestEarningsRequiresBothSnapshots(t *testing.T) {
	_, err := Earnings(money.NewTAO(10), money.NewTAO(12), money.ZeroTAO(), 7, true, false)
	require.ErrorIs(t, err, ErrMissingSnapshot)
}

func TestEarningsComputesAPYEstimate(t *testing.T) {
	res, err := Earnings(money.NewTAO(100), money.NewTAO(107), money.ZeroTAO(), 7, true, true)
	require.NoError(t, err)
	assert.InDelta(t, 7, res.EarningsTAO.Float64(), 1e-9)
	assert.InDelta(t, 0.07/7*365, res.APYEstimate, 1e-6)
}
