package costbasis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

func mustAlphaPtr(f float64) *float64 { return &f }

func TestComputeSimpleStakeNoUnstake(t *testing.T) {
	price := money.NewTAO(0.02)
	txs := []domain.StakeTransaction{
		{ExtrinsicID: "1", BlockNumber: 1, Type: domain.TxStake, AmountTAO: money.NewTAO(10), LimitPrice: &price, Success: true},
	}
	res, err := Compute("w1", 3, txs, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalStakedTAO.Cmp(money.NewTAO(10)))
	assert.InDelta(t, 500, res.OpenAlpha, 1e-6) // 10 / 0.02
	assert.True(t, res.Complete)
}

func TestComputeFIFOUnstakeRealizesGain(t *testing.T) {
	entryPrice := money.NewTAO(0.01)
	exitPrice := money.NewTAO(0.02)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	txs := []domain.StakeTransaction{
		{ExtrinsicID: "1", BlockNumber: 1, Timestamp: base, Type: domain.TxStake, AmountTAO: money.NewTAO(10), LimitPrice: &entryPrice, Success: true},
		{ExtrinsicID: "2", BlockNumber: 2, Timestamp: base.Add(24 * time.Hour), Type: domain.TxUnstake, AmountTAO: money.NewTAO(20), AlphaAmount: mustAlphaPtr(1000), LimitPrice: &exitPrice, Success: true},
	}
	res, err := Compute("w1", 3, txs, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.OpenAlpha, 1e-9, "all lots should be fully consumed")
	assert.True(t, res.RealizedPnLTAO.IsPositive(), "selling at double the entry price must realize a gain")
}

func TestComputeEmissionAlphaConsumedBeforePurchased(t *testing.T) {
	entryPrice := money.NewTAO(0.01)
	exitPrice := money.NewTAO(0.02)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	txs := []domain.StakeTransaction{
		{ExtrinsicID: "1", BlockNumber: 1, Timestamp: base, Type: domain.TxStake, AmountTAO: money.NewTAO(5), LimitPrice: &entryPrice, Success: true},
		{ExtrinsicID: "2", BlockNumber: 2, Timestamp: base.Add(48 * time.Hour), Type: domain.TxUnstake, AmountTAO: money.NewTAO(2), AlphaAmount: mustAlphaPtr(100), LimitPrice: &exitPrice, Success: true},
	}
	credits := []EmissionCredit{{Timestamp: base.Add(24 * time.Hour), Alpha: 100}}

	res, err := Compute("w1", 3, txs, credits)
	require.NoError(t, err)
	assert.Greater(t, res.RealizedYieldAlpha, 0.0, "unstaking should draw down emission alpha first")
	assert.InDelta(t, 500, res.OpenAlpha, 1e-6, "500 purchased alpha from the stake remains untouched")
}

func TestComputeIgnoresFailedTransactions(t *testing.T) {
	price := money.NewTAO(0.01)
	txs := []domain.StakeTransaction{
		{ExtrinsicID: "1", BlockNumber: 1, Type: domain.TxStake, AmountTAO: money.NewTAO(10), LimitPrice: &price, Success: false},
	}
	res, err := Compute("w1", 3, txs, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.OpenAlpha)
	assert.True(t, res.TotalStakedTAO.IsZero())
}

func TestComputeDeferredLotMarksIncomplete(t *testing.T) {
	txs := []domain.StakeTransaction{
		{ExtrinsicID: "1", BlockNumber: 1, Type: domain.TxStake, AmountTAO: money.NewTAO(10), LimitPrice: nil, Success: true},
	}
	res, err := Compute("w1", 3, txs, nil)
	require.NoError(t, err)
	assert.False(t, res.Complete)
}
