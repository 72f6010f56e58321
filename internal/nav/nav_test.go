package nav

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/tao-treasury/internal/domain"
	"github.com/aristath/tao-treasury/internal/money"
)

func TestExecutableRootHasNoSlippage(t *testing.T) {
	p := domain.Position{NetUID: 0, TAOValueMid: money.NewTAO(100)}
	got := Executable(p, nil, time.Now())
	assert.Equal(t, 0, got.Cmp(money.NewTAO(100)))
}

func TestExecutableAppliesInterpolatedSlippage(t *testing.T) {
	future := time.Now().Add(time.Hour)
	p := domain.Position{NetUID: 3, AlphaBalance: 10, TAOValueMid: money.NewTAO(100)}
	surfaces := []domain.SlippageSurface{
		{SizeTAO: 0, SlippagePct: 0, ExpiresAt: future},
		{SizeTAO: 20, SlippagePct: 0.1, ExpiresAt: future},
	}
	got := Executable(p, surfaces, time.Now())
	// size 10 interpolates to 0.05 slippage => 100 * 0.95 = 95
	assert.InDelta(t, 95, got.Float64(), 1e-6)
}

func TestUpsertOHLCFirstWriteOfDaySetsOpenHighLow(t *testing.T) {
	row := UpsertOHLC(nil, "w1", time.Now(), money.NewTAO(10), true)
	assert.Equal(t, 0, row.Open.Cmp(money.NewTAO(10)))
	assert.Equal(t, 0, row.High.Cmp(money.NewTAO(10)))
	assert.Equal(t, 0, row.Low.Cmp(money.NewTAO(10)))
}

func TestUpsertOHLCSubsequentWriteTracksExtremes(t *testing.T) {
	first := UpsertOHLC(nil, "w1", time.Now(), money.NewTAO(10), true)
	second := UpsertOHLC(&first, "w1", time.Now(), money.NewTAO(8), false)
	assert.Equal(t, 0, second.Low.Cmp(money.NewTAO(8)))
	assert.Equal(t, 0, second.High.Cmp(money.NewTAO(10)))
	assert.Equal(t, 0, second.Close.Cmp(money.NewTAO(8)))
}

func TestUpsertOHLCDrawdownFromATH(t *testing.T) {
	first := UpsertOHLC(nil, "w1", time.Now(), money.NewTAO(100), true)
	second := UpsertOHLC(&first, "w1", time.Now(), money.NewTAO(80), false)
	assert.InDelta(t, 0.2, second.DrawdownPct, 1e-9)
}

func TestDailyReturnComputesPct(t *testing.T) {
	retTAO, retPct := DailyReturn(money.NewTAO(110), money.NewTAO(100))
	assert.Equal(t, 0, retTAO.Cmp(money.NewTAO(10)))
	assert.InDelta(t, 0.1, retPct, 1e-9)
}
