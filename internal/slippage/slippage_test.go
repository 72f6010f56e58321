package slippage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/tao-treasury/internal/domain"
)

func surf(size, pct float64, expiresAt time.Time) domain.SlippageSurface {
	return domain.SlippageSurface{SizeTAO: size, SlippagePct: pct, ExpiresAt: expiresAt}
}

func TestInterpolateNoDataDefaults(t *testing.T) {
	q := Interpolate(nil, 5, time.Now())
	assert.True(t, q.Defaulted)
	assert.Equal(t, DefaultSlippagePct, q.SlippagePct)
}

func TestInterpolateBelowSmallestClamps(t *testing.T) {
	future := time.Now().Add(time.Hour)
	surfaces := []domain.SlippageSurface{surf(5, 0.01, future), surf(10, 0.02, future)}
	q := Interpolate(surfaces, 1, time.Now())
	assert.Equal(t, 0.01, q.SlippagePct)
}

func TestInterpolateAboveLargestClamps(t *testing.T) {
	future := time.Now().Add(time.Hour)
	surfaces := []domain.SlippageSurface{surf(5, 0.01, future), surf(10, 0.02, future)}
	q := Interpolate(surfaces, 50, time.Now())
	assert.Equal(t, 0.02, q.SlippagePct)
}

func TestInterpolateBetweenPointsIsMonotoneLinear(t *testing.T) {
	future := time.Now().Add(time.Hour)
	surfaces := []domain.SlippageSurface{surf(0, 0.0, future), surf(10, 0.1, future)}
	q := Interpolate(surfaces, 5, time.Now())
	assert.InDelta(t, 0.05, q.SlippagePct, 1e-9)
}

func TestInterpolateFlagsStale(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	surfaces := []domain.SlippageSurface{surf(5, 0.01, past)}
	q := Interpolate(surfaces, 5, time.Now())
	assert.True(t, q.Stale)
}
