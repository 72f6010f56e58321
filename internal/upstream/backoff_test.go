package upstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayRespectsCapAndJitter(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second)
	for attempt := 0; attempt < 10; attempt++ {
		d := b.Delay(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestBackoffClipToCap(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 5*time.Second)
	assert.Equal(t, 5*time.Second, b.ClipToCap(30*time.Second))
	assert.Equal(t, time.Duration(0), b.ClipToCap(-1*time.Second))
	assert.Equal(t, 2*time.Second, b.ClipToCap(2*time.Second))
}
