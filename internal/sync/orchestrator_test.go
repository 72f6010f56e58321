package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	mu      sync.Mutex
	wallets []string
	calls   []string

	failWallet string
	failStep   string
	failErr    error

	blockUntil chan struct{}
}

func (f *fakePipeline) record(step, wallet string) error {
	f.mu.Lock()
	f.calls = append(f.calls, step+":"+wallet)
	f.mu.Unlock()
	if wallet == f.failWallet && step == f.failStep {
		return f.failErr
	}
	return nil
}

func (f *fakePipeline) ActiveWallets(ctx context.Context) ([]string, error) { return f.wallets, nil }
func (f *fakePipeline) SyncPositions(ctx context.Context, w string) error {
	if f.blockUntil != nil {
		<-f.blockUntil
	}
	return f.record("SyncPositions", w)
}
func (f *fakePipeline) RefreshValidators(ctx context.Context, w string) error {
	return f.record("RefreshValidators", w)
}
func (f *fakePipeline) ComputeUnrealized(ctx context.Context, w string) error {
	return f.record("ComputeUnrealized", w)
}
func (f *fakePipeline) WriteSnapshot(ctx context.Context, w string) error {
	return f.record("WriteSnapshot", w)
}
func (f *fakePipeline) SyncTransactions(ctx context.Context, w string) error {
	return f.record("SyncTransactions", w)
}
func (f *fakePipeline) RecomputeCostBasis(ctx context.Context, w string) error {
	return f.record("RecomputeCostBasis", w)
}
func (f *fakePipeline) RefreshYield(ctx context.Context, w string) error {
	return f.record("RefreshYield", w)
}
func (f *fakePipeline) EvaluateRisk(ctx context.Context, w string) error {
	return f.record("EvaluateRisk", w)
}
func (f *fakePipeline) RefreshSlippageSurfaces(ctx context.Context, w string) error {
	return f.record("RefreshSlippageSurfaces", w)
}
func (f *fakePipeline) RecomputeExecutableNAV(ctx context.Context, w string) error {
	return f.record("RecomputeExecutableNAV", w)
}
func (f *fakePipeline) RecordNAVHistory(ctx context.Context, w string) error {
	return f.record("RecordNAVHistory", w)
}

func newTestOrchestrator(p Pipeline, cfg Config) *Orchestrator {
	return New(p, nil, nil, cfg, zerolog.Nop())
}

func TestRunOnceRefreshRunsOnlyRefreshSteps(t *testing.T) {
	p := &fakePipeline{wallets: []string{"5Alice"}}
	o := newTestOrchestrator(p, Config{})
	result := o.RunOnce(context.Background(), TierRefresh)

	assert.Empty(t, result.Errors)
	assert.Contains(t, p.calls, "WriteSnapshot:5Alice")
	assert.NotContains(t, p.calls, "SyncTransactions:5Alice")
	assert.NotContains(t, p.calls, "RefreshSlippageSurfaces:5Alice")
}

func TestRunOnceDeepRunsFullSequence(t *testing.T) {
	p := &fakePipeline{wallets: []string{"5Alice"}}
	o := newTestOrchestrator(p, Config{})
	result := o.RunOnce(context.Background(), TierDeep)

	assert.Empty(t, result.Errors)
	assert.Contains(t, p.calls, "RecordNAVHistory:5Alice")
}

func TestRunOncePartialFailureContinuesOtherWallets(t *testing.T) {
	p := &fakePipeline{
		wallets:    []string{"5Alice", "5Bob"},
		failWallet: "5Alice",
		failStep:   "SyncPositions",
		failErr:    fmt.Errorf("boom"),
	}
	o := newTestOrchestrator(p, Config{})
	result := o.RunOnce(context.Background(), TierRefresh)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "5Alice")
	assert.Contains(t, p.calls, "SyncPositions:5Bob")
	assert.Contains(t, p.calls, "WriteSnapshot:5Bob")
	assert.NotContains(t, p.calls, "WriteSnapshot:5Alice")
}

func TestRunOnceRateLimitErrorSchedulesBackoff(t *testing.T) {
	p := &fakePipeline{
		wallets:    []string{"5Alice"},
		failWallet: "5Alice",
		failStep:   "SyncPositions",
		failErr:    &RateLimitError{RetryAfter: 30 * time.Second, Err: fmt.Errorf("429")},
	}
	o := newTestOrchestrator(p, Config{RetryBase: time.Second, RetryCap: time.Minute})
	result := o.RunOnce(context.Background(), TierRefresh)

	assert.True(t, result.RateLimited)
	assert.Equal(t, 30*time.Second, result.RetryAfter)
	assert.NotZero(t, o.refreshRescheduleAt.Load())
}

func TestTickerCoalescesOverlappingRuns(t *testing.T) {
	block := make(chan struct{})
	p := &fakePipeline{wallets: []string{"5Alice"}, blockUntil: block}
	o := newTestOrchestrator(p, Config{RefreshInterval: 10 * time.Millisecond, FullInterval: time.Hour, DeepTierHour: 3})

	var running atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o.wg.Add(1)
	go o.runTicker(ctx, TierRefresh, 10*time.Millisecond, &running)

	time.Sleep(50 * time.Millisecond)
	close(block)
	time.Sleep(30 * time.Millisecond)
	cancel()
	o.wg.Wait()

	p.mu.Lock()
	calls := len(p.calls)
	p.mu.Unlock()
	assert.LessOrEqual(t, calls, 4, "overlapping ticks while a run is in flight must coalesce, not queue")
}

func TestMinRecordsGuardBlocksTruncatedOverwrite(t *testing.T) {
	assert.Error(t, MinRecordsGuard("positions", 1, 10))
	assert.NoError(t, MinRecordsGuard("positions", 10, 10))
}

func TestStopSignalsCancellation(t *testing.T) {
	p := &fakePipeline{wallets: []string{"5Alice"}}
	o := New(p, nil, nil, Config{
		RefreshInterval: time.Hour,
		FullInterval:    time.Hour,
		DeepTierHour:    3,
		ShutdownGrace:   200 * time.Millisecond,
	}, zerolog.Nop())

	o.Start(context.Background())
	o.Stop()
}
