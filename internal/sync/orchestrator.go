// Package sync drives the three-tier (refresh/full/deep) pipeline
// described in §4.4: a single-threaded cooperative scheduler with
// per-tier timers, a "not already running" mutex that coalesces
// overlapping ticks, cancellation on shutdown, and rate-limit backoff
// for the refresh tier.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/tao-treasury/internal/datastore"
)

// Tier identifies one of the three sync cadences.
type Tier string

const (
	TierRefresh Tier = "refresh"
	TierFull    Tier = "full"
	TierDeep    Tier = "deep"
)

// RunResult is the accumulated outcome of one tier pass across all
// wallets, reported at the end per the partial-failure-protection rule.
type RunResult struct {
	Tier      Tier
	StartedAt time.Time
	Finished  time.Time
	Errors    []string
	RateLimited bool
	RetryAfter  time.Duration
}

func (r RunResult) ok() bool { return len(r.Errors) == 0 }

// Pipeline is the set of per-wallet steps the orchestrator sequences.
// LivePipeline wires these to the upstream client, the datastore
// repositories, and the derived-computation packages (costbasis, yield,
// slippage, nav, reconciliation); no tier runs regime classification or
// viability scoring. Splitting it
// out as an interface keeps the scheduler itself free of upstream/
// datastore concerns and lets tests substitute a fake.
type Pipeline interface {
	ActiveWallets(ctx context.Context) ([]string, error)

	// Refresh tier, steps 2-5.
	SyncPositions(ctx context.Context, wallet string) error
	RefreshValidators(ctx context.Context, wallet string) error
	ComputeUnrealized(ctx context.Context, wallet string) error
	WriteSnapshot(ctx context.Context, wallet string) error

	// Full tier, steps 6-9 (appended after refresh's 2-5).
	SyncTransactions(ctx context.Context, wallet string) error
	RecomputeCostBasis(ctx context.Context, wallet string) error
	RefreshYield(ctx context.Context, wallet string) error
	EvaluateRisk(ctx context.Context, wallet string) error

	// Deep tier, additional steps.
	RefreshSlippageSurfaces(ctx context.Context, wallet string) error
	RecomputeExecutableNAV(ctx context.Context, wallet string) error
	RecordNAVHistory(ctx context.Context, wallet string) error
}

// RateLimitSource reports the upstream client's most recently observed
// rate-limit hint, if any (mirrors upstream.Client.CurrentRetryAfter).
type RateLimitSource interface {
	CurrentRetryAfter() (time.Duration, bool)
}

// Config carries the intervals and backoff parameters from the
// top-level application config.
type Config struct {
	RefreshInterval time.Duration
	FullInterval    time.Duration

	// DeepTierHour is the wall-clock hour (0-23) the deep tier's daily
	// cron fires at; the deep tier runs once a day at a fixed hour
	// rather than on a from-process-start ticker, so it lands at a
	// predictable, low-traffic time regardless of process restarts.
	DeepTierHour int

	RetryBase time.Duration
	RetryCap  time.Duration

	ShutdownGrace time.Duration
}

// Orchestrator runs the three tickers and guards each tier with a
// coalescing "not already running" flag.
type Orchestrator struct {
	pipeline Pipeline
	rl       RateLimitSource
	runs     *datastore.SyncRunRepo
	cfg      Config
	log      zerolog.Logger

	refreshRunning atomic.Bool
	fullRunning    atomic.Bool
	deepRunning    atomic.Bool

	refreshFailures  atomic.Int32
	refreshRescheduleAt atomic.Int64 // unix nano; 0 means "no override"

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	started bool
}

// New constructs an Orchestrator. runs may be nil, in which case tier
// passes are not persisted (used by tests exercising pipeline logic
// only).
func New(pipeline Pipeline, rl RateLimitSource, runs *datastore.SyncRunRepo, cfg Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		pipeline: pipeline,
		rl:       rl,
		runs:     runs,
		cfg:      cfg,
		log:      log.With().Str("component", "sync_orchestrator").Logger(),
	}
}

// Start launches the three tier tickers. Safe to call once; a second
// call is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()

	o.wg.Add(3)
	go o.runTicker(runCtx, TierRefresh, o.cfg.RefreshInterval, &o.refreshRunning)
	go o.runTicker(runCtx, TierFull, o.cfg.FullInterval, &o.fullRunning)
	go o.runDeepCron(runCtx)
}

// runDeepCron fires the deep tier once a day at the configured
// wall-clock hour, coalescing with the same "not already running"
// guard the ticker-driven tiers use.
func (o *Orchestrator) runDeepCron(ctx context.Context) {
	defer o.wg.Done()

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("0 %d * * *", o.cfg.DeepTierHour), func() {
		if !o.deepRunning.CompareAndSwap(false, true) {
			o.log.Debug().Str("tier", string(TierDeep)).Msg("tick coalesced, previous run still in flight")
			return
		}
		defer o.deepRunning.Store(false)
		o.runTier(ctx, TierDeep)
	})
	if err != nil {
		o.log.Error().Err(err).Msg("failed to schedule deep tier cron")
		return
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

// Stop signals all in-flight jobs via context cancellation, waits up
// to the configured grace period, then returns.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.started = false
	o.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	grace := o.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	select {
	case <-done:
	case <-time.After(grace):
		o.log.Warn().Msg("shutdown grace period elapsed with jobs still running")
	}
}

func (o *Orchestrator) runTicker(ctx context.Context, tier Tier, interval time.Duration, running *atomic.Bool) {
	defer o.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if tier == TierRefresh {
				if next := o.refreshRescheduleAt.Load(); next != 0 && now.UnixNano() < next {
					o.log.Debug().Msg("refresh tier tick skipped, rate-limit reschedule still pending")
					continue
				}
			}
			if !running.CompareAndSwap(false, true) {
				o.log.Debug().Str("tier", string(tier)).Msg("tick coalesced, previous run still in flight")
				continue
			}
			o.wg.Add(1)
			go func() {
				defer o.wg.Done()
				defer running.Store(false)
				o.runTier(ctx, tier)
			}()
		}
	}
}

// runTier executes one tier pass across every active wallet and
// persists the run record, per the partial-failure-protection rule:
// a per-wallet failure is accumulated, not fatal.
func (o *Orchestrator) runTier(ctx context.Context, tier Tier) RunResult {
	result := RunResult{Tier: tier, StartedAt: time.Now()}

	if tier == TierRefresh && o.rl != nil {
		if retryAfter, active := o.rl.CurrentRetryAfter(); active {
			o.scheduleRefreshBackoff(retryAfter)
		}
	}

	var runID int64
	if o.runs != nil {
		id, err := o.runs.Start(ctx, string(tier))
		if err != nil {
			o.log.Error().Err(err).Msg("failed to record sync run start")
		}
		runID = id
	}

	wallets, err := o.pipeline.ActiveWallets(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("active wallets: %v", err))
		o.finishRun(ctx, runID, result)
		return result
	}

	for _, wallet := range wallets {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "cancelled mid-run")
			break
		}
		if err := o.runWalletSteps(ctx, tier, wallet); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", wallet, err))
			if isRateLimit, retryAfter := classifyRateLimit(err); isRateLimit && tier == TierRefresh {
				result.RateLimited = true
				result.RetryAfter = retryAfter
				o.scheduleRefreshBackoff(retryAfter)
			}
		}
	}

	if !result.RateLimited && tier == TierRefresh {
		o.refreshFailures.Store(0)
		o.refreshRescheduleAt.Store(0)
	}

	result.Finished = time.Now()
	o.finishRun(ctx, runID, result)
	return result
}

func (o *Orchestrator) finishRun(ctx context.Context, runID int64, result RunResult) {
	if o.runs == nil || runID == 0 {
		return
	}
	if err := o.runs.Finish(ctx, runID, result.ok(), result.Errors); err != nil {
		o.log.Error().Err(err).Msg("failed to record sync run finish")
	}
}

// scheduleRefreshBackoff implements the one-shot reschedule: next
// refresh tick is suppressed until now + max(retryAfter, base*2^failures),
// capped.
func (o *Orchestrator) scheduleRefreshBackoff(retryAfter time.Duration) {
	failures := o.refreshFailures.Add(1)
	backoff := o.cfg.RetryBase * time.Duration(1<<uint(failures-1))
	if backoff > o.cfg.RetryCap {
		backoff = o.cfg.RetryCap
	}
	delay := backoff
	if retryAfter > delay {
		delay = retryAfter
	}
	if delay > o.cfg.RetryCap {
		delay = o.cfg.RetryCap
	}
	o.refreshRescheduleAt.Store(time.Now().Add(delay).UnixNano())
}

func (o *Orchestrator) runWalletSteps(ctx context.Context, tier Tier, wallet string) error {
	if err := o.pipeline.SyncPositions(ctx, wallet); err != nil {
		return err
	}
	if err := o.pipeline.RefreshValidators(ctx, wallet); err != nil {
		return err
	}
	if err := o.pipeline.ComputeUnrealized(ctx, wallet); err != nil {
		return err
	}
	if err := o.pipeline.WriteSnapshot(ctx, wallet); err != nil {
		return err
	}
	if tier == TierRefresh {
		return nil
	}

	if err := o.pipeline.SyncTransactions(ctx, wallet); err != nil {
		return err
	}
	if err := o.pipeline.RecomputeCostBasis(ctx, wallet); err != nil {
		return err
	}
	if err := o.pipeline.RefreshYield(ctx, wallet); err != nil {
		return err
	}
	if err := o.pipeline.EvaluateRisk(ctx, wallet); err != nil {
		return err
	}
	if tier == TierFull {
		return nil
	}

	if err := o.pipeline.RefreshSlippageSurfaces(ctx, wallet); err != nil {
		return err
	}
	if err := o.pipeline.RecomputeExecutableNAV(ctx, wallet); err != nil {
		return err
	}
	return o.pipeline.RecordNAVHistory(ctx, wallet)
}

// RunOnce executes a single named tier pass synchronously, bypassing
// the ticker and the coalescing guard. Used by callers that want an
// immediate sync (e.g. a manual trigger) and by tests.
func (o *Orchestrator) RunOnce(ctx context.Context, tier Tier) RunResult {
	return o.runTier(ctx, tier)
}

// RateLimitError is the signal a Pipeline implementation wraps an
// upstream.RateLimitedError in, so this package stays free of an
// upstream import while still recognizing the condition via errors.As.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string { return fmt.Sprintf("rate limited: %v", e.Err) }
func (e *RateLimitError) Unwrap() error { return e.Err }

// classifyRateLimit reports whether err is (or wraps) a RateLimitError
// and, if so, the retry-after hint it carries.
func classifyRateLimit(err error) (isRateLimit bool, retryAfter time.Duration) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true, rl.RetryAfter
	}
	return false, 0
}

// MinRecordsGuard blocks an entire-dataset overwrite when fewer than
// min records were returned upstream, avoiding wiping the store on a
// truncated response.
func MinRecordsGuard(dataset string, got, min int) error {
	if got < min {
		return fmt.Errorf("refusing to overwrite %s: got %d records, want at least %d", dataset, got, min)
	}
	return nil
}
