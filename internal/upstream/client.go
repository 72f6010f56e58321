// Package upstream implements the rate-limited HTTP client for the
// treasury's single external collaborator: a read-only analytics API
// covering stake balances, delegation events, accounting income, pool and
// subnet metadata, slippage quotes, validator performance, and extrinsics.
//
// Every call into the analytics API goes through this package; no other
// package performs HTTP directly, matching §4.1.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const requestQueueSize = 256

// Client is the rate-limited HTTP client for the upstream analytics API.
// Requests are serialized through a single worker goroutine so the
// configured rate-limit-per-minute is honored regardless of how many
// goroutines call in concurrently, generalizing the teacher SDK's
// single-delay request queue into a token-bucket limiter with retry and
// backoff.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger

	limiter *rate.Limiter
	backoff *Backoff
	cache   Cache

	maxRetries int

	requestQueue chan requestJob
	stopChan     chan struct{}
	workerDone   chan struct{}
	once         sync.Once

	mu               sync.Mutex
	lastRetryAfter   time.Duration
	lastRetryAfterAt time.Time
}

// Cache is the subset of internal/cache.Store the client needs for
// request-level response caching, kept as an interface so tests can stub it
// without a real sqlite-backed store.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config configures a new Client.
type Config struct {
	BaseURL            string
	APIKey             string
	RateLimitPerMinute int
	RetryBase          time.Duration
	RetryCap           time.Duration
	MaxRetries         int
	RequestTimeout     time.Duration
	Cache              Cache // optional; nil disables request caching
}

// New constructs a Client and starts its rate-limiting worker.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 4
	}

	ratePerSecond := float64(cfg.RateLimitPerMinute) / 60.0
	c := &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout},
		log:          log.With().Str("component", "upstream-client").Logger(),
		limiter:      rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		backoff:      NewBackoff(cfg.RetryBase, cfg.RetryCap),
		cache:        cfg.Cache,
		maxRetries:   cfg.MaxRetries,
		requestQueue: make(chan requestJob, requestQueueSize),
		stopChan:     make(chan struct{}),
		workerDone:   make(chan struct{}),
	}

	go c.worker()
	return c
}

type requestJob struct {
	ctx      context.Context
	method   string
	endpoint string
	params   url.Values
	resultCh chan requestResult
}

type requestResult struct {
	body []byte
	err  error
}

// worker serializes all outbound requests through the rate limiter so the
// process never exceeds RateLimitPerMinute regardless of concurrent callers.
func (c *Client) worker() {
	defer close(c.workerDone)
	for {
		select {
		case <-c.stopChan:
			c.drain()
			return
		case job, ok := <-c.requestQueue:
			if !ok {
				return
			}
			c.process(job)
		}
	}
}

func (c *Client) drain() {
	for {
		select {
		case job, ok := <-c.requestQueue:
			if !ok {
				return
			}
			c.process(job)
		default:
			return
		}
	}
}

func (c *Client) process(job requestJob) {
	if err := c.limiter.Wait(job.ctx); err != nil {
		job.resultCh <- requestResult{err: fmt.Errorf("rate limiter wait: %w", err)}
		return
	}
	body, err := c.doWithRetry(job.ctx, job.method, job.endpoint, job.params)
	job.resultCh <- requestResult{body: body, err: err}
}

// Close gracefully shuts down the rate-limiting worker.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.stopChan)
		<-c.workerDone
	})
}

// Request performs a single call against the upstream API, decoding the
// result into out. When cacheKey is non-empty and a cache is configured, a
// fresh value within cacheTTL short-circuits the HTTP call.
func (c *Client) Request(ctx context.Context, method, endpoint string, params url.Values, cacheKey string, cacheTTL time.Duration, out interface{}) error {
	if cacheKey != "" && c.cache != nil {
		if cached, ok, err := c.cache.Get(ctx, cacheKey); err == nil && ok {
			if err := json.Unmarshal(cached, out); err == nil {
				return nil
			}
		}
	}

	resultCh := make(chan requestResult, 1)
	job := requestJob{ctx: ctx, method: method, endpoint: endpoint, params: params, resultCh: resultCh}

	select {
	case c.requestQueue <- job:
	case <-c.stopChan:
		return fmt.Errorf("upstream: client is closed")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case result := <-resultCh:
		if result.err != nil {
			return result.err
		}
		if err := json.Unmarshal(result.body, out); err != nil {
			return &DecodeError{Endpoint: endpoint, Err: err}
		}
		if cacheKey != "" && c.cache != nil {
			_ = c.cache.Set(ctx, cacheKey, result.body, cacheTTL)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Page is one page of a paginated response: the decoded items plus whether
// the upstream reported further pages.
type Page struct {
	HasMore bool
}

// Paginate fetches all pages of endpoint, up to maxPages, invoking onPage
// for each page's raw body. It yields a finite, restartable sequence: each
// call starts at page 1. The caller's onPage callback is responsible for
// unmarshaling its items and reporting whether another page should be
// fetched via the returned bool; pagination stops when it returns false,
// when maxPages is reached, or when ctx is canceled.
func (c *Client) Paginate(ctx context.Context, endpoint string, params url.Values, maxPages int, pageSize int, onPage func(body []byte) (more bool, err error)) error {
	if params == nil {
		params = url.Values{}
	}
	for page := 1; page <= maxPages; page++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pageParams := cloneValues(params)
		pageParams.Set("page", strconv.Itoa(page))
		pageParams.Set("limit", strconv.Itoa(pageSize))

		resultCh := make(chan requestResult, 1)
		job := requestJob{ctx: ctx, method: http.MethodGet, endpoint: endpoint, params: pageParams, resultCh: resultCh}

		select {
		case c.requestQueue <- job:
		case <-c.stopChan:
			return fmt.Errorf("upstream: client is closed")
		case <-ctx.Done():
			return ctx.Err()
		}

		var result requestResult
		select {
		case result = <-resultCh:
		case <-ctx.Done():
			return ctx.Err()
		}
		if result.err != nil {
			return result.err
		}

		more, err := onPage(result.body)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// HealthCheck performs a cheap, uncached call to confirm the upstream API
// is reachable.
func (c *Client) HealthCheck(ctx context.Context) bool {
	resultCh := make(chan requestResult, 1)
	job := requestJob{ctx: ctx, method: http.MethodGet, endpoint: "/subnet/latest", params: url.Values{}, resultCh: resultCh}

	select {
	case c.requestQueue <- job:
	case <-c.stopChan:
		return false
	case <-ctx.Done():
		return false
	}

	select {
	case result := <-resultCh:
		return result.err == nil
	case <-ctx.Done():
		return false
	}
}

// CurrentRetryAfter reports the most recently observed rate-limit
// retry-after hint, if it was seen within the last minute. Callers (the
// sync orchestrator) use this for tier-level backoff decisions; the client
// itself never sleeps indefinitely.
func (c *Client) CurrentRetryAfter() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastRetryAfterAt.IsZero() || time.Since(c.lastRetryAfterAt) > time.Minute {
		return 0, false
	}
	return c.lastRetryAfter, true
}

func (c *Client) recordRetryAfter(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRetryAfter = d
	c.lastRetryAfterAt = time.Now()
}

// doWithRetry performs the HTTP round trip with the retry/backoff policy
// from §4.1: idempotent GETs retried up to maxRetries, exponential backoff
// with jitter unless the response supplies Retry-After.
func (c *Client) doWithRetry(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		body, retryAfter, err := c.doOnce(ctx, method, endpoint, params)
		if err == nil {
			return body, nil
		}

		var rl *RateLimitedError
		if errors.As(err, &rl) {
			c.log.Warn().Str("endpoint", endpoint).Msg("rate limited by upstream")
			if rl.RetryAfter != nil {
				c.recordRetryAfter(*rl.RetryAfter)
			}
			return nil, err
		}

		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			return nil, err
		}

		lastErr = err
		if attempt == c.maxRetries || !isRetryable(err) {
			return nil, err
		}

		var delay time.Duration
		if retryAfter > 0 {
			delay = c.backoff.ClipToCap(retryAfter)
		} else {
			delay = c.backoff.Delay(attempt)
		}

		c.log.Debug().Str("endpoint", endpoint).Int("attempt", attempt).Dur("delay", delay).Msg("retrying upstream request")
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, params url.Values) (body []byte, retryAfter time.Duration, err error) {
	requestURL := c.baseURL + endpoint
	var req *http.Request
	if method == http.MethodGet {
		u, perr := url.Parse(requestURL)
		if perr != nil {
			return nil, 0, &DecodeError{Endpoint: endpoint, Err: perr}
		}
		u.RawQuery = params.Encode()
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, requestURL, bytes.NewReader([]byte(params.Encode())))
	}
	if err != nil {
		return nil, 0, &TransportError{Endpoint: endpoint, Err: err}
	}

	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &TransportError{Endpoint: endpoint, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		ra := parseRetryAfter(resp.Header.Get("Retry-After"))
		var raPtr *time.Duration
		if ra > 0 {
			raPtr = &ra
		}
		return nil, ra, &RateLimitedError{RetryAfter: raPtr, Endpoint: endpoint}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := string(data)
		if len(excerpt) > 500 {
			excerpt = excerpt[:500] + "..."
		}
		return nil, 0, &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, BodyExcerpt: excerpt}
	}

	return data, 0, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}

func isRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode >= 500
	}
	return false
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		cp := make([]string, len(vals))
		copy(cp, vals)
		out[k] = cp
	}
	return out
}
