// Package metrics provides process-local counters and gauges for cache
// hit/miss, API call outcomes, sync tier success/failure, and drift
// counters (§2's "Metrics" component). Updates are best-effort and never
// fail the caller, matching §5's resource model.
package metrics

import "sync"

// Registry is a process-local, mutex-guarded collector. There is no
// serving layer in this spec (§1), so registry contents are exposed only
// through Snapshot; the health endpoint does not read them.
type Registry struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
	}
}

// IncCounter increments a named counter, optionally scoped by a label
// (e.g. a cache key, an endpoint name, a tier name). A nil Registry is a
// safe no-op so callers can pass a nil registry in tests without guards.
func (r *Registry) IncCounter(name string, label string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[counterKey(name, label)]++
}

// AddCounter increments a named counter by n.
func (r *Registry) AddCounter(name string, label string, n int64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[counterKey(name, label)] += n
}

// SetGauge sets a named gauge to value.
func (r *Registry) SetGauge(name string, label string, value float64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[counterKey(name, label)] = value
}

// Counter returns the current value of a counter.
func (r *Registry) Counter(name string, label string) int64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[counterKey(name, label)]
}

// Gauge returns the current value of a gauge.
func (r *Registry) Gauge(name string, label string) float64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gauges[counterKey(name, label)]
}

// Snapshot returns a copy of all counters and gauges, for tests.
func (r *Registry) Snapshot() (counters map[string]int64, gauges map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counters = make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		counters[k] = v
	}
	gauges = make(map[string]float64, len(r.gauges))
	for k, v := range r.gauges {
		gauges[k] = v
	}
	return counters, gauges
}

func counterKey(name, label string) string {
	if label == "" {
		return name
	}
	return name + ":" + label
}
