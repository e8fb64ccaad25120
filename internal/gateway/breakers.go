// Package gateway provides the per-upstream breaker registry.
package gateway

import (
	"sort"
	"sync"
	"time"
)

// BreakerSnapshot is a point-in-time view of one breaker for the admin
// endpoint.
type BreakerSnapshot struct {
	Name                 string
	State                string
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	TotalRequests        int64
	TotalSuccesses       int64
	TotalFailures        int64
	OpenedAt             time.Time
	TimeInState          time.Duration
}

// BreakerRegistry maps upstream names to circuit breakers, created lazily
// with the options configured for that upstream.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	options  map[string]CircuitOptions
	defaults CircuitOptions
	clock    Clock
}

// NewBreakerRegistry constructs a registry. The options map carries
// per-upstream thresholds; upstreams absent from it get the defaults.
func NewBreakerRegistry(options map[string]CircuitOptions, defaults CircuitOptions, clock Clock) *BreakerRegistry {
	if clock == nil {
		clock = SystemClock{}
	}
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		options:  options,
		defaults: defaults,
		clock:    clock,
	}
}

// Allow reports whether a call to the upstream should proceed.
func (r *BreakerRegistry) Allow(upstream string, now time.Time) (bool, time.Duration) {
	if r == nil {
		return true, 0
	}
	return r.get(upstream).Allow(now)
}

// Report records the outcome of an admitted call to the upstream.
func (r *BreakerRegistry) Report(upstream string, success bool, now time.Time) {
	if r == nil {
		return
	}
	r.get(upstream).Report(success, now)
}

// ResetAll returns every breaker to the closed state.
func (r *BreakerRegistry) ResetAll() {
	if r == nil {
		return
	}
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cb := range r.breakers {
		cb.Reset(now)
	}
}

// Snapshot returns a view of all breakers sorted by upstream name.
func (r *BreakerRegistry) Snapshot() []BreakerSnapshot {
	if r == nil {
		return nil
	}
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BreakerSnapshot, 0, len(r.breakers))
	for name, cb := range r.breakers {
		out = append(out, cb.snapshot(name, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *BreakerRegistry) get(upstream string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb := r.breakers[upstream]
	if cb == nil {
		opts, ok := r.options[upstream]
		if !ok {
			opts = r.defaults
		}
		cb = NewCircuitBreaker(opts, r.clock.Now())
		r.breakers[upstream] = cb
	}
	return cb
}

func (cb *CircuitBreaker) snapshot(name string, now time.Time) BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerSnapshot{
		Name:                 name,
		State:                cb.state.String(),
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		TotalRequests:        cb.totalRequests,
		TotalSuccesses:       cb.totalSuccesses,
		TotalFailures:        cb.totalFailures,
		OpenedAt:             cb.openedAt,
		TimeInState:          now.Sub(cb.stateChangedAt),
	}
}
