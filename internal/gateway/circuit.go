// Package gateway provides a circuit breaker.
package gateway

import (
	"sync"
	"time"
)

// CircuitState represents breaker state.
type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the lowercase state label.
func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitOptions configures breaker thresholds.
type CircuitOptions struct {
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration
}

// CircuitBreaker tracks consecutive outcomes for one upstream and controls
// access. In the half-open state a single probe is admitted at a time; the
// probe token and the consecutive counters move together under one lock.
type CircuitBreaker struct {
	mu                   sync.Mutex
	opts                 CircuitOptions
	state                CircuitState
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
	stateChangedAt       time.Time
	probeInFlight        bool
	totalRequests        int64
	totalSuccesses       int64
	totalFailures        int64
}

// NewCircuitBreaker constructs a breaker with defaults.
func NewCircuitBreaker(opts CircuitOptions, now time.Time) *CircuitBreaker {
	if opts.FailureThreshold < 1 {
		opts.FailureThreshold = 5
	}
	if opts.SuccessThreshold < 1 {
		opts.SuccessThreshold = 3
	}
	if opts.RecoveryTimeout <= 0 {
		opts.RecoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{opts: opts, state: CircuitClosed, stateChangedAt: now}
}

// Allow reports whether the call should proceed. The second return value is
// the remaining recovery window when the call is rejected in the open state.
func (cb *CircuitBreaker) Allow(now time.Time) (bool, time.Duration) {
	if cb == nil {
		return true, 0
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case CircuitClosed:
		return true, 0
	case CircuitOpen:
		elapsed := now.Sub(cb.openedAt)
		if elapsed >= cb.opts.RecoveryTimeout {
			cb.transition(CircuitHalfOpen, now)
			cb.probeInFlight = true
			return true, 0
		}
		return false, cb.opts.RecoveryTimeout - elapsed
	default: // CircuitHalfOpen
		if cb.probeInFlight {
			return false, 0
		}
		cb.probeInFlight = true
		return true, 0
	}
}

// Report records the outcome of an admitted call. It must be called exactly
// once per admitted call.
func (cb *CircuitBreaker) Report(success bool, now time.Time) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false
	cb.totalRequests++
	if success {
		cb.totalSuccesses++
	} else {
		cb.totalFailures++
	}
	switch cb.state {
	case CircuitClosed:
		if success {
			cb.consecutiveFailures = 0
			cb.consecutiveSuccesses++
			return
		}
		cb.consecutiveSuccesses = 0
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.opts.FailureThreshold {
			cb.transition(CircuitOpen, now)
			cb.openedAt = now
		}
	case CircuitHalfOpen:
		if !success {
			cb.transition(CircuitOpen, now)
			cb.openedAt = now
			return
		}
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.opts.SuccessThreshold {
			cb.transition(CircuitClosed, now)
		}
	default: // CircuitOpen
		// Late report for a call admitted before the trip; totals only.
	}
}

// Reset returns the breaker to the closed state with counters cleared.
func (cb *CircuitBreaker) Reset(now time.Time) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(CircuitClosed, now)
	cb.openedAt = time.Time{}
	cb.probeInFlight = false
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(state CircuitState, now time.Time) {
	cb.state = state
	cb.stateChangedAt = now
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.probeInFlight = false
}
