// Package gateway provides in-memory request metrics.
package gateway

import (
	"sync"
	"sync/atomic"
	"time"
)

// GateKind labels an admission outcome counter.
type GateKind string

const (
	GateAllowed         GateKind = "allowed"
	GateRateLimited     GateKind = "rate_limited"
	GateCircuitRejected GateKind = "circuit_rejected"
)

// RouteSnapshot aggregates one route's counters.
type RouteSnapshot struct {
	RequestsTotal int64
	ByStatusClass map[string]int64
	ErrorsTotal   int64
	Latency       LatencyQuantiles
}

// MetricsSnapshot is an immutable view of all counters at the moment of call.
type MetricsSnapshot struct {
	UptimeSeconds        float64
	AllowedTotal         int64
	RateLimitedTotal     int64
	CircuitRejectedTotal int64
	Routes               map[string]RouteSnapshot
}

// MetricsStore aggregates per-route counters and latency estimators plus
// global gate counters. Counters are atomic; each route's estimator guards
// its own ring.
type MetricsStore struct {
	routes          sync.Map
	window          int
	allowed         atomic.Int64
	rateLimited     atomic.Int64
	circuitRejected atomic.Int64
	start           time.Time
	clock           Clock
	prom            *promMetrics
}

type routeMetrics struct {
	requests  atomic.Int64
	status2xx atomic.Int64
	status3xx atomic.Int64
	status4xx atomic.Int64
	status5xx atomic.Int64
	errors    atomic.Int64
	latency   *LatencyEstimator
}

// NewMetricsStore constructs a store whose estimators keep window samples.
func NewMetricsStore(window int, clock Clock) *MetricsStore {
	if window < 1 {
		window = DefaultLatencyWindow
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &MetricsStore{window: window, clock: clock, start: clock.Now()}
}

// Record counts one forwarded request outcome for a route.
func (m *MetricsStore) Record(route string, statusCode int, latencyMS float64) {
	if m == nil || route == "" {
		return
	}
	rm := m.route(route)
	rm.requests.Add(1)
	class := statusClass(statusCode)
	switch class {
	case "2xx":
		rm.status2xx.Add(1)
	case "3xx":
		rm.status3xx.Add(1)
	case "4xx":
		rm.status4xx.Add(1)
	case "5xx":
		rm.status5xx.Add(1)
	}
	if statusCode >= 500 {
		rm.errors.Add(1)
	}
	rm.latency.Observe(latencyMS)
	m.prom.observeRequest(route, class, latencyMS)
}

// RecordGate counts one admission outcome.
func (m *MetricsStore) RecordGate(kind GateKind) {
	if m == nil {
		return
	}
	switch kind {
	case GateAllowed:
		m.allowed.Add(1)
	case GateRateLimited:
		m.rateLimited.Add(1)
	case GateCircuitRejected:
		m.circuitRejected.Add(1)
	default:
		return
	}
	m.prom.observeGate(kind)
}

// Uptime reports seconds since the store was created.
func (m *MetricsStore) Uptime() float64 {
	if m == nil {
		return 0
	}
	return m.clock.Now().Sub(m.start).Seconds()
}

// Snapshot exports all counters and per-route percentiles.
func (m *MetricsStore) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{Routes: map[string]RouteSnapshot{}}
	}
	snap := MetricsSnapshot{
		UptimeSeconds:        m.clock.Now().Sub(m.start).Seconds(),
		AllowedTotal:         m.allowed.Load(),
		RateLimitedTotal:     m.rateLimited.Load(),
		CircuitRejectedTotal: m.circuitRejected.Load(),
		Routes:               map[string]RouteSnapshot{},
	}
	m.routes.Range(func(key, value any) bool {
		route, ok := key.(string)
		if !ok {
			return true
		}
		rm, ok := value.(*routeMetrics)
		if !ok || rm == nil {
			return true
		}
		snap.Routes[route] = RouteSnapshot{
			RequestsTotal: rm.requests.Load(),
			ByStatusClass: map[string]int64{
				"2xx": rm.status2xx.Load(),
				"3xx": rm.status3xx.Load(),
				"4xx": rm.status4xx.Load(),
				"5xx": rm.status5xx.Load(),
			},
			ErrorsTotal: rm.errors.Load(),
			Latency:     rm.latency.Quantiles(),
		}
		return true
	})
	return snap
}

// LatencyByRoute exports each route's percentile set.
func (m *MetricsStore) LatencyByRoute() map[string]LatencyQuantiles {
	if m == nil {
		return map[string]LatencyQuantiles{}
	}
	out := map[string]LatencyQuantiles{}
	m.routes.Range(func(key, value any) bool {
		route, ok := key.(string)
		if !ok {
			return true
		}
		rm, ok := value.(*routeMetrics)
		if !ok || rm == nil {
			return true
		}
		out[route] = rm.latency.Quantiles()
		return true
	})
	return out
}

func (m *MetricsStore) route(route string) *routeMetrics {
	if existing, ok := m.routes.Load(route); ok {
		if rm, ok := existing.(*routeMetrics); ok {
			return rm
		}
	}
	rm := &routeMetrics{latency: NewLatencyEstimator(m.window)}
	actual, _ := m.routes.LoadOrStore(route, rm)
	if stored, ok := actual.(*routeMetrics); ok {
		return stored
	}
	return rm
}

func statusClass(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500 && statusCode < 600:
		return "5xx"
	default:
		return "other"
	}
}
