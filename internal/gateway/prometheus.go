// Package gateway provides Prometheus exposition for the metrics store.
package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promMetrics mirrors the in-memory counters into Prometheus collectors so
// the same numbers are scrapeable. A nil receiver disables the mirror.
type promMetrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	gates    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newPromMetrics() *promMetrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "requests_total",
		Help:      "Forwarded requests by route and status class.",
	}, []string{"route", "class"})
	gates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "gate_total",
		Help:      "Admission outcomes by gate kind.",
	}, []string{"kind"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gateway",
		Name:      "request_latency_ms",
		Help:      "Upstream round-trip latency in milliseconds.",
		Buckets:   []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"route"})
	registry.MustRegister(requests, gates, latency)
	return &promMetrics{registry: registry, requests: requests, gates: gates, latency: latency}
}

// EnablePrometheus attaches a Prometheus mirror and returns its handler.
func (m *MetricsStore) EnablePrometheus() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	if m.prom == nil {
		m.prom = newPromMetrics()
	}
	return promhttp.HandlerFor(m.prom.registry, promhttp.HandlerOpts{})
}

func (p *promMetrics) observeRequest(route, class string, latencyMS float64) {
	if p == nil {
		return
	}
	p.requests.WithLabelValues(route, class).Inc()
	p.latency.WithLabelValues(route).Observe(latencyMS)
}

func (p *promMetrics) observeGate(kind GateKind) {
	if p == nil {
		return
	}
	p.gates.WithLabelValues(string(kind)).Inc()
}
