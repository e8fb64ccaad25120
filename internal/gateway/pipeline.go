// Package gateway provides the request admission pipeline.
package gateway

import (
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	headerRequestID          = "X-Request-ID"
	headerGatewayLatency     = "X-Gateway-Latency-Ms"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRetryAfter         = "Retry-After"
)

// Pipeline admits, forwards, and observes proxied requests. The admission
// steps are non-blocking; the only suspension point is the upstream call.
type Pipeline struct {
	clients      *ClientRegistry
	breakers     *BreakerRegistry
	metrics      *MetricsStore
	routes       *RouteTable
	forward      Forwarder
	clock        Clock
	logger       Logger
	clientHeader string
	failOn429    map[string]bool
}

// NewPipeline constructs a pipeline over its collaborators.
func NewPipeline(clients *ClientRegistry, breakers *BreakerRegistry, metrics *MetricsStore, routes *RouteTable, forward Forwarder, clock Clock, logger Logger, clientHeader string, failOn429 map[string]bool) *Pipeline {
	if clock == nil {
		clock = SystemClock{}
	}
	if clientHeader == "" {
		clientHeader = "X-Client-ID"
	}
	return &Pipeline{
		clients:      clients,
		breakers:     breakers,
		metrics:      metrics,
		routes:       routes,
		forward:      forward,
		clock:        clock,
		logger:       logger,
		clientHeader: clientHeader,
		failOn429:    failOn429,
	}
}

// ServeHTTP runs one request through admission and forwarding.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(headerRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
		r.Header.Set(headerRequestID, requestID)
	}
	w.Header().Set(headerRequestID, requestID)

	clientID := p.clientID(r)
	path := r.URL.Path
	now := p.clock.Now()

	upstream := ""
	admitted := false
	reported := false
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if admitted && !reported {
			p.breakers.Report(upstream, false, p.clock.Now())
		}
		p.logError("panic in pipeline", map[string]any{
			"request_id": requestID,
			"client_id":  clientID,
			"path":       path,
			"panic":      rec,
		})
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
	}()

	cost := p.routes.Cost(path)
	check := p.clients.Check(clientID, cost, now)
	w.Header().Set(headerRateLimitRemaining, strconv.Itoa(int(check.Remaining)))
	if !check.Allowed {
		p.metrics.RecordGate(GateRateLimited)
		retryAfter := check.RetryAfter.Seconds()
		w.Header().Set(headerRetryAfter, retryAfterHeader(check.RetryAfter))
		p.logInfo("request rate limited", map[string]any{
			"request_id":  requestID,
			"client_id":   clientID,
			"path":        path,
			"cost":        cost,
			"retry_after": retryAfter,
			"permanent":   check.Permanent,
		})
		writeJSON(w, http.StatusTooManyRequests, rateLimitedResponse{Error: "rate_limited", RetryAfter: retryAfter})
		return
	}

	var ok bool
	upstream, ok = p.routes.Upstream(path)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown_route"})
		return
	}

	allowed, remaining := p.breakers.Allow(upstream, now)
	if !allowed {
		p.metrics.RecordGate(GateCircuitRejected)
		w.Header().Set(headerRetryAfter, retryAfterHeader(remaining))
		p.logInfo("request rejected by circuit breaker", map[string]any{
			"request_id": requestID,
			"client_id":  clientID,
			"path":       path,
			"upstream":   upstream,
		})
		writeJSON(w, http.StatusServiceUnavailable, circuitOpenResponse{Error: "upstream_unavailable", Upstream: upstream})
		return
	}
	admitted = true

	start := p.clock.Now()
	resp, err := p.forward.Forward(r.Context(), upstream, r)
	elapsedMS := float64(p.clock.Now().Sub(start)) / float64(time.Millisecond)
	label := p.routes.Label(path)
	if err != nil {
		p.breakers.Report(upstream, false, p.clock.Now())
		reported = true
		status := http.StatusBadGateway
		body := errorResponse{Error: "upstream_error"}
		if CodeOf(err) == CodeUpstreamTimeout {
			status = http.StatusGatewayTimeout
			body = errorResponse{Error: "upstream_timeout"}
		}
		p.metrics.Record(label, status, elapsedMS)
		p.metrics.RecordGate(GateAllowed)
		w.Header().Set(headerGatewayLatency, formatLatency(elapsedMS))
		p.logError("upstream request failed", map[string]any{
			"request_id": requestID,
			"client_id":  clientID,
			"path":       path,
			"upstream":   upstream,
			"error":      err.Error(),
			"latency_ms": elapsedMS,
		})
		writeJSON(w, status, body)
		return
	}
	defer resp.Body.Close()

	success := resp.StatusCode < 500
	if success && p.failOn429[upstream] && resp.StatusCode == http.StatusTooManyRequests {
		success = false
	}
	p.breakers.Report(upstream, success, p.clock.Now())
	reported = true
	p.metrics.Record(label, resp.StatusCode, elapsedMS)
	p.metrics.RecordGate(GateAllowed)

	header := w.Header()
	for key, values := range resp.Header {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	header.Set(headerGatewayLatency, formatLatency(elapsedMS))
	header.Set(headerRequestID, requestID)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)

	p.logInfo("request completed", map[string]any{
		"request_id": requestID,
		"client_id":  clientID,
		"method":     r.Method,
		"path":       path,
		"upstream":   upstream,
		"status":     resp.StatusCode,
		"latency_ms": elapsedMS,
	})
}

func (p *Pipeline) clientID(r *http.Request) string {
	if value := r.Header.Get(p.clientHeader); value != "" {
		return value
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "anonymous"
}

func (p *Pipeline) logInfo(msg string, fields map[string]any) {
	if p == nil || p.logger == nil {
		return
	}
	p.logger.Info(msg, fields)
}

func (p *Pipeline) logError(msg string, fields map[string]any) {
	if p == nil || p.logger == nil {
		return
	}
	p.logger.Error(msg, fields)
}

// retryAfterHeader renders a Retry-After value in whole seconds, rounded up
// and capped at one hour, never less than one second.
func retryAfterHeader(d time.Duration) string {
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func formatLatency(ms float64) string {
	return strconv.FormatFloat(ms, 'f', 2, 64)
}
