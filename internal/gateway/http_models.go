// Package gateway provides HTTP wire models.
package gateway

type errorResponse struct {
	Error string `json:"error"`
}

type rateLimitedResponse struct {
	Error      string  `json:"error"`
	RetryAfter float64 `json:"retry_after"`
}

type circuitOpenResponse struct {
	Error    string `json:"error"`
	Upstream string `json:"upstream"`
}

type healthResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Services      map[string]string `json:"services"`
}

type tierRequest struct {
	Tier string `json:"tier"`
}

type tierResponse struct {
	ClientID string `json:"client_id"`
	Tier     string `json:"tier"`
}

type clientStatusResponse struct {
	ClientID        string  `json:"client_id"`
	Tier            string  `json:"tier"`
	AvailableTokens float64 `json:"available_tokens"`
	Capacity        int     `json:"capacity"`
	RefillPerSecond float64 `json:"refill_per_second"`
}

type latencyResponse struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type routeMetricsResponse struct {
	RequestsTotal int64            `json:"requests_total"`
	ByStatusClass map[string]int64 `json:"by_status_class"`
	ErrorsTotal   int64            `json:"errors_total"`
}

type metricsResponse struct {
	UptimeSeconds        float64                         `json:"uptime_seconds"`
	AllowedTotal         int64                           `json:"allowed_total"`
	RateLimitedTotal     int64                           `json:"rate_limited_total"`
	CircuitRejectedTotal int64                           `json:"circuit_rejected_total"`
	Routes               map[string]routeMetricsResponse `json:"routes"`
	CircuitBreakerStates map[string]string               `json:"circuit_breaker_states"`
}

type breakerResponse struct {
	Name                 string  `json:"name"`
	State                string  `json:"state"`
	ConsecutiveFailures  int     `json:"consecutive_failures"`
	ConsecutiveSuccesses int     `json:"consecutive_successes"`
	TotalRequests        int64   `json:"total_requests"`
	TotalSuccesses       int64   `json:"total_successes"`
	TotalFailures        int64   `json:"total_failures"`
	OpenedAt             string  `json:"opened_at,omitempty"`
	TimeInStateSeconds   float64 `json:"time_in_state_seconds"`
}

func fromClientStatus(status ClientStatus) clientStatusResponse {
	return clientStatusResponse{
		ClientID:        status.ClientID,
		Tier:            status.Tier,
		AvailableTokens: status.AvailableTokens,
		Capacity:        status.Capacity,
		RefillPerSecond: status.RefillPerSecond,
	}
}

func fromBreakerSnapshot(snap BreakerSnapshot) breakerResponse {
	resp := breakerResponse{
		Name:                 snap.Name,
		State:                snap.State,
		ConsecutiveFailures:  snap.ConsecutiveFailures,
		ConsecutiveSuccesses: snap.ConsecutiveSuccesses,
		TotalRequests:        snap.TotalRequests,
		TotalSuccesses:       snap.TotalSuccesses,
		TotalFailures:        snap.TotalFailures,
		TimeInStateSeconds:   snap.TimeInState.Seconds(),
	}
	if !snap.OpenedAt.IsZero() {
		resp.OpenedAt = snap.OpenedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	return resp
}

func fromLatencyQuantiles(q LatencyQuantiles) latencyResponse {
	return latencyResponse{P50: q.P50, P90: q.P90, P95: q.P95, P99: q.P99}
}
