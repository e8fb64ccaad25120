// Package gateway provides HTTP handlers for the admin surface.
package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

const defaultMaxBodyBytes = 1 << 20

func (t *HTTPTransport) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", t.handleHealth)
	mux.HandleFunc("/ready", t.handleReady)
	mux.HandleFunc("/metrics", t.handleMetrics)
	mux.HandleFunc("/metrics/latency", t.handleLatency)
	mux.HandleFunc("/circuit-breakers", t.handleBreakers)
	mux.HandleFunc("/circuit-breakers/reset", t.handleBreakersReset)
	mux.HandleFunc("/clients", t.handleClients)
	mux.HandleFunc("/clients/", t.handleClientTier)
	mux.HandleFunc("/rate-limits/status/", t.handleRateLimitStatus)
	mux.HandleFunc("/rate-limits/reset/", t.handleRateLimitReset)
	if t.promHandler != nil {
		mux.Handle("/metrics/prometheus", t.promHandler)
	}
	mux.Handle("/api/", t.pipeline)
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	services := map[string]string{}
	if t.health != nil {
		for name, healthy := range t.health.Status() {
			if healthy {
				services[name] = "healthy"
			} else {
				services[name] = "unhealthy"
			}
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: t.metrics.Uptime(),
		Services:      services,
	})
}

func (t *HTTPTransport) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.appReady != nil && t.appReady() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

func (t *HTTPTransport) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snap := t.metrics.Snapshot()
	resp := metricsResponse{
		UptimeSeconds:        snap.UptimeSeconds,
		AllowedTotal:         snap.AllowedTotal,
		RateLimitedTotal:     snap.RateLimitedTotal,
		CircuitRejectedTotal: snap.CircuitRejectedTotal,
		Routes:               map[string]routeMetricsResponse{},
		CircuitBreakerStates: map[string]string{},
	}
	for route, rs := range snap.Routes {
		resp.Routes[route] = routeMetricsResponse{
			RequestsTotal: rs.RequestsTotal,
			ByStatusClass: rs.ByStatusClass,
			ErrorsTotal:   rs.ErrorsTotal,
		}
	}
	for _, snapshot := range t.breakers.Snapshot() {
		resp.CircuitBreakerStates[snapshot.Name] = snapshot.State
	}
	writeJSON(w, http.StatusOK, resp)
}

func (t *HTTPTransport) handleLatency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]latencyResponse{}
	for route, quantiles := range t.metrics.LatencyByRoute() {
		resp[route] = fromLatencyQuantiles(quantiles)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (t *HTTPTransport) handleBreakers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snapshots := t.breakers.Snapshot()
	resp := make([]breakerResponse, len(snapshots))
	for i, snapshot := range snapshots {
		resp[i] = fromBreakerSnapshot(snapshot)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (t *HTTPTransport) handleBreakersReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	t.breakers.ResetAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (t *HTTPTransport) handleClients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	statuses := t.clients.List()
	resp := make([]clientStatusResponse, len(statuses))
	for i, status := range statuses {
		resp[i] = fromClientStatus(status)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (t *HTTPTransport) handleClientTier(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	clientID, ok := strings.CutSuffix(strings.TrimPrefix(r.URL.Path, "/clients/"), "/tier")
	if !ok || clientID == "" || strings.Contains(clientID, "/") {
		t.writeError(w, r, http.StatusNotFound, ErrNotFound)
		return
	}
	var req tierRequest
	if err := t.decodeJSON(w, r, &req); err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	tier, err := t.clients.SetTier(clientID, req.Tier)
	if err != nil {
		t.writeError(w, r, statusForCode(CodeOf(err)), err)
		return
	}
	writeJSON(w, http.StatusOK, tierResponse{ClientID: clientID, Tier: tier.Name})
}

func (t *HTTPTransport) handleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	clientID := strings.TrimPrefix(r.URL.Path, "/rate-limits/status/")
	status, ok := t.clients.Status(clientID)
	if clientID == "" || !ok {
		t.writeError(w, r, http.StatusNotFound, ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, fromClientStatus(status))
}

func (t *HTTPTransport) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	clientID := strings.TrimPrefix(r.URL.Path, "/rate-limits/reset/")
	if clientID == "" || !t.clients.Reset(clientID) {
		t.writeError(w, r, http.StatusNotFound, ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "client_id": clientID})
}

func (t *HTTPTransport) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrInvalidInput
	}
	maxBytes := t.maxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return ErrInvalidInput
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return ErrInvalidInput
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (t *HTTPTransport) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if t != nil {
		t.logRequestError(r, status, err)
	}
	writeJSON(w, status, errorResponse{Error: errorLabel(err)})
}

func errorLabel(err error) string {
	switch CodeOf(err) {
	case CodeUnknownTier:
		return "unknown_tier"
	case CodeNotFound:
		return "not_found"
	case CodeInvalidInput:
		return "invalid_input"
	default:
		if err != nil {
			return err.Error()
		}
		return "error"
	}
}

func statusForCode(code ErrorCode) int {
	switch code {
	case CodeInvalidInput, CodeUnknownTier:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (t *HTTPTransport) logRequestError(r *http.Request, status int, err error) {
	if t == nil || t.logger == nil || r == nil || err == nil {
		return
	}
	fields := map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
		"error":  err.Error(),
	}
	if status >= http.StatusInternalServerError {
		t.logger.Error("http request error", fields)
		return
	}
	t.logger.Info("http request error", fields)
}
