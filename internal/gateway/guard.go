// Package gateway provides the global inbound rate guard.
package gateway

import (
	"net/http"

	"golang.org/x/time/rate"
)

// NewInboundGuard returns middleware that caps the gateway-wide inbound
// request rate in front of per-client admission. A non-positive rps disables
// the guard.
func NewInboundGuard(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set(headerRetryAfter, "1")
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate_limited"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
