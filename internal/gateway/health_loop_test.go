package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func TestHealthChecker_TracksUpstreamHealth(t *testing.T) {
	t.Parallel()

	var healthy atomic.Bool
	healthy.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	baseURL, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checker := NewHealthChecker(map[string]HealthTarget{
		"backend": {BaseURL: baseURL, Path: "/health"},
	}, time.Minute, nil)

	checker.checkAll(context.Background())
	if status := checker.Status(); !status["backend"] {
		t.Fatalf("expected healthy upstream: %#v", status)
	}

	healthy.Store(false)
	checker.checkAll(context.Background())
	if status := checker.Status(); status["backend"] {
		t.Fatalf("expected unhealthy upstream: %#v", status)
	}
}

func TestHealthChecker_SkipsTargetsWithoutPath(t *testing.T) {
	t.Parallel()

	baseURL, _ := url.Parse("http://localhost:9000")
	checker := NewHealthChecker(map[string]HealthTarget{
		"silent": {BaseURL: baseURL},
	}, time.Minute, nil)

	checker.checkAll(context.Background())
	if status := checker.Status(); len(status) != 0 {
		t.Fatalf("expected no probes for pathless target: %#v", status)
	}
}
