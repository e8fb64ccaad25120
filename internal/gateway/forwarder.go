// Package gateway provides the upstream forwarder.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// Forwarder sends an admitted request to a named upstream and returns the
// upstream response. Implementations classify failures with typed codes:
// CodeUnknownRoute for an unconfigured upstream, CodeUpstreamTimeout for
// deadline hits, CodeUpstreamUnavailable for other transport failures.
type Forwarder interface {
	Forward(ctx context.Context, upstream string, r *http.Request) (*http.Response, error)
}

// UpstreamTarget configures one upstream for the HTTP forwarder.
type UpstreamTarget struct {
	BaseURL       *url.URL
	Timeout       time.Duration
	MaxConcurrent int64
}

// HTTPForwarder forwards requests over a shared HTTP client, applying the
// per-upstream timeout and an optional concurrency cap per upstream.
type HTTPForwarder struct {
	client  *http.Client
	targets map[string]*forwardTarget
}

type forwardTarget struct {
	baseURL *url.URL
	timeout time.Duration
	sem     *semaphore.Weighted
}

// Hop-by-hop headers are stripped in both directions.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// NewHTTPForwarder constructs a forwarder over the given upstream targets.
// A nil client falls back to a plain http.Client; per-request deadlines come
// from the per-upstream timeout, not the client.
func NewHTTPForwarder(targets map[string]UpstreamTarget, client *http.Client) *HTTPForwarder {
	if client == nil {
		client = &http.Client{}
	}
	built := make(map[string]*forwardTarget, len(targets))
	for name, target := range targets {
		if target.BaseURL == nil {
			continue
		}
		timeout := target.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ft := &forwardTarget{baseURL: target.BaseURL, timeout: timeout}
		if target.MaxConcurrent > 0 {
			ft.sem = semaphore.NewWeighted(target.MaxConcurrent)
		}
		built[name] = ft
	}
	return &HTTPForwarder{client: client, targets: built}
}

// Forward proxies the request to the named upstream.
func (f *HTTPForwarder) Forward(ctx context.Context, upstream string, r *http.Request) (*http.Response, error) {
	if f == nil || r == nil {
		return nil, ErrInvalidInput
	}
	target := f.targets[upstream]
	if target == nil {
		return nil, Wrap(CodeUnknownRoute, "unknown upstream: "+upstream, nil)
	}
	ctx, cancel := context.WithTimeout(ctx, target.timeout)
	defer cancel()

	if target.sem != nil {
		if err := target.sem.Acquire(ctx, 1); err != nil {
			return nil, classifyForwardError(err, upstream)
		}
		defer target.sem.Release(1)
	}

	outURL := *target.baseURL
	outURL.Path = singleJoin(target.baseURL.Path, r.URL.Path)
	outURL.RawQuery = r.URL.RawQuery

	out, err := http.NewRequestWithContext(ctx, r.Method, outURL.String(), r.Body)
	if err != nil {
		return nil, Wrap(CodeUpstreamUnavailable, "build upstream request", err)
	}
	out.Header = filterHeaders(r.Header)
	out.ContentLength = r.ContentLength

	resp, err := f.client.Do(out)
	if err != nil {
		return nil, classifyForwardError(err, upstream)
	}
	for _, h := range hopByHopHeaders {
		resp.Header.Del(h)
	}
	return resp, nil
}

func classifyForwardError(err error, upstream string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeUpstreamTimeout, "timeout reaching "+upstream, err)
	}
	return Wrap(CodeUpstreamUnavailable, "cannot reach "+upstream, err)
}

func filterHeaders(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for key, values := range in {
		if isHopByHop(key) || strings.EqualFold(key, "Host") {
			continue
		}
		for _, value := range values {
			out.Add(key, value)
		}
	}
	return out
}

func isHopByHop(key string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}

func singleJoin(base, path string) string {
	switch {
	case base == "":
		return path
	case strings.HasSuffix(base, "/") && strings.HasPrefix(path, "/"):
		return base + path[1:]
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(path, "/"):
		return base + "/" + path
	default:
		return base + path
	}
}
