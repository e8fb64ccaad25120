package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forwarderFor(t *testing.T, upstream string, server *httptest.Server, target UpstreamTarget) *HTTPForwarder {
	t.Helper()
	baseURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	target.BaseURL = baseURL
	return NewHTTPForwarder(map[string]UpstreamTarget{upstream: target}, nil)
}

func TestHTTPForwarder_ForwardsMethodPathAndHeaders(t *testing.T) {
	t.Parallel()

	var seen *http.Request
	var seenBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(context.Background())
		seenBody, _ = io.ReadAll(r.Body)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer server.Close()

	forwarder := forwarderFor(t, "backend", server, UpstreamTarget{Timeout: time.Second})

	inbound := httptest.NewRequest("POST", "/api/v1/users?page=2", strings.NewReader("payload"))
	inbound.Header.Set("X-Request-ID", "req-1")
	inbound.Header.Set("Connection", "keep-alive")

	resp, err := forwarder.Forward(context.Background(), "backend", inbound)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "created", string(body))
	assert.Equal(t, "yes", resp.Header.Get("X-Upstream"))

	require.NotNil(t, seen)
	assert.Equal(t, "POST", seen.Method)
	assert.Equal(t, "/api/v1/users", seen.URL.Path)
	assert.Equal(t, "page=2", seen.URL.RawQuery)
	assert.Equal(t, "req-1", seen.Header.Get("X-Request-ID"))
	assert.Empty(t, seen.Header.Get("Connection"), "hop-by-hop headers must be stripped")
	assert.Equal(t, "payload", string(seenBody))
}

func TestHTTPForwarder_JoinsBasePath(t *testing.T) {
	t.Parallel()

	var seenPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	baseURL, err := url.Parse(server.URL + "/mount/")
	require.NoError(t, err)
	forwarder := NewHTTPForwarder(map[string]UpstreamTarget{
		"backend": {BaseURL: baseURL, Timeout: time.Second},
	}, nil)

	resp, err := forwarder.Forward(context.Background(), "backend", httptest.NewRequest("GET", "/api/v1/users", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "/mount/api/v1/users", seenPath)
}

func TestHTTPForwarder_TimeoutClassification(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	forwarder := forwarderFor(t, "backend", server, UpstreamTarget{Timeout: 20 * time.Millisecond})

	_, err := forwarder.Forward(context.Background(), "backend", httptest.NewRequest("GET", "/api/v1/slow", nil))
	require.Error(t, err)
	assert.Equal(t, CodeUpstreamTimeout, CodeOf(err))
}

func TestHTTPForwarder_ConnectFailureClassification(t *testing.T) {
	t.Parallel()

	baseURL, err := url.Parse("http://127.0.0.1:1")
	require.NoError(t, err)
	forwarder := NewHTTPForwarder(map[string]UpstreamTarget{
		"backend": {BaseURL: baseURL, Timeout: time.Second},
	}, nil)

	_, err = forwarder.Forward(context.Background(), "backend", httptest.NewRequest("GET", "/api/v1/users", nil))
	require.Error(t, err)
	assert.Equal(t, CodeUpstreamUnavailable, CodeOf(err))
}

func TestHTTPForwarder_UnknownUpstream(t *testing.T) {
	t.Parallel()

	forwarder := NewHTTPForwarder(nil, nil)
	_, err := forwarder.Forward(context.Background(), "ghost", httptest.NewRequest("GET", "/api", nil))
	require.Error(t, err)
	assert.Equal(t, CodeUnknownRoute, CodeOf(err))
}

func TestHTTPForwarder_ConcurrencyCapQueues(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	forwarder := forwarderFor(t, "backend", server, UpstreamTarget{Timeout: 100 * time.Millisecond, MaxConcurrent: 1})

	first := make(chan error, 1)
	go func() {
		resp, err := forwarder.Forward(context.Background(), "backend", httptest.NewRequest("GET", "/api/a", nil))
		if resp != nil {
			resp.Body.Close()
		}
		first <- err
	}()

	time.Sleep(20 * time.Millisecond)
	// The single slot is held; the second call waits until its deadline.
	_, err := forwarder.Forward(context.Background(), "backend", httptest.NewRequest("GET", "/api/b", nil))
	require.Error(t, err)
	assert.Equal(t, CodeUpstreamTimeout, CodeOf(err))

	close(release)
	<-first
}
