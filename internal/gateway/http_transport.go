// Package gateway provides the HTTP transport.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
)

// HTTPTransport serves the proxy and admin APIs over HTTP.
type HTTPTransport struct {
	addr         string
	srv          *http.Server
	lis          net.Listener
	mux          http.Handler
	mu           sync.Mutex
	appReady     func() bool
	pipeline     http.Handler
	clients      *ClientRegistry
	breakers     *BreakerRegistry
	metrics      *MetricsStore
	health       *HealthChecker
	promHandler  http.Handler
	logger       Logger
	maxBodyBytes int64
}

// NewHTTPTransport constructs a transport bound to an address.
func NewHTTPTransport(addr string, ready func() bool) *HTTPTransport {
	if addr == "" {
		addr = ":8000"
	}
	if ready == nil {
		ready = func() bool { return false }
	}
	return &HTTPTransport{addr: addr, appReady: ready}
}

// Listen builds the server and binds the listener without serving. Binding
// up front lets the caller distinguish bind failures from serve failures.
func (t *HTTPTransport) Listen() error {
	if t == nil {
		return errors.New("http transport is nil")
	}
	handler, err := t.handler()
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.srv == nil {
		t.srv = &http.Server{Addr: t.addr, Handler: handler}
	}
	if t.lis != nil {
		return nil
	}
	listener, err := net.Listen("tcp", t.addr)
	if err != nil {
		return Wrap(CodeBindFailed, "bind "+t.addr, err)
	}
	t.lis = listener
	return nil
}

// Start begins serving HTTP requests.
func (t *HTTPTransport) Start() error {
	if t == nil {
		return errors.New("http transport is nil")
	}
	if err := t.Listen(); err != nil {
		return err
	}
	t.mu.Lock()
	srv := t.srv
	listener := t.lis
	t.mu.Unlock()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server.
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	if t == nil {
		return errors.New("http transport is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t.mu.Lock()
	srv := t.srv
	t.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Addr reports the bound listener address.
func (t *HTTPTransport) Addr() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lis != nil {
		return t.lis.Addr().String()
	}
	return t.addr
}

// Handler returns the HTTP handler for testing.
func (t *HTTPTransport) Handler() (http.Handler, error) {
	return t.handler()
}

func (t *HTTPTransport) handler() (http.Handler, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mux != nil {
		return t.mux, nil
	}
	if t.pipeline == nil || t.clients == nil || t.breakers == nil || t.metrics == nil {
		return nil, errors.New("services must be registered before starting")
	}
	mux := http.NewServeMux()
	t.registerRoutes(mux)
	t.mux = mux
	return mux, nil
}
