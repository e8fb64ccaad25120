// Package gateway wires application dependencies.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bkiritom8/Rate-Limited-API-Gateway/internal/gateway/config"
)

// Application holds core components for the gateway.
type Application struct {
	Config    *config.Config
	Clients   *ClientRegistry
	Breakers  *BreakerRegistry
	Metrics   *MetricsStore
	Routes    *RouteTable
	Forwarder Forwarder
	Pipeline  *Pipeline
	Health    *HealthChecker

	clock     Clock
	logger    Logger
	transport *HTTPTransport
	ready     atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewApplication validates configuration and prepares the application.
func NewApplication(cfg *config.Config, logger Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, Wrap(CodeConfigInvalid, err.Error(), err)
	}
	if logger == nil {
		logger = NewZapLogger(nil)
	}
	clock := Clock(SystemClock{})

	defaultTier, err := ParseTier(cfg.DefaultTier)
	if err != nil {
		return nil, Wrap(CodeConfigInvalid, "unknown default tier: "+cfg.DefaultTier, err)
	}

	clients := NewClientRegistry(defaultTier, cfg.IdleTTL, clock)
	metrics := NewMetricsStore(cfg.LatencyWindow, clock)
	promHandler := metrics.EnablePrometheus()

	breakerOptions := make(map[string]CircuitOptions, len(cfg.Upstreams))
	targets := make(map[string]UpstreamTarget, len(cfg.Upstreams))
	healthTargets := make(map[string]HealthTarget, len(cfg.Upstreams))
	failOn429 := make(map[string]bool, len(cfg.Upstreams))
	for name, upstream := range cfg.Upstreams {
		baseURL, err := url.Parse(upstream.BaseURL)
		if err != nil {
			return nil, Wrap(CodeConfigInvalid, "upstream "+name+": invalid base url", err)
		}
		breakerOptions[name] = CircuitOptions{
			FailureThreshold: upstream.FailureThreshold,
			SuccessThreshold: upstream.SuccessThreshold,
			RecoveryTimeout:  upstream.RecoveryTimeout,
		}
		targets[name] = UpstreamTarget{
			BaseURL:       baseURL,
			Timeout:       upstream.Timeout,
			MaxConcurrent: upstream.MaxConcurrent,
		}
		if upstream.HealthCheckPath != "" {
			healthTargets[name] = HealthTarget{BaseURL: baseURL, Path: upstream.HealthCheckPath}
		}
		failOn429[name] = upstream.Count429AsFailure
	}
	breakers := NewBreakerRegistry(breakerOptions, CircuitOptions{}, clock)

	rules := make([]RouteRule, 0, len(cfg.Routes))
	for _, route := range cfg.Routes {
		pattern, err := regexp.Compile(route.Pattern)
		if err != nil {
			return nil, Wrap(CodeConfigInvalid, "route pattern "+route.Pattern, err)
		}
		rules = append(rules, RouteRule{Pattern: pattern, Upstream: route.Upstream, Cost: route.Cost})
	}
	_, hasDefault := cfg.Upstreams[DefaultUpstream]
	routes := NewRouteTable(rules, hasDefault)

	forwarder := NewHTTPForwarder(targets, nil)
	pipeline := NewPipeline(clients, breakers, metrics, routes, forwarder, clock, logger, cfg.ClientHeader, failOn429)
	health := NewHealthChecker(healthTargets, cfg.HealthInterval, logger)

	app := &Application{
		Config:    cfg,
		Clients:   clients,
		Breakers:  breakers,
		Metrics:   metrics,
		Routes:    routes,
		Forwarder: forwarder,
		Pipeline:  pipeline,
		Health:    health,
		clock:     clock,
		logger:    logger,
	}

	guard := NewInboundGuard(cfg.GlobalRPS, cfg.GlobalBurst)
	transport := NewHTTPTransport(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), app.Ready)
	transport.pipeline = guard(pipeline)
	transport.clients = clients
	transport.breakers = breakers
	transport.metrics = metrics
	transport.health = health
	transport.promHandler = promHandler
	transport.logger = logger
	app.transport = transport

	return app, nil
}

// Start binds the listener and begins background work. A bind failure is
// returned synchronously with CodeBindFailed.
func (app *Application) Start(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	app.cancel = cancel

	if err := app.transport.Listen(); err != nil {
		return err
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.janitorLoop(ctx)
	}()
	if app.Health != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			_ = app.Health.Start(ctx)
		}()
	}
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		_ = app.transport.Start()
	}()

	app.ready.Store(true)
	app.logger.Info("gateway started", map[string]any{"addr": app.transport.Addr()})
	return nil
}

// Shutdown stops background work for the application.
func (app *Application) Shutdown(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if app.cancel != nil {
		app.cancel()
	}
	app.ready.Store(false)
	if app.transport != nil {
		_ = app.transport.Shutdown(ctx)
	}
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the application has completed startup.
func (app *Application) Ready() bool {
	if app == nil {
		return false
	}
	return app.ready.Load()
}

// Transport exposes the HTTP transport for integration tests.
func (app *Application) Transport() *HTTPTransport {
	if app == nil {
		return nil
	}
	return app.transport
}

func (app *Application) janitorLoop(ctx context.Context) {
	interval := app.Config.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := app.Clients.Sweep(app.clock.Now()); evicted > 0 {
				app.logger.Info("evicted idle clients", map[string]any{"count": evicted})
			}
		}
	}
}
