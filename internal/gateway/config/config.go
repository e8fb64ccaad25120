// Package config provides configuration for the application wiring.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// Config captures runtime settings for the gateway.
type Config struct {
	Host           string
	Port           int
	ClientHeader   string
	DefaultTier    string
	LatencyWindow  int
	IdleTTL        time.Duration
	SweepInterval  time.Duration
	HealthInterval time.Duration
	GlobalRPS      float64
	GlobalBurst    int
	UpstreamsFile  string
	Upstreams      map[string]Upstream
	Routes         []Route
}

// Upstream configures one backend service.
type Upstream struct {
	BaseURL           string
	FailureThreshold  int
	SuccessThreshold  int
	RecoveryTimeout   time.Duration
	Timeout           time.Duration
	MaxConcurrent     int64
	HealthCheckPath   string
	Count429AsFailure bool
}

// Route binds a path pattern to an upstream and a token cost.
type Route struct {
	Pattern  string
	Upstream string
	Cost     int
}

var tierNames = map[string]bool{
	"FREE":       true,
	"BASIC":      true,
	"PREMIUM":    true,
	"ENTERPRISE": true,
}

// Default returns the built-in configuration: one local upstream and the
// stock route costs.
func Default() *Config {
	return &Config{
		Host:           "0.0.0.0",
		Port:           8000,
		ClientHeader:   "X-Client-ID",
		DefaultTier:    "FREE",
		LatencyWindow:  1000,
		IdleTTL:        time.Hour,
		SweepInterval:  time.Minute,
		HealthInterval: 30 * time.Second,
		Upstreams: map[string]Upstream{
			"default": {
				BaseURL:          "http://localhost:9000",
				FailureThreshold: 5,
				SuccessThreshold: 3,
				RecoveryTimeout:  30 * time.Second,
				Timeout:          30 * time.Second,
				HealthCheckPath:  "/health",
			},
		},
		Routes: []Route{
			{Pattern: `^/api/v1/search`, Cost: 5},
			{Pattern: `^/api/v1/export`, Cost: 10},
			{Pattern: `^/api/v1/bulk`, Cost: 20},
			{Pattern: `^/api/v1/`, Cost: 1},
		},
	}
}

// Load builds the configuration from defaults, environment overrides, and
// the upstream table file when one is configured.
func Load(environ []string) (*Config, error) {
	cfg := Default()
	if err := applyEnvOverrides(cfg, environ); err != nil {
		return nil, err
	}
	if cfg.UpstreamsFile != "" {
		if err := loadUpstreamsFile(cfg, cfg.UpstreamsFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the gateway cannot run with.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port out of range: %d", cfg.Port)
	}
	if cfg.ClientHeader == "" {
		return fmt.Errorf("client header is required")
	}
	if !tierNames[cfg.DefaultTier] {
		return fmt.Errorf("unknown default tier: %q", cfg.DefaultTier)
	}
	if cfg.LatencyWindow < 1 {
		return fmt.Errorf("latency window must be positive: %d", cfg.LatencyWindow)
	}
	if cfg.IdleTTL <= 0 || cfg.SweepInterval <= 0 {
		return fmt.Errorf("idle ttl and sweep interval must be positive")
	}
	if cfg.GlobalRPS < 0 || cfg.GlobalBurst < 0 {
		return fmt.Errorf("global rate guard values must be non-negative")
	}
	if len(cfg.Upstreams) == 0 {
		return fmt.Errorf("at least one upstream is required")
	}
	for name, upstream := range cfg.Upstreams {
		if name == "" {
			return fmt.Errorf("upstream name is required")
		}
		parsed, err := url.Parse(upstream.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("upstream %q: invalid base url %q", name, upstream.BaseURL)
		}
		if upstream.FailureThreshold < 0 || upstream.SuccessThreshold < 0 {
			return fmt.Errorf("upstream %q: thresholds must be non-negative", name)
		}
		if upstream.RecoveryTimeout < 0 || upstream.Timeout < 0 {
			return fmt.Errorf("upstream %q: timeouts must be non-negative", name)
		}
		if upstream.MaxConcurrent < 0 {
			return fmt.Errorf("upstream %q: max concurrent must be non-negative", name)
		}
	}
	for _, route := range cfg.Routes {
		if _, err := regexp.Compile(route.Pattern); err != nil {
			return fmt.Errorf("route pattern %q: %v", route.Pattern, err)
		}
		if route.Cost < 0 {
			return fmt.Errorf("route pattern %q: cost must be non-negative", route.Pattern)
		}
		if route.Upstream != "" {
			if _, ok := cfg.Upstreams[route.Upstream]; !ok {
				return fmt.Errorf("route pattern %q: unknown upstream %q", route.Pattern, route.Upstream)
			}
		}
	}
	return nil
}
