// Package config provides the YAML upstream table loader.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type upstreamsFile struct {
	Upstreams map[string]upstreamEntry `yaml:"upstreams"`
	Routes    []routeEntry             `yaml:"routes"`
}

type upstreamEntry struct {
	BaseURL           string `yaml:"base_url"`
	FailureThreshold  int    `yaml:"failure_threshold"`
	SuccessThreshold  int    `yaml:"success_threshold"`
	RecoveryTimeoutMS int    `yaml:"recovery_timeout_ms"`
	TimeoutMS         int    `yaml:"timeout_ms"`
	MaxConcurrent     int64  `yaml:"max_concurrent"`
	HealthCheckPath   string `yaml:"health_check_path"`
	Count429AsFailure bool   `yaml:"count_429_as_failure"`
}

type routeEntry struct {
	Pattern  string `yaml:"pattern"`
	Upstream string `yaml:"upstream"`
	Cost     int    `yaml:"cost"`
}

// LoadUpstreamsFile replaces the upstream table with the file's contents. The
// routes are replaced only when the file lists at least one; otherwise the
// existing routes are kept.
func LoadUpstreamsFile(cfg *Config, path string) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	return loadUpstreamsFile(cfg, path)
}

func loadUpstreamsFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read upstreams file: %w", err)
	}
	var parsed upstreamsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse upstreams file: %w", err)
	}
	if len(parsed.Upstreams) == 0 {
		return fmt.Errorf("upstreams file %q defines no upstreams", path)
	}
	upstreams := make(map[string]Upstream, len(parsed.Upstreams))
	for name, entry := range parsed.Upstreams {
		upstreams[name] = Upstream{
			BaseURL:           entry.BaseURL,
			FailureThreshold:  entry.FailureThreshold,
			SuccessThreshold:  entry.SuccessThreshold,
			RecoveryTimeout:   time.Duration(entry.RecoveryTimeoutMS) * time.Millisecond,
			Timeout:           time.Duration(entry.TimeoutMS) * time.Millisecond,
			MaxConcurrent:     entry.MaxConcurrent,
			HealthCheckPath:   entry.HealthCheckPath,
			Count429AsFailure: entry.Count429AsFailure,
		}
	}
	cfg.Upstreams = upstreams
	if len(parsed.Routes) > 0 {
		routes := make([]Route, 0, len(parsed.Routes))
		for _, entry := range parsed.Routes {
			routes = append(routes, Route{Pattern: entry.Pattern, Upstream: entry.Upstream, Cost: entry.Cost})
		}
		cfg.Routes = routes
	}
	return nil
}
