package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/bkiritom8/Rate-Limited-API-Gateway/internal/gateway/config"
)

func newFlagSet(name string, output io.Writer) *flag.FlagSet {
	if output == nil {
		output = io.Discard
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.String("host", "", "listen host")
	fs.Int("port", 0, "listen port")
	fs.String("client_header", "", "client id header name")
	fs.String("default_tier", "", "default client tier")
	fs.Int("latency_window", 0, "latency estimator window")
	fs.String("upstreams", "", "upstream table file path")
	fs.Float64("global_rps", 0, "global inbound rps cap")
	fs.Usage = func() {
		printUsage(output)
	}
	return fs
}

// applyFlagOverrides copies explicitly set flags onto the config and
// reports whether the upstreams file path changed.
func applyFlagOverrides(cfg *config.Config, fs *flag.FlagSet) bool {
	if cfg == nil || fs == nil {
		return false
	}
	upstreamsChanged := false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = f.Value.String()
		case "port":
			if getter, ok := f.Value.(flag.Getter); ok {
				if port, ok := getter.Get().(int); ok {
					cfg.Port = port
				}
			}
		case "client_header":
			cfg.ClientHeader = f.Value.String()
		case "default_tier":
			cfg.DefaultTier = f.Value.String()
		case "latency_window":
			if getter, ok := f.Value.(flag.Getter); ok {
				if window, ok := getter.Get().(int); ok {
					cfg.LatencyWindow = window
				}
			}
		case "upstreams":
			cfg.UpstreamsFile = f.Value.String()
			upstreamsChanged = true
		case "global_rps":
			if getter, ok := f.Value.(flag.Getter); ok {
				if rps, ok := getter.Get().(float64); ok {
					cfg.GlobalRPS = rps
				}
			}
		}
	})
	return upstreamsChanged
}

func printUsage(w io.Writer) {
	if w == nil {
		return
	}
	fmt.Fprintln(w, "Usage")
	fmt.Fprintln(w, "  gateway [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Flags")
	fmt.Fprintln(w, "  host string listen host")
	fmt.Fprintln(w, "  port int listen port")
	fmt.Fprintln(w, "  client_header string client id header name")
	fmt.Fprintln(w, "  default_tier string default client tier")
	fmt.Fprintln(w, "  latency_window int latency estimator window")
	fmt.Fprintln(w, "  upstreams string upstream table file path")
	fmt.Fprintln(w, "  global_rps float global inbound rps cap")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment")
	fmt.Fprintln(w, "  GATEWAY_HOST, GATEWAY_PORT, GATEWAY_CLIENT_HEADER, GATEWAY_DEFAULT_TIER")
	fmt.Fprintln(w, "  GATEWAY_LATENCY_WINDOW, GATEWAY_UPSTREAMS_FILE, GATEWAY_GLOBAL_RPS")
}
