// Command gateway starts the API gateway.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bkiritom8/Rate-Limited-API-Gateway/internal/gateway"
	"github.com/bkiritom8/Rate-Limited-API-Gateway/internal/gateway/config"
)

const (
	exitOK         = 0
	exitConfig     = 1
	exitBindFailed = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Environ()))
}

func run(args []string, environ []string) int {
	fs := newFlagSet("gateway", os.Stderr)
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	cfg, err := config.Load(environ)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfig
	}
	if applyFlagOverrides(cfg, fs) {
		if err := config.LoadUpstreamsFile(cfg, cfg.UpstreamsFile); err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			return exitConfig
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfig
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return exitConfig
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := gateway.NewZapLogger(zapLogger)

	app, err := gateway.NewApplication(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "start error: %v\n", err)
		if gateway.CodeOf(err) == gateway.CodeBindFailed {
			return exitBindFailed
		}
		return exitConfig
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
	}
	return exitOK
}
