// Package main is the entry point of the friendship streaks service. It
// wires the registry, streak engine and aggregator and serves the ops
// endpoints until SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/friendship-streaks/config"
	"github.com/alem-hub/friendship-streaks/internal/bootstrap"
	httpserver "github.com/alem-hub/friendship-streaks/internal/interface/http"
	"github.com/alem-hub/friendship-streaks/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting friendship streaks service",
		logger.String("version", cfg.App.Version),
		logger.String("storage", cfg.Storage.Driver),
		logger.String("notifications", cfg.Notifications.Driver),
		logger.String("timezone", cfg.App.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Service graph
	// ─────────────────────────────────────────────────────────────────────────
	svc, err := bootstrap.Build(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer svc.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Background jobs
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		sched, err := bootstrap.NewScheduler(svc, log)
		if err != nil {
			return fmt.Errorf("failed to build scheduler: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() { _ = sched.Stop() }()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Ops server
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Port = cfg.Observability.MetricsPort
	httpConfig.EnableMetrics = cfg.Observability.MetricsEnabled
	httpConfig.Version = cfg.App.Version

	server := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		HealthChecker: svc.Health,
		Metrics:       svc.Metrics,
		Logger:        log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Run until a signal or a server failure, then shut down
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Info("service is running", logger.String("ops_address", server.Address()))

	if err := g.Wait(); err != nil {
		log.Error("shutdown completed with errors", logger.Err(err))
		return err
	}
	log.Info("shutdown completed")
	return nil
}
