// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"librarian/internal/config"
	"librarian/internal/server"
	"librarian/internal/tasks"
	"librarian/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger := telemetry.NewLogger("librarian-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("api stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.App, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.SetupTracing(ctx, "librarian-api", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer shutdownTracing(context.Background())

	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer app.Close()

	// A memory queue is only reachable from this process, so the workers and
	// the scheduler run here too.
	var sched *tasks.Scheduler
	if cfg.QueueBackend != "redis" {
		if sched, err = app.Scheduler(); err != nil {
			return fmt.Errorf("scheduler setup: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting api", "port", cfg.HTTPPort, "db_driver", cfg.DBDriver, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down api")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if sched != nil {
		sched.Start()
		g.Go(func() error {
			<-gctx.Done()
			<-sched.Stop().Done()
			return nil
		})
		g.Go(func() error { return app.Pool().Run(gctx) })
	}

	return g.Wait()
}
