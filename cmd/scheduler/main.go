// cmd/scheduler/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"librarian/internal/config"
	"librarian/internal/server"
	"librarian/internal/telemetry"
)

// Scheduler publishes the recurring tasks to the Redis queue.
func main() {
	cfg := config.Load()
	logger := telemetry.NewLogger("librarian-scheduler", cfg.LogLevel)

	if cfg.QueueBackend != "redis" {
		logger.Error("scheduler needs QUEUE_BACKEND=redis; the api schedules tasks itself with the memory queue")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	sched, err := app.Scheduler()
	if err != nil {
		logger.Error("scheduler setup failed", "error", err)
		os.Exit(1)
	}
	sched.Start()
	logger.Info("scheduler started", "timezone", cfg.SchedulerTimezone)

	<-ctx.Done()
	logger.Info("stopping scheduler")
	<-sched.Stop().Done()
}
