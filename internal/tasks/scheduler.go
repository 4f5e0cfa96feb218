package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler enqueues named tasks on cron schedules through the Runner.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	logger *slog.Logger
}

func NewScheduler(runner *Runner, loc *time.Location, logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "scheduler")
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{logger})),
		runner: runner,
		logger: logger,
	}
}

// Add schedules name on a five-field cron spec. An empty spec leaves the
// task unscheduled.
func (s *Scheduler) Add(spec, name string) error {
	if spec == "" {
		s.logger.Info("task not scheduled", "name", name)
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		if _, err := s.runner.Enqueue(context.Background(), name); err != nil {
			s.logger.Error("scheduled enqueue failed", "name", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.logger.Info("task scheduled", "name", name, "spec", spec)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler; the returned context is done once running jobs
// have returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
