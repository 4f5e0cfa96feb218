// Package server is the composition root: it opens the stores, builds every
// component and mounts their handlers on one router.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"librarian/internal/catalog"
	"librarian/internal/circulation"
	"librarian/internal/config"
	"librarian/internal/membership"
	"librarian/internal/notify"
	"librarian/internal/storage"
	"librarian/internal/tasks"
)

// DriverMemory keeps every store in process memory.
const DriverMemory = "memory"

// App is a fully wired instance of the library.
type App struct {
	Config config.App

	DB    *storage.DB
	Redis *redis.Client

	Catalog catalog.Store
	Notify  notify.Store

	Books       catalog.Service
	Membership  membership.Service
	Circulation circulation.Service
	Scanner     *circulation.Scanner
	Emitter     *notify.Emitter
	Tokens      *membership.Tokens

	Queue  tasks.Queue
	Runner *tasks.Runner

	Router http.Handler

	logger *slog.Logger
}

// Option adjusts Build, mostly for tests.
type Option func(*buildOptions)

type buildOptions struct {
	now       func() time.Time
	transport notify.Transport
}

// WithClock fixes the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(o *buildOptions) { o.now = now }
}

// WithTransport replaces the configured mail transport.
func WithTransport(t notify.Transport) Option {
	return func(o *buildOptions) { o.transport = t }
}

// Build wires the application from cfg. The caller owns the returned App and
// must Close it.
func Build(ctx context.Context, cfg config.App, logger *slog.Logger, opts ...Option) (*App, error) {
	o := buildOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &App{Config: cfg, logger: logger}
	if err := app.openStores(ctx); err != nil {
		return nil, err
	}
	if err := app.openQueue(ctx, o.now); err != nil {
		app.Close()
		return nil, err
	}

	loc := cfg.Timezone()
	circOpts := []circulation.Option{circulation.WithClock(o.now), circulation.WithLocation(loc)}

	app.Books = catalog.NewService(app.Catalog, logger)
	app.Membership = membership.NewService(app.Catalog, app.Notify, cfg.AuthRatePerMinute, logger)
	app.Circulation = circulation.NewService(app.Catalog, logger, circOpts...)
	app.Scanner = circulation.NewScanner(app.Catalog, circOpts...)
	app.Tokens = membership.NewTokens(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL)

	transport := o.transport
	if transport == nil {
		transport = newTransport(cfg, logger)
	}
	app.Emitter = notify.NewEmitter(app.Notify, app.Catalog, transport, notify.EmitterConfig{
		From:            cfg.MailFrom,
		RecipientDomain: cfg.MailRecipientDomain,
		TestRecipient:   cfg.MailTestRecipient,
		Now:             o.now,
	}, logger)

	tasks.NewJobs(app.Scanner, app.Catalog, app.Emitter).Register(app.Runner)

	if cfg.AdminPassword != "" {
		if _, err := app.Membership.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			app.Close()
			return nil, fmt.Errorf("ensure admin: %w", err)
		}
	}
	if cfg.SeedData {
		if err := Seed(ctx, app); err != nil {
			app.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	app.Router = app.routes()
	return app, nil
}

func (a *App) openStores(ctx context.Context) error {
	if a.Config.DBDriver == DriverMemory {
		a.Catalog = catalog.NewMemoryStore()
		a.Notify = notify.NewMemoryStore()
		return nil
	}

	db, err := storage.Open(ctx, a.Config.DBDriver, a.Config.DatabaseURL, a.logger)
	if err != nil {
		return err
	}
	a.DB = db
	a.Catalog = catalog.NewSQLStore(db)
	a.Notify = notify.NewSQLStore(db)
	return nil
}

func (a *App) openQueue(ctx context.Context, now func() time.Time) error {
	runnerOpts := []tasks.RunnerOption{
		tasks.WithTimeLimit(a.Config.TaskTimeLimit),
		tasks.WithClock(now),
	}

	if a.Config.QueueBackend != "redis" {
		a.Queue = tasks.NewInMemory(256)
		a.Runner = tasks.NewRunner(a.Queue, tasks.NewMemoryResults(), a.logger, runnerOpts...)
		return nil
	}

	a.Redis = redis.NewClient(&redis.Options{
		Addr:         a.Config.RedisAddr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  6 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", a.Config.RedisAddr, err)
	}
	a.Queue = tasks.NewRedisQueue(a.Redis, "", a.logger)
	a.Runner = tasks.NewRunner(a.Queue, tasks.NewRedisResults(a.Redis), a.logger, runnerOpts...)
	return nil
}

func newTransport(cfg config.App, logger *slog.Logger) notify.Transport {
	if cfg.MailTransport != "smtp" {
		return notify.NewLogTransport(logger)
	}
	smtp := notify.NewSMTPTransport(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	})
	return notify.NewBreakerTransport(smtp, 5, time.Minute, logger)
}

// Pool returns a worker pool consuming the app's queue.
func (a *App) Pool() *tasks.Pool {
	return tasks.NewPool(a.Runner, a.Queue, a.Config.WorkerConcurrency, a.logger)
}

// Scheduler returns a scheduler with the configured recurring tasks.
func (a *App) Scheduler() (*tasks.Scheduler, error) {
	s := tasks.NewScheduler(a.Runner, a.Config.Timezone(), a.logger)
	err := errors.Join(
		s.Add(a.Config.ReminderSchedule, tasks.NameOverdueReminders),
		s.Add(a.Config.WeeklyReportSchedule, tasks.NameWeeklyReport),
		s.Add(a.Config.TestEmailSchedule, tasks.NameSendTestEmail),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Healthy reports the reachability of the backing services.
func (a *App) Healthy(ctx context.Context) map[string]bool {
	out := map[string]bool{}
	if a.DB != nil {
		out["db"] = a.DB.Healthy(ctx)
	}
	if a.Redis != nil {
		out["redis"] = a.Redis.Ping(ctx).Err() == nil
	}
	return out
}

func (a *App) Close() error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	return errors.Join(errs...)
}
