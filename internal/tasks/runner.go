package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "librarian_tasks_total",
		Help: "Task executions by name and terminal state.",
	}, []string{"name", "state"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "librarian_task_duration_seconds",
		Help:    "Task execution time.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"name"})
)

// Func is the body of a task. The returned value becomes the task result.
type Func func(ctx context.Context) (any, error)

// Runner enqueues tasks and executes them on behalf of a Pool.
type Runner struct {
	queue   Queue
	results Results
	logger  *slog.Logger
	tracer  trace.Tracer

	mu    sync.RWMutex
	funcs map[string]Func

	timeLimit time.Duration
	poll      time.Duration
	now       func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTimeLimit bounds each execution.
func WithTimeLimit(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeLimit = d
		}
	}
}

// WithPollInterval sets how often Wait re-reads task state.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.poll = d
		}
	}
}

func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRunner(queue Queue, results Results, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		queue:     queue,
		results:   results,
		logger:    logger.With("component", "tasks"),
		tracer:    otel.Tracer("librarian/tasks"),
		funcs:     make(map[string]Func),
		timeLimit: 30 * time.Minute,
		poll:      100 * time.Millisecond,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds a task name to its body.
func (r *Runner) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *Runner) lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Enqueue records a PENDING task and publishes it. Scheduled and manual
// invocations both come through here. A process that only publishes may
// enqueue the built-in names without registering them.
func (r *Runner) Enqueue(ctx context.Context, name string) (*Task, error) {
	if _, ok := r.lookup(name); !ok && !builtinNames[name] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	t := Task{
		ID:         uuid.NewString(),
		Name:       name,
		State:      StatePending,
		EnqueuedAt: r.now().UTC(),
	}
	if err := r.results.Save(ctx, t); err != nil {
		return nil, err
	}
	if err := r.queue.Publish(ctx, Envelope{ID: t.ID, Name: t.Name, EnqueuedAt: t.EnqueuedAt}); err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "task enqueued", "task_id", t.ID, "name", name)
	return &t, nil
}

// Execute runs one envelope to a terminal state and stores the outcome.
// Handler errors and panics become FAILED; they are never returned.
func (r *Runner) Execute(ctx context.Context, env Envelope) Task {
	ctx, span := r.tracer.Start(ctx, "tasks.execute",
		trace.WithAttributes(
			attribute.String("task.id", env.ID),
			attribute.String("task.name", env.Name),
		),
	)
	defer span.End()

	t := Task{ID: env.ID, Name: env.Name, EnqueuedAt: env.EnqueuedAt}
	started := r.now().UTC()
	t.State, t.StartedAt = StateRunning, &started
	r.save(ctx, t)

	result, err := r.invoke(ctx, env.Name)

	finished := r.now().UTC()
	t.FinishedAt = &finished
	if err == nil {
		t.Result, err = codec.Marshal(result)
	}
	if err != nil {
		t.State, t.Error, t.Result = StateFailed, err.Error(), nil
		span.SetStatus(codes.Error, err.Error())
		r.logger.ErrorContext(ctx, "task failed", "task_id", t.ID, "name", t.Name, "error", err)
	} else {
		t.State = StateCompleted
		r.logger.InfoContext(ctx, "task completed", "task_id", t.ID, "name", t.Name, "duration", finished.Sub(started))
	}
	r.save(ctx, t)

	tasksTotal.WithLabelValues(t.Name, t.State).Inc()
	taskDuration.WithLabelValues(t.Name).Observe(finished.Sub(started).Seconds())
	span.SetAttributes(attribute.String("task.state", t.State))
	return t
}

func (r *Runner) invoke(ctx context.Context, name string) (result any, err error) {
	fn, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeLimit)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panic: %v", rec)
		}
	}()
	return fn(ctx)
}

func (r *Runner) save(ctx context.Context, t Task) {
	// Detached: a terminal state must still be written during shutdown.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.results.Save(ctx, t); err != nil {
		r.logger.ErrorContext(ctx, "saving task state failed", "task_id", t.ID, "state", t.State, "error", err)
	}
}

// Status returns the latest known state of a task.
func (r *Runner) Status(ctx context.Context, id string) (*Task, error) {
	return r.results.Get(ctx, id)
}

// Wait blocks until the task is terminal or timeout elapses. On timeout it
// returns the last seen state with ErrTaskTimeout; the task keeps running.
func (r *Runner) Wait(ctx context.Context, id string, timeout time.Duration) (*Task, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(r.poll)
	defer tick.Stop()

	for {
		t, err := r.results.Get(ctx, id)
		if err != nil && !errors.Is(err, ErrTaskNotFound) {
			return nil, err
		}
		if t != nil && t.Done() {
			return t, nil
		}

		select {
		case <-deadline.C:
			if t == nil {
				return nil, fmt.Errorf("%w: %s", ErrTaskTimeout, id)
			}
			return t, ErrTaskTimeout
		case <-ctx.Done():
			return t, ctx.Err()
		case <-tick.C:
		}
	}
}
