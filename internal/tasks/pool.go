package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Pool consumes a queue with a fixed number of workers.
type Pool struct {
	runner      *Runner
	queue       Queue
	concurrency int
	logger      *slog.Logger
}

func NewPool(runner *Runner, queue Queue, concurrency int, logger *slog.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{runner: runner, queue: queue, concurrency: concurrency, logger: logger.With("component", "pool")}
}

// Run blocks until ctx is cancelled and every in-flight task has finished.
func (p *Pool) Run(ctx context.Context) error {
	envs, err := p.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	p.logger.InfoContext(ctx, "worker pool started", "concurrency", p.concurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i := range p.concurrency {
		g.Go(func() error {
			for env := range envs {
				p.logger.DebugContext(gctx, "worker picked task", "worker", i, "task_id", env.ID, "name", env.Name)
				p.runner.Execute(gctx, env)
			}
			return nil
		})
	}
	err = g.Wait()
	p.logger.InfoContext(ctx, "worker pool stopped")
	return err
}
