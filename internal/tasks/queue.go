package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Queue is the abstraction over task brokers.
type Queue interface {
	Publish(ctx context.Context, env Envelope) error
	Consume(ctx context.Context) (<-chan Envelope, error)
}

// InMemory is a channel-backed queue for single-process deployments and tests.
type InMemory struct {
	ch chan Envelope
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Envelope, size)}
}

func (q *InMemory) Publish(ctx context.Context, env Envelope) error {
	select {
	case q.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel that is closed when ctx is done.
func (q *InMemory) Consume(ctx context.Context) (<-chan Envelope, error) {
	out := make(chan Envelope)
	go func() {
		defer close(out)
		for {
			select {
			case env := <-q.ch:
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue is a Redis list-backed queue using LPUSH/BRPOP.
type RedisQueue struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

const (
	defaultQueueKey = "librarian:tasks"
	popRetryDelay   = time.Second
)

func NewRedisQueue(client *redis.Client, key string, logger *slog.Logger) *RedisQueue {
	if key == "" {
		key = defaultQueueKey
	}
	return &RedisQueue{client: client, key: key, logger: logger.With("component", "queue")}
}

func (q *RedisQueue) Publish(ctx context.Context, env Envelope) error {
	raw, err := codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("publish task %s: %w", env.ID, err)
	}
	return nil
}

// Consume streams envelopes until ctx is done. Undecodable entries are
// logged and dropped.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Envelope, error) {
	out := make(chan Envelope)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					q.logger.WarnContext(ctx, "queue pop failed", "error", err)
					select {
					case <-ctx.Done():
						return
					case <-time.After(popRetryDelay):
					}
				}
				continue
			}
			if len(res) != 2 {
				continue
			}

			var env Envelope
			if err := codec.UnmarshalFromString(res[1], &env); err != nil {
				q.logger.ErrorContext(ctx, "dropping malformed envelope", "error", err)
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
