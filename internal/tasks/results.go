package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Results stores task state by id.
type Results interface {
	Save(ctx context.Context, t Task) error
	Get(ctx context.Context, id string) (*Task, error)
}

type MemoryResults struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewMemoryResults() *MemoryResults {
	return &MemoryResults{tasks: make(map[string]Task)}
}

func (m *MemoryResults) Save(_ context.Context, t Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *MemoryResults) Get(_ context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return &t, nil
}

// ResultTTL is how long task state is kept in Redis.
const ResultTTL = 24 * time.Hour

// RedisResults keeps task state in Redis so the web process can read what a
// separate worker wrote.
type RedisResults struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisResults(client *redis.Client) *RedisResults {
	return &RedisResults{client: client, prefix: "librarian:task:", ttl: ResultTTL}
}

func (r *RedisResults) Save(ctx context.Context, t Task) error {
	raw, err := codec.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+t.ID, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

func (r *RedisResults) Get(ctx context.Context, id string) (*Task, error) {
	raw, err := r.client.Get(ctx, r.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}

	var t Task
	if err := codec.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}
