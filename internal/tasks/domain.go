// Package tasks runs the background reminder, report and heartbeat jobs.
// Work is dispatched through a Queue to a Pool of workers; task state lives in
// a Results store so callers can poll or wait for it.
package tasks

import (
	"encoding/json"
	"errors"
	"time"
)

const (
	StatePending   = "PENDING"
	StateRunning   = "RUNNING"
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
)

const (
	NameOverdueReminders = "run_overdue_reminders"
	NameWeeklyReport     = "run_weekly_report"
	NameSendTestEmail    = "send_test_email"
)

var builtinNames = map[string]bool{
	NameOverdueReminders: true,
	NameWeeklyReport:     true,
	NameSendTestEmail:    true,
}

var (
	ErrTaskTimeout  = errors.New("task did not finish before the wait timeout")
	ErrUnknownTask  = errors.New("unknown task")
	ErrTaskNotFound = errors.New("task not found")
)

// Task is one invocation of a named job.
type Task struct {
	ID         string          `json:"task_id"`
	Name       string          `json:"name"`
	State      string          `json:"state"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Done reports whether the task reached a terminal state.
func (t Task) Done() bool {
	return t.State == StateCompleted || t.State == StateFailed
}

// Envelope is what travels through the queue.
type Envelope struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
