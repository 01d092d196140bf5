package jobqueue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuelReschke/MarketFox/internal/pkg/events"
)

// TaskStatus is the delivery state of a queued event.
type TaskStatus string

const (
	TaskQueued   TaskStatus = "queued"
	TaskRunning  TaskStatus = "running"
	TaskRetrying TaskStatus = "retrying"
	TaskDone     TaskStatus = "done"
	TaskFailed   TaskStatus = "failed"
)

// Task is one domain event waiting for fan-out. The event travels as its
// JSON encoding so decimal amounts are stored exactly.
type Task struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	EventType   events.Type     `json:"event_type"`
	Event       json.RawMessage `json:"event"`
	Status      TaskStatus      `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewTask wraps ev for the queue. The task id is the event id, so one event
// is stored at most once.
func NewTask(ev events.Event, now time.Time) (*Task, error) {
	data, err := ev.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	return &Task{
		ID:          ev.ID,
		EventID:     ev.ID,
		EventType:   ev.Type,
		Event:       data,
		Status:      TaskQueued,
		MaxAttempts: DefaultMaxAttempts,
		EnqueuedAt:  now,
		UpdatedAt:   now,
	}, nil
}

// DecodeEvent returns the carried event.
func (t *Task) DecodeEvent() (events.Event, error) {
	if len(t.Event) == 0 {
		return events.Event{}, fmt.Errorf("task %s carries no event", t.ID)
	}
	return events.Unmarshal(t.Event)
}

// CanRetry reports whether another attempt is allowed.
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

func (t *Task) begin(now time.Time) {
	t.Attempts++
	t.Status = TaskRunning
	t.StartedAt = &now
	t.UpdatedAt = now
}

// fail records err and picks retrying or failed depending on the budget.
func (t *Task) fail(now time.Time, err error) {
	t.LastError = err.Error()
	t.UpdatedAt = now
	if t.CanRetry() {
		t.Status = TaskRetrying
	} else {
		t.Status = TaskFailed
	}
}

// requeue puts a task back in line without spending an attempt.
func (t *Task) requeue(now time.Time, reason string) {
	t.Status = TaskQueued
	t.LastError = reason
	t.StartedAt = nil
	t.UpdatedAt = now
}

// runningSince is the moment the current attempt started.
func (t *Task) runningSince() time.Time {
	if t.StartedAt != nil {
		return *t.StartedAt
	}
	if !t.UpdatedAt.IsZero() {
		return t.UpdatedAt
	}
	return t.EnqueuedAt
}

// retryDelay doubles base for every failed attempt after the first.
func retryDelay(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 10 {
		attempts = 10
	}
	return base << (attempts - 1)
}
