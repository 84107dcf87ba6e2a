// Package taskbus implements the Task & Event Bus (spec.md §4.F): every
// long-running control-plane operation is wrapped as a Task with a
// strictly monotone status, and a bounded per-task event channel serves
// status-poll, SSE, and WebSocket subscribers.
package taskbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a Task's lifecycle state. Transitions are strictly monotone:
// queued -> running -> (completed | failed | cancelled). The terminal
// three are absorbing.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Event is one entry on a Task's event channel. Lag marks a gap (spec.md §9
// "late or overrun subscribers must be able to detect a gap in the
// stream"): on a live channel it is set on the newly published event that
// was queued after an older queued one had to be dropped, and in a
// Subscribe replay it is set on the oldest buffered event once the ring
// buffer has ever dropped one, so a client knows its view of the task's
// progress has a hole rather than silently missing it.
type Event struct {
	Seq       int64     `json:"seq"`
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Lag       bool      `json:"lag,omitempty"`
}

// Func is the work a Task performs. It must observe ctx cancellation at
// safe points (spec.md §5 "component code polls the token at safe
// points"); Emit lets it publish progress events as it runs.
type Func func(ctx context.Context, t *Task) (json.RawMessage, error)

// Task wraps one long operation submitted to the Bus.
type Task struct {
	ID        string
	Kind      string
	CreatedAt time.Time

	mu        sync.Mutex
	status    Status
	updatedAt time.Time
	result    json.RawMessage
	errMsg    string

	ring       *ringBuffer
	cancelFunc context.CancelFunc
}

func newTask(kind string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
		status:    StatusQueued,
		updatedAt: time.Now().UTC(),
		ring:      newRingBuffer(eventBufferSize),
	}
}

// Emit publishes a progress event to every current and future subscriber
// of this Task, subject to the bounded-buffer drop-oldest policy.
func (t *Task) Emit(eventType string, data any) {
	t.ring.publish(Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()})
}

// Snapshot is the point-in-time view returned by Status and by a fresh
// Subscribe call.
type Snapshot struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Status returns the Task's current snapshot.
func (t *Task) Status() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{ID: t.ID, Kind: t.Kind, Status: t.status, Result: t.result, Error: t.errMsg, UpdatedAt: t.updatedAt}
}

func (t *Task) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.updatedAt = time.Now().UTC()
	t.mu.Unlock()
	t.Emit("status", s)
}

func (t *Task) finish(status Status, result json.RawMessage, errMsg string) {
	t.mu.Lock()
	if t.status.terminal() {
		t.mu.Unlock()
		return
	}
	t.status = status
	t.result = result
	t.errMsg = errMsg
	t.updatedAt = time.Now().UTC()
	t.mu.Unlock()
	t.Emit("status", status)
}

// Subscribe returns every event still held in the Task's ring buffer (the
// most recent eventBufferSize, so the whole history while fewer have been
// published) plus a channel of live events, and an unsubscribe func the
// caller must call when done.
func (t *Task) Subscribe() (buffered []Event, live <-chan Event, unsubscribe func()) {
	return t.ring.subscribe()
}

// Cancel marks the Task's cancellation token. It does not itself change
// Status — the running Func observes ctx.Done() and returns, after which
// the Bus finalizes the Task as cancelled.
func (t *Task) Cancel() {
	t.mu.Lock()
	cancel := t.cancelFunc
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
