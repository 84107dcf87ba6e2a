package taskbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, task *Task, want Status, timeout time.Duration) Snapshot {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		snap := task.Status()
		if snap.Status == want {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach status %s, last seen %s", task.ID, want, task.Status().Status)
	return Snapshot{}
}

func TestSubmit_CompletesSuccessfully(t *testing.T) {
	bus := New(2)
	defer bus.Close()

	task := bus.Submit(context.Background(), "test", func(ctx context.Context, t *Task) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})

	snap := waitForStatus(t, task, StatusCompleted, time.Second)
	assert.Equal(t, json.RawMessage(`{"ok":true}`), snap.Result)
	assert.Empty(t, snap.Error)
}

func TestSubmit_FailurePropagatesErrorMessage(t *testing.T) {
	bus := New(2)
	defer bus.Close()

	task := bus.Submit(context.Background(), "test", func(ctx context.Context, t *Task) (json.RawMessage, error) {
		return nil, errors.New("boom")
	})

	snap := waitForStatus(t, task, StatusFailed, time.Second)
	assert.Contains(t, snap.Error, "boom")
}

func TestCancel_StopsTaskAsCancelled(t *testing.T) {
	bus := New(2)
	defer bus.Close()

	started := make(chan struct{})
	task := bus.Submit(context.Background(), "test", func(ctx context.Context, t *Task) (json.RawMessage, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	<-started
	require.NoError(t, bus.Cancel(task.ID))
	waitForStatus(t, task, StatusCancelled, time.Second)
}

func TestCancel_UnknownTaskReturnsNotFound(t *testing.T) {
	bus := New(1)
	defer bus.Close()
	err := bus.Cancel("nonexistent")
	require.Error(t, err)
}

func TestEmit_DeliversToSubscriber(t *testing.T) {
	bus := New(2)
	defer bus.Close()

	ready := make(chan *Task, 1)
	task := bus.Submit(context.Background(), "test", func(ctx context.Context, t *Task) (json.RawMessage, error) {
		ready <- t
		t.Emit("progress", map[string]int{"pct": 50})
		return json.RawMessage(`{}`), nil
	})

	<-ready
	buffered, live, unsubscribe := task.Subscribe()
	defer unsubscribe()

	waitForStatus(t, task, StatusCompleted, time.Second)

	var sawProgress bool
	for _, ev := range buffered {
		if ev.Type == "progress" {
			sawProgress = true
		}
	}
	timeout := time.After(time.Second)
	for !sawProgress {
		select {
		case ev := <-live:
			if ev.Type == "progress" {
				sawProgress = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for progress event")
		}
	}
}

func TestSubscribe_LateJoinerGetsBufferedEvents(t *testing.T) {
	task := newTask("test")
	task.Emit("a", 1)
	task.Emit("b", 2)

	buffered, _, unsubscribe := task.Subscribe()
	defer unsubscribe()

	require.Len(t, buffered, 2)
	assert.Equal(t, "a", buffered[0].Type)
	assert.Equal(t, "b", buffered[1].Type)
}

func TestRingBuffer_DropsOldestOnOverflow(t *testing.T) {
	r := newRingBuffer(4)
	for i := 0; i < 10; i++ {
		r.publish(Event{Type: "x"})
	}
	buffered, _, unsubscribe := r.subscribe()
	defer unsubscribe()
	assert.Len(t, buffered, 4)
	assert.Equal(t, int64(6), buffered[0].Seq)
	assert.True(t, buffered[0].Lag, "oldest replayed event should be flagged after an overflow drop")
}

func TestRingBuffer_LiveSubscriberFlaggedOnOverflow(t *testing.T) {
	r := newRingBuffer(4)
	_, live, unsubscribe := r.subscribe()
	defer unsubscribe()

	// The subscriber's own channel buffers eventBufferSize (256) events, so
	// flood past that without draining to force a per-subscriber drop.
	for i := 0; i < eventBufferSize+2; i++ {
		r.publish(Event{Type: "x"})
	}

	var last Event
	for {
		select {
		case ev := <-live:
			last = ev
			continue
		default:
		}
		break
	}
	assert.True(t, last.Lag, "last delivered event should be flagged after a subscriber-channel drop")
}
