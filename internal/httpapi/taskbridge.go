package httpapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tesslate/studio-orchestrator/internal/logger"
	"github.com/tesslate/studio-orchestrator/internal/metrics"
	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/taskbus"
)

// submitTask bridges a taskbus.Task into durable storage and the
// WebSocket hub: it submits the work to the bus, then writes the initial
// queued row synchronously before returning, so a poll of
// GET /tasks/{id}/status does not 404 for a task the caller was just
// handed. It then spawns a goroutine that mirrors every bus event onto the
// project's WebSocket broadcast and the durable row, finishing with the
// Task Queue Depth / Duration metrics.
func (s *Server) submitTask(parentCtx context.Context, kind, ownerID, projectID, targetResource string, fn taskbus.Func) (*taskbus.Task, error) {
	t := s.tasks.Submit(parentCtx, kind, fn)

	row := models.Task{
		ID:             t.ID,
		Kind:           kind,
		OwnerID:        ownerID,
		ProjectID:      projectID,
		TargetResource: targetResource,
		Status:         models.TaskQueued,
	}
	if err := s.store.CreateTask(context.Background(), row); err != nil {
		return t, err
	}

	metrics.RecordTaskQueueDepth(kind, models.TaskQueued, 1)
	go s.watchTask(t, kind, projectID)
	return t, nil
}

func (s *Server) watchTask(t *taskbus.Task, kind, projectID string) {
	log := logger.TaskBus()
	started := time.Now()

	buffered, live, unsubscribe := t.Subscribe()
	defer unsubscribe()

	// handle reports whether the task reached a terminal status, so the
	// caller can stop listening instead of blocking on live forever — the
	// ring buffer's channel is only closed by unsubscribe, never by the
	// task finishing.
	handle := func(ev taskbus.Event) (terminal bool) {
		payload, err := json.Marshal(map[string]any{
			"taskId": t.ID,
			"kind":   kind,
			"event":  ev,
		})
		if err != nil {
			return false
		}
		if projectID != "" {
			s.hub.BroadcastToProject(projectID, payload)
		}
		if ev.Lag {
			log.Warn().Str("task_id", t.ID).Str("kind", kind).Msg("event stream lagged, subscriber missed events")
		}

		if ev.Type != "status" {
			return false
		}
		status, ok := ev.Data.(taskbus.Status)
		if !ok {
			return false
		}

		snap := t.Status()
		var resultBytes []byte
		if len(snap.Result) > 0 {
			resultBytes = snap.Result
		}
		if err := s.store.UpdateTaskStatus(context.Background(), t.ID, string(status), resultBytes, "", snap.Error); err != nil {
			log.Error().Err(err).Str("task_id", t.ID).Msg("update task status")
		}

		switch status {
		case taskbus.StatusCompleted, taskbus.StatusFailed, taskbus.StatusCancelled:
			metrics.RecordTaskQueueDepth(kind, string(status), 0)
			metrics.ObserveTaskDuration(kind, string(status), time.Since(started).Seconds())
			return true
		case taskbus.StatusRunning:
			metrics.RecordTaskQueueDepth(kind, string(status), 1)
		}
		return false
	}

	for _, ev := range buffered {
		if handle(ev) {
			return
		}
	}
	for ev := range live {
		if handle(ev) {
			return
		}
	}
}
