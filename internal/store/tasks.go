package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

// CreateTask persists the durable record of a background operation
// alongside the in-process internal/taskbus.Task that actually runs it, so
// task history survives a control-plane restart.
func (s *Store) CreateTask(ctx context.Context, t models.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, kind, owner_id, project_id, target_resource, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Kind, t.OwnerID, t.ProjectID, t.TargetResource, t.Status)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "create task", err)
	}
	return nil
}

// UpdateTaskStatus reflects a taskbus.Task's terminal (or running)
// transition into the durable row.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID, status string, result []byte, errKind, errMessage string) error {
	var startedAt, finishedAt any
	switch status {
	case models.TaskRunning:
		startedAt = time.Now().UTC()
	case models.TaskCompleted, models.TaskFailed, models.TaskCancelled:
		finishedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = $2, result = $3, error_kind = $4, error_message = $5,
		       started_at = COALESCE($6, started_at), finished_at = COALESCE($7, finished_at)
		WHERE id = $1`,
		taskID, status, result, errKind, errMessage, startedAt, finishedAt)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "update task status", err)
	}
	return nil
}

// GetTask returns the durable task row by id.
func (s *Store) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var t models.Task
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, owner_id, project_id, target_resource, status, result,
		       error_kind, error_message, created_at, started_at, finished_at
		FROM tasks WHERE id = $1`, taskID).Scan(
		&t.ID, &t.Kind, &t.OwnerID, &t.ProjectID, &t.TargetResource, &t.Status, &t.Result,
		&t.ErrorKind, &t.ErrorMessage, &t.CreatedAt, &t.StartedAt, &t.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, orcherr.UserError(orcherr.CodeNotFound, "task not found: "+taskID)
	}
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "get task", err)
	}
	return &t, nil
}

// ListTasksByProject returns a project's task history, newest first.
func (s *Store) ListTasksByProject(ctx context.Context, projectID string) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, owner_id, project_id, target_resource, status, result,
		       error_kind, error_message, created_at, started_at, finished_at
		FROM tasks WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "list tasks", err)
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Kind, &t.OwnerID, &t.ProjectID, &t.TargetResource, &t.Status, &t.Result,
			&t.ErrorKind, &t.ErrorMessage, &t.CreatedAt, &t.StartedAt, &t.FinishedAt); err != nil {
			return nil, orcherr.PermanentError(orcherr.CodeInternal, "scan task", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
