package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesslate/studio-orchestrator/internal/models"
)

func TestCreateTask(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO tasks").
		WithArgs("task-1", models.TaskContainerStart, "user-1", "proj-1", "c-1", models.TaskQueued).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateTask(context.Background(), models.Task{
		ID: "task-1", Kind: models.TaskContainerStart, OwnerID: "user-1",
		ProjectID: "proj-1", TargetResource: "c-1", Status: models.TaskQueued,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTaskStatus_Running(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE tasks SET status").
		WithArgs("task-1", models.TaskRunning, []byte(nil), "", "", sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateTaskStatus(context.Background(), "task-1", models.TaskRunning, nil, "", "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTaskStatus_Completed(t *testing.T) {
	s, mock := newMockStore(t)
	result := []byte(`{"ok":true}`)
	mock.ExpectExec("UPDATE tasks SET status").
		WithArgs("task-1", models.TaskCompleted, result, "", "", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateTaskStatus(context.Background(), "task-1", models.TaskCompleted, result, "", "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTask_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .* FROM tasks").WithArgs("missing").WillReturnRows(sqlmock.NewRows(nil))

	_, err := s.GetTask(context.Background(), "missing")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTasksByProject(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "kind", "owner_id", "project_id", "target_resource", "status", "result",
		"error_kind", "error_message", "created_at", "started_at", "finished_at",
	}).AddRow("task-1", models.TaskContainerStart, "user-1", "proj-1", "c-1", models.TaskCompleted,
		nil, "", "", now, now, now)

	mock.ExpectQuery("SELECT .* FROM tasks").WithArgs("proj-1").WillReturnRows(rows)

	tasks, err := s.ListTasksByProject(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskCompleted, tasks[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
