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

func TestInsertContainer(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO containers").
		WithArgs("c-1", "proj-1", "frontend", "node:20", "", 5173, "", models.ContainerPending, "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.InsertContainer(context.Background(), models.Container{
		ID: "c-1", ProjectID: "proj-1", DirName: "frontend", Image: "node:20",
		Port: 5173, Status: models.ContainerPending,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListContainersByProject(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "project_id", "dir_name", "image", "command", "port", "hostname", "status",
		"status_message", "endpoint", "files_ready", "resources_memory", "resources_cpu",
		"created_at", "updated_at",
	}).AddRow("c-1", "proj-1", "frontend", "node:20", "", 5173, "", models.ContainerRunning,
		"", "http://frontend:5173", true, "", "", now, now)

	mock.ExpectQuery("SELECT .* FROM containers").WithArgs("proj-1").WillReturnRows(rows)

	containers, err := s.ListContainersByProject(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, models.ContainerRunning, containers[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetContainer_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .* FROM containers").WithArgs("missing").WillReturnRows(sqlmock.NewRows(nil))

	_, err := s.GetContainer(context.Background(), "missing")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteContainer(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM containers").WithArgs("c-1").WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.DeleteContainer(context.Background(), "c-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertConnection(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO container_connections").
		WithArgs("conn-1", "proj-1", "c-1", "c-2", models.ConnectionDependsOn).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.InsertConnection(context.Background(), models.ContainerConnection{
		ID: "conn-1", ProjectID: "proj-1", FromContainerID: "c-1", ToContainerID: "c-2",
		Kind: models.ConnectionDependsOn,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
