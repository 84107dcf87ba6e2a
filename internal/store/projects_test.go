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

func TestCreateProject(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO projects").
		WithArgs("proj-1", "user-1", "my-app", "My App", models.DeploymentModeLocalEngine).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateProject(context.Background(), models.Project{
		ID: "proj-1", OwnerID: "user-1", Slug: "my-app", Name: "My App",
		DeploymentMode: models.DeploymentModeLocalEngine,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProjectsByOwner(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "slug", "name", "deployment_mode", "created_at", "updated_at", "deleted_at",
	}).AddRow("proj-1", "user-1", "my-app", "My App", models.DeploymentModeLocalEngine, now, now, nil)

	mock.ExpectQuery("SELECT .* FROM projects").WithArgs("user-1").WillReturnRows(rows)

	projects, err := s.ListProjectsByOwner(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "my-app", projects[0].Slug)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProjectBySlug_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .* FROM projects").WithArgs("missing").WillReturnRows(sqlmock.NewRows(nil))

	_, err := s.GetProjectBySlug(context.Background(), "missing")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProject_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .* FROM projects").WithArgs("proj-1").WillReturnRows(sqlmock.NewRows(nil))

	_, err := s.GetProject(context.Background(), "proj-1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteProject(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE projects SET deleted_at").
		WithArgs("proj-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.SoftDeleteProject(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
