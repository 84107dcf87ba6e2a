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

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewForTesting(db), mock
}

func TestGetProjectEnvironment_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .* FROM project_environments").
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := s.GetProjectEnvironment(context.Background(), "proj-1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProjectEnvironment_Found(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"project_id", "substrate_handle", "storage_claim_id", "file_manager_handle",
		"status", "progress", "status_message", "last_activity_at", "created_at", "updated_at",
	}).AddRow("proj-1", "orch-proj-1", "", "", models.EnvActive, 100, "", now, now, now)

	mock.ExpectQuery("SELECT .* FROM project_environments").WithArgs("proj-1").WillReturnRows(rows)

	env, err := s.GetProjectEnvironment(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnvActive, env.Status)
	assert.Equal(t, "orch-proj-1", env.SubstrateHandle)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureProjectEnvironmentRow(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec("INSERT INTO project_environments").
		WithArgs("proj-1", models.EnvCreated).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows := sqlmock.NewRows([]string{
		"project_id", "substrate_handle", "storage_claim_id", "file_manager_handle",
		"status", "progress", "status_message", "last_activity_at", "created_at", "updated_at",
	}).AddRow("proj-1", "", "", "", models.EnvCreated, 0, "", now, now, now)
	mock.ExpectQuery("SELECT .* FROM project_environments").WithArgs("proj-1").WillReturnRows(rows)

	env, err := s.EnsureProjectEnvironmentRow(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnvCreated, env.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProjectEnvironmentStatus(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE project_environments").
		WithArgs("proj-1", models.EnvActive, 100, "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateProjectEnvironmentStatus(context.Background(), "proj-1", models.EnvActive, 100, "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListIdleActiveEnvironments(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"project_id", "substrate_handle", "storage_claim_id", "file_manager_handle",
		"status", "progress", "status_message", "last_activity_at", "created_at", "updated_at",
	}).AddRow("proj-1", "orch-proj-1", "", "", models.EnvActive, 100, "", now.Add(-time.Hour), now, now)

	mock.ExpectQuery("SELECT .* FROM project_environments").
		WithArgs(models.EnvActive, sqlmock.AnyArg()).
		WillReturnRows(rows)

	envs, err := s.ListIdleActiveEnvironments(context.Background(), now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "proj-1", envs[0].ProjectID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
