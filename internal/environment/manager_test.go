package environment

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesslate/studio-orchestrator/internal/cache"
	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/store"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

// fakeDriver is a minimal in-memory substrate.Driver for exercising the
// Environment Manager's state machine without a real Docker/Kubernetes
// backend.
type fakeDriver struct {
	hibernateErr error
	stopped      []string
}

func (f *fakeDriver) Substrate() string { return "fake" }
func (f *fakeDriver) EnsureProjectSpace(ctx context.Context, projectID string) (substrate.SpaceHandle, error) {
	return substrate.SpaceHandle("space-" + projectID), nil
}
func (f *fakeDriver) EnsureFileManager(ctx context.Context, space substrate.SpaceHandle) error { return nil }
func (f *fakeDriver) MaterializeTemplate(ctx context.Context, space substrate.SpaceHandle, containerDir string, source substrate.TemplateSource) error {
	return nil
}
func (f *fakeDriver) StartContainer(ctx context.Context, space substrate.SpaceHandle, spec substrate.ContainerSpec) (string, error) {
	return "http://fake", nil
}
func (f *fakeDriver) StopContainer(ctx context.Context, space substrate.SpaceHandle, containerID string) error {
	f.stopped = append(f.stopped, containerID)
	return nil
}
func (f *fakeDriver) ReadFile(ctx context.Context, space substrate.SpaceHandle, containerDir, path string) ([]byte, error) {
	return nil, nil
}
func (f *fakeDriver) WriteFile(ctx context.Context, space substrate.SpaceHandle, containerDir, path string, content []byte) error {
	return nil
}
func (f *fakeDriver) DeleteFile(ctx context.Context, space substrate.SpaceHandle, containerDir, path string) error {
	return nil
}
func (f *fakeDriver) ListDir(ctx context.Context, space substrate.SpaceHandle, containerDir, path string) ([]string, error) {
	return nil, nil
}
func (f *fakeDriver) Glob(ctx context.Context, space substrate.SpaceHandle, containerDir, pattern string) ([]string, error) {
	return nil, nil
}
func (f *fakeDriver) Grep(ctx context.Context, space substrate.SpaceHandle, containerDir, pattern string) ([]substrate.GrepMatch, error) {
	return nil, nil
}
func (f *fakeDriver) ExecCommand(ctx context.Context, space substrate.SpaceHandle, containerID string, argv []string, timeout time.Duration) (substrate.ExecResult, error) {
	return substrate.ExecResult{}, nil
}
func (f *fakeDriver) OpenTerminal(ctx context.Context, space substrate.SpaceHandle, containerID string) (substrate.TerminalStream, error) {
	return nil, nil
}
func (f *fakeDriver) Hibernate(ctx context.Context, space substrate.SpaceHandle, projectID string) (string, error) {
	if f.hibernateErr != nil {
		return "", f.hibernateErr
	}
	return "archive-" + projectID, nil
}
func (f *fakeDriver) Restore(ctx context.Context, projectID, archiveKey string) (substrate.SpaceHandle, error) {
	return substrate.SpaceHandle("space-" + projectID), nil
}

func envRows(status string, progress int, substrateHandle, storageClaimID string, lastActivity time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"project_id", "substrate_handle", "storage_claim_id", "file_manager_handle",
		"status", "progress", "status_message", "last_activity_at", "created_at", "updated_at",
	}).AddRow("proj-1", substrateHandle, storageClaimID, "", status, progress, "", lastActivity, now, now)
}

func newTestManager(t *testing.T, driver substrate.Driver) (*Manager, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.NewForTesting(db)
	disabledCache, err := cache.NewCache(cache.Config{Enabled: false})
	require.NoError(t, err)

	return New(s, disabledCache, driver, nil, 30), mock
}

func TestEnsure_AlreadyActive(t *testing.T) {
	mgr, mock := newTestManager(t, &fakeDriver{})

	mock.ExpectExec("INSERT INTO project_environments").
		WithArgs("proj-1", models.EnvCreated).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .* FROM project_environments").
		WithArgs("proj-1").
		WillReturnRows(envRows(models.EnvActive, 100, "space-proj-1", "", time.Now()))

	space, err := mgr.Ensure(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, substrate.SpaceHandle("space-proj-1"), space)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsure_RestoresHibernated(t *testing.T) {
	mgr, mock := newTestManager(t, &fakeDriver{})

	mock.ExpectExec("INSERT INTO project_environments").
		WithArgs("proj-1", models.EnvCreated).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .* FROM project_environments").
		WithArgs("proj-1").
		WillReturnRows(envRows(models.EnvHibernated, 100, "", "archive-proj-1", time.Now()))

	// Restore's own status re-check.
	mock.ExpectQuery("SELECT .* FROM project_environments").
		WithArgs("proj-1").
		WillReturnRows(envRows(models.EnvHibernated, 100, "", "archive-proj-1", time.Now()))
	mock.ExpectExec("UPDATE project_environments").
		WithArgs("proj-1", models.EnvRestoring, 20, "expanding archive").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE project_environments").
		WithArgs("proj-1", "space-proj-1", "archive-proj-1", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE project_environments").
		WithArgs("proj-1", models.EnvActive, 100, "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	space, err := mgr.Ensure(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, substrate.SpaceHandle("space-proj-1"), space)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsure_ErrorStateRejected(t *testing.T) {
	mgr, mock := newTestManager(t, &fakeDriver{})

	mock.ExpectExec("INSERT INTO project_environments").
		WithArgs("proj-1", models.EnvCreated).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .* FROM project_environments").
		WithArgs("proj-1").
		WillReturnRows(envRows(models.EnvError, 0, "", "", time.Now()))

	_, err := mgr.Ensure(context.Background(), "proj-1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHibernate_RequiresActive(t *testing.T) {
	mgr, mock := newTestManager(t, &fakeDriver{})

	mock.ExpectQuery("SELECT .* FROM project_environments").
		WithArgs("proj-1").
		WillReturnRows(envRows(models.EnvCreated, 10, "space-proj-1", "", time.Now()))

	err := mgr.Hibernate(context.Background(), "proj-1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
