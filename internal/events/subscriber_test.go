package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesslate/studio-orchestrator/internal/cache"
)

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

type fakeBroadcaster struct {
	projectID string
	payload   []byte
	calls     int
}

func (f *fakeBroadcaster) BroadcastToProject(projectID string, message []byte) {
	f.projectID = projectID
	f.payload = message
	f.calls++
}

func disabledCache(t *testing.T) *cache.Cache {
	c, err := cache.NewCache(cache.Config{Enabled: false})
	require.NoError(t, err)
	return c
}

func TestHandleContainerStatus_UpdatesStoreAndBroadcasts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("UPDATE containers SET").
		WithArgs("running", "http://frontend:5173", "", sqlmock.AnyArg(), "c-1").
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow("proj-1"))

	broadcaster := &fakeBroadcaster{}
	s := &Subscriber{db: db, cache: disabledCache(t), broadcaster: broadcaster, enabled: true}

	payload := mustMarshal(t, ContainerStatusEvent{
		ContainerID: "c-1", Status: "running", Endpoint: "http://frontend:5173", DriverID: "driver-1",
	})

	s.handleContainerStatus(payload)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "proj-1", broadcaster.projectID)
	assert.Equal(t, 1, broadcaster.calls)
}

func TestHandleContainerStatus_UnknownContainerSkipsBroadcast(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("UPDATE containers SET").
		WithArgs("running", "", "", sqlmock.AnyArg(), "missing").
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}))

	broadcaster := &fakeBroadcaster{}
	s := &Subscriber{db: db, cache: disabledCache(t), broadcaster: broadcaster, enabled: true}

	payload := mustMarshal(t, ContainerStatusEvent{ContainerID: "missing", Status: "running"})

	s.handleContainerStatus(payload)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 0, broadcaster.calls)
}

func TestHandleEnvironmentStatus_UpdatesStoreAndBroadcasts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE project_environments SET").
		WithArgs("hibernating", 50, "", sqlmock.AnyArg(), "proj-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	broadcaster := &fakeBroadcaster{}
	s := &Subscriber{db: db, cache: disabledCache(t), broadcaster: broadcaster, enabled: true}

	payload := mustMarshal(t, EnvironmentStatusEvent{
		ProjectID: "proj-1", Status: "hibernating", Progress: 50,
	})

	s.handleEnvironmentStatus(payload)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "proj-1", broadcaster.projectID)
}

func TestIsDriverStale_NoCacheReportsStale(t *testing.T) {
	s := &Subscriber{cache: disabledCache(t), enabled: true}
	stale, err := s.IsDriverStale(context.Background(), "driver-1")
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestHandleDriverHeartbeat_DisabledCacheDoesNotPanic(t *testing.T) {
	s := &Subscriber{cache: disabledCache(t), enabled: true}
	s.handleDriverHeartbeat(mustMarshal(t, DriverHeartbeatEvent{
		DriverID: "driver-1", Substrate: SubstrateLocalEngine, Timestamp: time.Now(), Status: "ok",
	}))
	// cache is disabled, so nothing is actually recorded and IsDriverStale
	// still reports true rather than panicking or erroring.
	stale, err := s.IsDriverStale(context.Background(), "driver-1")
	require.NoError(t, err)
	assert.True(t, stale)
}
