package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTaskHandler_Status(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := store.NewForTesting(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "kind", "owner_id", "project_id", "target_resource", "status", "result",
		"error_kind", "error_message", "created_at", "started_at", "finished_at",
	}).AddRow("task-1", models.TaskProjectSetup, "user-1", "proj-1", "proj-1", models.TaskCompleted,
		[]byte(`{"ok":true}`), "", "", now, &now, &now)
	mock.ExpectQuery("SELECT .* FROM tasks").WithArgs("task-1").WillReturnRows(rows)

	s := &Server{store: st}
	engine := gin.New()
	newTaskHandler(s).RegisterRoutes(engine)

	req := httptest.NewRequest(http.MethodGet, "/tasks/task-1/status", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskHandler_Status_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := store.NewForTesting(db)

	mock.ExpectQuery("SELECT .* FROM tasks").WithArgs("missing").WillReturnRows(sqlmock.NewRows(nil))

	s := &Server{store: st}
	engine := gin.New()
	newTaskHandler(s).RegisterRoutes(engine)

	req := httptest.NewRequest(http.MethodGet, "/tasks/missing/status", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
