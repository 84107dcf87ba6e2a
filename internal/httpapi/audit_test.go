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

	"github.com/tesslate/studio-orchestrator/internal/store"
)

func TestAuditHandler_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := store.NewForTesting(db)

	projectRows := sqlmock.NewRows([]string{
		"id", "owner_id", "slug", "name", "deployment_mode", "created_at", "updated_at", "deleted_at",
	}).AddRow("proj-1", "user-1", "demo", "Demo", "local-engine", time.Now(), time.Now(), nil)
	mock.ExpectQuery("SELECT .* FROM projects").WithArgs("demo").WillReturnRows(projectRows)

	auditRows := sqlmock.NewRows([]string{
		"id", "user_id", "project_id", "tool", "params_digest", "risk_tier",
		"success", "error_message", "duration_ms", "created_at",
	}).AddRow("inv-1", "user-1", "proj-1", "edit_file", "deadbeef", "never", true, "", int64(42), time.Now())
	mock.ExpectQuery("SELECT .* FROM tool_invocations").WithArgs("proj-1", 200).WillReturnRows(auditRows)

	s := &Server{store: st}
	engine := gin.New()
	newAuditHandler(s).RegisterRoutes(engine)

	req := httptest.NewRequest(http.MethodGet, "/projects/demo/audit", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditHandler_List_ProjectNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := store.NewForTesting(db)

	mock.ExpectQuery("SELECT .* FROM projects").WithArgs("missing").WillReturnRows(sqlmock.NewRows(nil))

	s := &Server{store: st}
	engine := gin.New()
	newAuditHandler(s).RegisterRoutes(engine)

	req := httptest.NewRequest(http.MethodGet, "/projects/missing/audit", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
