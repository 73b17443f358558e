package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Badaboom1995/gekto-sub001/internal/db"
	"github.com/Badaboom1995/gekto-sub001/internal/model"
	"github.com/Badaboom1995/gekto-sub001/internal/repository"
)

func newRecordsRouter(t *testing.T) (*gin.Engine, *repository.RecordRepository) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	conn, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	records := repository.NewRecordRepository(conn)
	r := gin.New()
	registerRecordRoutes(r, records)
	return r, records
}

func TestSessionHistoryRoute(t *testing.T) {
	r, records := newRecordsRouter(t)
	records.RecordSessionState("liz-1", model.StateLoading)
	records.RecordSessionState("liz-1", model.StateReady)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/liz-1/history", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "loading")
	assert.Contains(t, w.Body.String(), "ready")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/liz-9/history", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlanRoute(t *testing.T) {
	r, records := newRecordsRouter(t)
	records.RecordPlan(&model.ExecutionPlan{
		ID:     "plan-1",
		Status: model.PlanStatusCreated,
		Tasks:  []model.Task{{ID: "task-1", Title: "write parser", Prompt: "implement it"}},
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plans/plan-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "write parser")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plans/plan-9", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
