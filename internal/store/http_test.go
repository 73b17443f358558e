package store

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Store) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	s, err := Open(filepath.Join(t.TempDir(), "gekto.json"))
	require.NoError(t, err)

	r := gin.New()
	RegisterRoutes(r, s)
	return r, s
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	r.ServeHTTP(w, req)
	return w
}

func TestStatePutGetDelete(t *testing.T) {
	r, s := newTestRouter(t)

	w := doRequest(r, http.MethodPut, "/state/widget", `{"theme":"dark"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, s.Version())

	w = doRequest(r, http.MethodGet, "/state/widget", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"theme":"dark"}`, w.Body.String())

	w = doRequest(r, http.MethodDelete, "/state/widget", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/state/widget", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStateGetUnknownKey(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/state/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatePutRejectsInvalidJSON(t *testing.T) {
	r, s := newTestRouter(t)

	w := doRequest(r, http.MethodPut, "/state/widget", `{broken`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, s.Version())
}

func TestStatePutRejectsOversizedValue(t *testing.T) {
	r, s := newTestRouter(t)

	big := `"` + strings.Repeat("x", maxValueSize) + `"`
	w := doRequest(r, http.MethodPut, "/state/widget", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, s.Version())
}
