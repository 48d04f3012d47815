package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

func newTestDatasetHandlers(t *testing.T) *DatasetHandlers {
	t.Helper()
	return NewDatasetHandlers(newTestBlackboard(t), nil, newTestCatalog(t), 3, time.Hour)
}

func TestDatasetHandlers_Load_RejectsUnknownResource(t *testing.T) {
	h := newTestDatasetHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/0.1/data/load/does-not-exist", strings.NewReader("[]"))
	req = mux.SetURLVars(req, map[string]string{"resource_id": "does-not-exist"})
	rec := httptest.NewRecorder()
	h.Load().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDatasetHandlers_Load_RejectsMalformedJSON(t *testing.T) {
	h := newTestDatasetHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/0.1/data/load/gse-demo-001", strings.NewReader("not json"))
	req = mux.SetURLVars(req, map[string]string{"resource_id": "gse-demo-001"})
	rec := httptest.NewRecorder()
	h.Load().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDatasetHandlers_Status_NotFound(t *testing.T) {
	h := newTestDatasetHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/0.1/data/status/Dataset00000001", nil)
	req = mux.SetURLVars(req, map[string]string{"loading_id": "Dataset00000001"})
	rec := httptest.NewRecorder()
	h.Status().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
