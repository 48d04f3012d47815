package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/gsaplatform/orchestrator/internal/blackboard"
	"github.com/gsaplatform/orchestrator/internal/domain"
)

func newTestAnalysisHandlers(t *testing.T) (*AnalysisHandlers, *blackboard.Blackboard) {
	t.Helper()
	bb := newTestBlackboard(t)
	return NewAnalysisHandlers(bb, nil, newTestCatalog(t), 3, time.Hour), bb
}

func TestAnalysisHandlers_Submit_RejectsEmptyInput(t *testing.T) {
	h, _ := newTestAnalysisHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/0.1/analysis", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	h.Submit().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalysisHandlers_Submit_RejectsMalformedJSON(t *testing.T) {
	h, _ := newTestAnalysisHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/0.1/analysis", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.Submit().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalysisHandlers_Status_NotFound(t *testing.T) {
	h, _ := newTestAnalysisHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/0.1/status/Analysis00000001", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "Analysis00000001"})
	rec := httptest.NewRecorder()
	h.Status().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalysisHandlers_Result_NotAcceptableWhileRunning(t *testing.T) {
	h, bb := newTestAnalysisHandlers(t)

	jobID := "Analysis00000002"
	job := domain.Job{JobID: jobID, Kind: domain.JobKindAnalysis, State: domain.JobStateRunning, UpdatedAt: time.Now()}
	require.NoError(t, bb.Put(t.Context(), blackboard.StatusKey(jobID), job, time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/0.1/result/"+jobID, nil)
	req = mux.SetURLVars(req, map[string]string{"id": jobID})
	rec := httptest.NewRecorder()
	h.Result().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotAcceptable, rec.Code)
}

func TestAnalysisHandlers_Result_ReturnsStoredJSONVerbatim(t *testing.T) {
	h, bb := newTestAnalysisHandlers(t)
	ctx := t.Context()

	jobID := "Analysis00000003"
	job := domain.Job{JobID: jobID, Kind: domain.JobKindAnalysis, State: domain.JobStateComplete, UpdatedAt: time.Now()}
	require.NoError(t, bb.Put(ctx, blackboard.StatusKey(jobID), job, time.Hour))
	require.NoError(t, bb.Put(ctx, blackboard.ResultMetaKey(jobID), `{"job_id":"Analysis00000003","tables":[]}`, time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/0.1/result/"+jobID, nil)
	req = mux.SetURLVars(req, map[string]string{"id": jobID})
	rec := httptest.NewRecorder()
	h.Result().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"job_id":"Analysis00000003","tables":[]}`, rec.Body.String())
}

func TestAnalysisHandlers_Status_NotFoundWithoutDurableStore(t *testing.T) {
	h, _ := newTestAnalysisHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/0.1/status/Analysis00000099", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "Analysis00000099"})
	rec := httptest.NewRecorder()
	h.Status().ServeHTTP(rec, req)

	// bb.Durable is nil in this test harness, so a missing Redis record
	// still surfaces as not found rather than panicking on a nil store.
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalysisHandlers_Artifact_NotFoundWithoutMetadata(t *testing.T) {
	h, _ := newTestAnalysisHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/0.1/report/Analysis00000001/analysis.pdf", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "Analysis00000001", "name": "analysis.pdf"})
	rec := httptest.NewRecorder()
	h.Artifact().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
