package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gsaplatform/orchestrator/internal/api"
	"github.com/gsaplatform/orchestrator/internal/apperr"
	"github.com/gsaplatform/orchestrator/internal/blackboard"
	"github.com/gsaplatform/orchestrator/internal/broker"
	"github.com/gsaplatform/orchestrator/internal/catalog"
	"github.com/gsaplatform/orchestrator/internal/domain"
	"github.com/gsaplatform/orchestrator/internal/validation"
)

// analysisWorkItem mirrors the envelope the Analysis Worker decodes;
// kept private to this package and worker package independently rather
// than shared, since the two sides are only coupled by the wire shape.
type analysisWorkItem struct {
	JobID string               `json:"job_id"`
	Input domain.AnalysisInput `json:"input"`
}

// AnalysisHandlers serves the admission and polling endpoints owned by
// the analysis job lifecycle: POST /analysis, GET /status/{id},
// GET /result/{id}, GET /report_status/{id}.
type AnalysisHandlers struct {
	bb            *blackboard.Blackboard
	br            *broker.Broker
	cat           *catalog.Catalog
	maxRetries    int
	statusTTL     time.Duration
	logger        *slog.Logger
}

// NewAnalysisHandlers builds the analysis handlers.
func NewAnalysisHandlers(bb *blackboard.Blackboard, br *broker.Broker, cat *catalog.Catalog, maxRetries int, statusTTL time.Duration) *AnalysisHandlers {
	return &AnalysisHandlers{
		bb:         bb,
		br:         br,
		cat:        cat,
		maxRetries: maxRetries,
		statusTTL:  statusTTL,
		logger:     slog.Default().With("component", "analysis_handler"),
	}
}

// Submit handles POST /0.1/analysis.
func (h *AnalysisHandlers) Submit() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in domain.AnalysisInput
		if err := decodeJSONOrGzip(r, &in); err != nil {
			api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, err.Error())
			return
		}

		if err := validation.AnalysisInput(h.cat, &in); err != nil {
			writeValidationErr(w, err)
			return
		}

		jobID, err := h.bb.NewJobID(r.Context(), "analysis")
		if err != nil {
			api.Error(w, http.StatusServiceUnavailable, api.ErrCodeServiceUnavail, "blackboard unavailable")
			return
		}

		now := time.Now()
		job := domain.Job{
			JobID:       jobID,
			Kind:        domain.JobKindAnalysis,
			CreatedAt:   now,
			UpdatedAt:   now,
			State:       domain.JobStateRunning,
			Progress:    0,
			Description: "queued",
		}
		if err := h.bb.Put(r.Context(), blackboard.StatusKey(jobID), job, h.statusTTL); err != nil {
			api.Error(w, http.StatusServiceUnavailable, api.ErrCodeServiceUnavail, "blackboard unavailable")
			return
		}
		if err := h.bb.TrackRunning(r.Context(), "analysis", jobID); err != nil {
			h.logger.Warn("track running analysis job", "job_id", jobID, "error", err)
		}
		if h.bb.Durable != nil {
			if err := h.bb.Durable.RecordJob(r.Context(), &job); err != nil {
				h.logger.Warn("record job audit row", "job_id", jobID, "error", err)
			}
		}

		work := analysisWorkItem{JobID: jobID, Input: in}
		if err := h.publishWithRetry(r, broker.QueueAnalysis, work); err != nil {
			h.logger.Error("publish analysis job after retries", "job_id", jobID, "error", err)
			api.Error(w, http.StatusServiceUnavailable, api.ErrCodeServiceUnavail, "broker unavailable")
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(jobID))
	})
}

// publishWithRetry retries a publish up to maxRetries times, the
// §4.1 MAX_MESSAGE_TRIES admission contract.
func (h *AnalysisHandlers) publishWithRetry(r *http.Request, queue string, v interface{}) error {
	var lastErr error
	for attempt := 0; attempt < h.maxRetries; attempt++ {
		if err := h.br.Publish(r.Context(), queue, v); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("exhausted %d attempts: %w", h.maxRetries, lastErr)
}

// Status handles GET /0.1/status/{id}.
func (h *AnalysisHandlers) Status() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jobID := mux.Vars(r)["id"]
		job, err := h.jobByID(r, jobID)
		if err != nil {
			api.Error(w, http.StatusNotFound, api.ErrCodeNotFound, "job not found")
			return
		}
		api.JSON(w, http.StatusOK, job)
	})
}

// jobByID reads the hot Redis status record, falling back to the
// durable Postgres row if the Redis TTL has already expired -- the
// audit trail §5 promises for a job whose hot record is gone.
func (h *AnalysisHandlers) jobByID(r *http.Request, jobID string) (domain.Job, error) {
	var job domain.Job
	err := h.bb.GetJSON(r.Context(), blackboard.StatusKey(jobID), &job)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, blackboard.ErrNotFound) || h.bb.Durable == nil {
		return domain.Job{}, err
	}
	durableJob, durableErr := h.bb.Durable.GetJob(r.Context(), jobID)
	if durableErr != nil {
		return domain.Job{}, err
	}
	return *durableJob, nil
}

// Result handles GET /0.1/result/{id}.
func (h *AnalysisHandlers) Result() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jobID := mux.Vars(r)["id"]
		job, err := h.jobByID(r, jobID)
		if err != nil {
			api.Error(w, http.StatusNotFound, api.ErrCodeNotFound, "job not found")
			return
		}
		if job.State != domain.JobStateComplete {
			api.Error(w, http.StatusNotAcceptable, api.ErrCodeConflict, fmt.Sprintf("job is %s, not complete", job.State))
			return
		}

		raw, err := h.bb.Get(r.Context(), blackboard.ResultMetaKey(jobID))
		if err != nil {
			api.Error(w, http.StatusNotFound, api.ErrCodeNotFound, "result not found")
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(raw))
	})
}

// ReportStatus handles GET /0.1/report_status/{id}.
func (h *AnalysisHandlers) ReportStatus() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jobID := mux.Vars(r)["id"]
		var status domain.ReportStatus
		if err := h.bb.GetJSON(r.Context(), blackboard.StatusKey(jobID), &status); err != nil {
			api.Error(w, http.StatusNotFound, api.ErrCodeNotFound, "report job not found")
			return
		}
		api.JSON(w, http.StatusOK, status)
	})
}

// Artifact handles GET /0.1/report/{id}/{name}, streaming the blob a
// report job wrote to the Blackboard's blob store back to the caller
// using the URL the Report Generator advertised in its status record.
func (h *AnalysisHandlers) Artifact() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		jobID, name := vars["id"], vars["name"]

		var meta domain.ReportArtifact
		if err := h.bb.GetJSON(r.Context(), blackboard.ReportArtifactMetaKey(jobID, name), &meta); err != nil {
			api.Error(w, http.StatusNotFound, api.ErrCodeNotFound, "artifact not found")
			return
		}

		body, err := h.bb.Blobs.Get(r.Context(), blackboard.ReportArtifactKey(jobID, name))
		if err != nil {
			h.logger.Error("fetch report artifact", "job_id", jobID, "name", name, "error", err)
			api.Error(w, http.StatusNotFound, api.ErrCodeNotFound, "artifact not found")
			return
		}
		defer body.Close()

		w.Header().Set("Content-Type", meta.Mimetype)
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, body); err != nil {
			h.logger.Warn("stream report artifact", "job_id", jobID, "name", name, "error", err)
		}
	})
}

// writeValidationErr maps a *apperr.Error produced at admission time to
// its HTTP status (400/404/406), or 500 if err isn't one of ours.
func writeValidationErr(w http.ResponseWriter, err error) {
	e, ok := apperr.As(err)
	if !ok {
		api.Error(w, http.StatusInternalServerError, api.ErrCodeInternalError, err.Error())
		return
	}
	code := api.ErrCodeInvalidRequest
	switch e.HTTPStatus {
	case http.StatusNotFound:
		code = api.ErrCodeNotFound
	case http.StatusNotAcceptable:
		code = api.ErrCodeConflict
	}
	api.Error(w, e.HTTPStatus, code, e.Message)
}
