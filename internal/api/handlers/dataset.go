package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gsaplatform/orchestrator/internal/api"
	"github.com/gsaplatform/orchestrator/internal/blackboard"
	"github.com/gsaplatform/orchestrator/internal/broker"
	"github.com/gsaplatform/orchestrator/internal/catalog"
	"github.com/gsaplatform/orchestrator/internal/domain"
	"github.com/gsaplatform/orchestrator/internal/validation"
)

// datasetWorkItem mirrors the envelope the Dataset Loader decodes.
type datasetWorkItem struct {
	LoadID     string              `json:"load_id"`
	ResourceID string              `json:"resource_id"`
	Parameters []domain.Parameter  `json:"parameters,omitempty"`
}

// DatasetHandlers serves the dataset-loading admission and polling
// endpoints: POST /data/load/{resource_id}, GET /data/status/{loading_id}.
type DatasetHandlers struct {
	bb         *blackboard.Blackboard
	br         *broker.Broker
	cat        *catalog.Catalog
	maxRetries int
	statusTTL  time.Duration
	logger     *slog.Logger
}

// NewDatasetHandlers builds the dataset-loading handlers.
func NewDatasetHandlers(bb *blackboard.Blackboard, br *broker.Broker, cat *catalog.Catalog, maxRetries int, statusTTL time.Duration) *DatasetHandlers {
	return &DatasetHandlers{
		bb:         bb,
		br:         br,
		cat:        cat,
		maxRetries: maxRetries,
		statusTTL:  statusTTL,
		logger:     slog.Default().With("component", "dataset_handler"),
	}
}

// Load handles POST /0.1/data/load/{resource_id}. The body is a bare
// array of Parameter, not a wrapped object.
func (h *DatasetHandlers) Load() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resourceID := mux.Vars(r)["resource_id"]

		var params []domain.Parameter
		if r.ContentLength != 0 {
			if err := decodeJSONOrGzip(r, &params); err != nil {
				api.Error(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, err.Error())
				return
			}
		}

		req := domain.DatasetLoadRequest{ResourceID: resourceID, Parameters: params}
		if err := validation.DatasetLoadRequest(h.cat, resourceID, &req); err != nil {
			writeValidationErr(w, err)
			return
		}

		loadID, err := h.bb.NewJobID(r.Context(), "dataset")
		if err != nil {
			api.Error(w, http.StatusServiceUnavailable, api.ErrCodeServiceUnavail, "blackboard unavailable")
			return
		}

		now := time.Now()
		status := domain.DatasetLoadingStatus{
			LoadID:      loadID,
			State:       domain.JobStateRunning,
			Progress:    0,
			Description: "queued",
			UpdatedAt:   now,
		}
		if err := h.bb.Put(r.Context(), blackboard.StatusKey(loadID), status, h.statusTTL); err != nil {
			api.Error(w, http.StatusServiceUnavailable, api.ErrCodeServiceUnavail, "blackboard unavailable")
			return
		}
		if err := h.bb.TrackRunning(r.Context(), "dataset", loadID); err != nil {
			h.logger.Warn("track running dataset load", "load_id", loadID, "error", err)
		}

		work := datasetWorkItem{LoadID: loadID, ResourceID: resourceID, Parameters: params}
		if err := h.publishWithRetry(r, work); err != nil {
			h.logger.Error("publish dataset load after retries", "load_id", loadID, "error", err)
			api.Error(w, http.StatusServiceUnavailable, api.ErrCodeServiceUnavail, "broker unavailable")
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(loadID))
	})
}

func (h *DatasetHandlers) publishWithRetry(r *http.Request, v interface{}) error {
	var lastErr error
	for attempt := 0; attempt < h.maxRetries; attempt++ {
		if err := h.br.Publish(r.Context(), broker.QueueDataset, v); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("exhausted %d attempts: %w", h.maxRetries, lastErr)
}

// Status handles GET /0.1/data/status/{loading_id}.
func (h *DatasetHandlers) Status() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loadID := mux.Vars(r)["loading_id"]
		var status domain.DatasetLoadingStatus
		if err := h.bb.GetJSON(r.Context(), blackboard.StatusKey(loadID), &status); err != nil {
			api.Error(w, http.StatusNotFound, api.ErrCodeNotFound, "loading job not found")
			return
		}
		api.JSON(w, http.StatusOK, status)
	})
}
