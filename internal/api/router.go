package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gsaplatform/orchestrator/internal/api/middleware"
	"github.com/gsaplatform/orchestrator/internal/blackboard"
)

// RouterConfig holds all dependencies required to build the API
// router. Handler fields that are nil fall back to a 501 stub, letting
// the router be assembled incrementally.
type RouterConfig struct {
	AllowedOrigins []string

	Bb *blackboard.Blackboard

	AnalysisRateLimit  int
	AnalysisRateWindow time.Duration
	DataLoadRateLimit  int
	DataLoadRateWindow time.Duration

	MethodsHandler        http.Handler // GET  /methods
	TypesHandler          http.Handler // GET  /types
	SubmitAnalysisHandler http.Handler // POST /analysis
	StatusHandler         http.Handler // GET  /status/{id}
	ResultHandler         http.Handler // GET  /result/{id}
	ReportStatusHandler   http.Handler // GET  /report_status/{id}
	ReportArtifactHandler http.Handler // GET  /report/{id}/{name}
	DataSourcesHandler    http.Handler // GET  /data/sources
	DataExamplesHandler   http.Handler // GET  /data/examples
	DataLoadHandler       http.Handler // POST /data/load/{resource_id}
	DataStatusHandler     http.Handler // GET  /data/status/{loading_id}
	DataSummaryHandler    http.Handler // GET  /data/summary/{dataset_id}

	// WSStatusHandler is the optional live-push endpoint; nil disables it
	// entirely rather than serving a 501 stub, since it's explicitly
	// optional per the design.
	WSStatusHandler http.Handler // GET /ws/status/{id}
}

// NewRouter builds the *mux.Router for base path /0.1 with the shared
// middleware chain and, on the two admission endpoints, sliding-window
// rate limiting keyed by caller address.
func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.RecoveryMiddleware)
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.BodyLimitMiddleware)

	base := r.PathPrefix("/0.1").Subrouter()

	base.Handle("/methods", handlerOrStub(cfg.MethodsHandler)).Methods(http.MethodGet, http.MethodOptions)
	base.Handle("/types", handlerOrStub(cfg.TypesHandler)).Methods(http.MethodGet, http.MethodOptions)

	analysisRateLimit := middleware.RateLimitMiddleware(cfg.Bb, "analysis", cfg.AnalysisRateLimit, cfg.AnalysisRateWindow)
	base.Handle("/analysis", analysisRateLimit(handlerOrStub(cfg.SubmitAnalysisHandler))).Methods(http.MethodPost, http.MethodOptions)
	base.Handle("/status/{id}", handlerOrStub(cfg.StatusHandler)).Methods(http.MethodGet, http.MethodOptions)
	base.Handle("/result/{id}", handlerOrStub(cfg.ResultHandler)).Methods(http.MethodGet, http.MethodOptions)
	base.Handle("/report_status/{id}", handlerOrStub(cfg.ReportStatusHandler)).Methods(http.MethodGet, http.MethodOptions)
	base.Handle("/report/{id}/{name}", handlerOrStub(cfg.ReportArtifactHandler)).Methods(http.MethodGet, http.MethodOptions)

	base.Handle("/data/sources", handlerOrStub(cfg.DataSourcesHandler)).Methods(http.MethodGet, http.MethodOptions)
	base.Handle("/data/examples", handlerOrStub(cfg.DataExamplesHandler)).Methods(http.MethodGet, http.MethodOptions)

	dataLoadRateLimit := middleware.RateLimitMiddleware(cfg.Bb, "data_load", cfg.DataLoadRateLimit, cfg.DataLoadRateWindow)
	base.Handle("/data/load/{resource_id}", dataLoadRateLimit(handlerOrStub(cfg.DataLoadHandler))).Methods(http.MethodPost, http.MethodOptions)
	base.Handle("/data/status/{loading_id}", handlerOrStub(cfg.DataStatusHandler)).Methods(http.MethodGet, http.MethodOptions)
	base.Handle("/data/summary/{dataset_id}", handlerOrStub(cfg.DataSummaryHandler)).Methods(http.MethodGet, http.MethodOptions)

	if cfg.WSStatusHandler != nil {
		base.Handle("/ws/status/{id}", cfg.WSStatusHandler).Methods(http.MethodGet)
	}

	return r
}

// handlerOrStub returns h if non-nil, otherwise a 501 stub so the
// router can be assembled before every handler exists.
func handlerOrStub(h http.Handler) http.Handler {
	if h != nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Error(w, http.StatusNotImplemented, "not_implemented", "this endpoint is not yet implemented")
	})
}
