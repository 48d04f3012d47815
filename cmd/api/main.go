package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gsaplatform/orchestrator/internal/api"
	"github.com/gsaplatform/orchestrator/internal/api/handlers"
	"github.com/gsaplatform/orchestrator/internal/blackboard"
	"github.com/gsaplatform/orchestrator/internal/broker"
	"github.com/gsaplatform/orchestrator/internal/catalog"
	"github.com/gsaplatform/orchestrator/internal/config"
	"github.com/gsaplatform/orchestrator/internal/kernel"
	"github.com/gsaplatform/orchestrator/internal/notify"
	"github.com/gsaplatform/orchestrator/internal/search"
	"github.com/gsaplatform/orchestrator/internal/streaming"
	"github.com/gsaplatform/orchestrator/internal/worker"
)

func main() {
	// Load .env file if present (development convenience).
	_ = godotenv.Load()             // .env
	_ = godotenv.Load("../.env")    // running from cmd/*/
	_ = godotenv.Load("../../.env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)
	slog.Info("starting GSA API server", "port", cfg.APIPort, "env", cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Blackboard (hot/durable/blob legs) ---
	redisStore, err := blackboard.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()

	jobStore, err := blackboard.NewJobStore(ctx, cfg.PostgresURL)
	if err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer jobStore.Close()

	blobStore, err := blackboard.NewBlobStore(ctx, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3UseSSL, cfg.S3SkipBucketVerification)
	if err != nil {
		slog.Warn("S3/MinIO client initialization failed; blob reads/writes will fail", "error", err)
	}

	bb := blackboard.New(redisStore, jobStore, blobStore)

	// --- Broker ---
	br, err := broker.New(cfg.NATSURL)
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer br.Close()

	if err := br.EnsureQueues(ctx, cfg.QueueMaxLength); err != nil {
		slog.Error("failed to provision queues", "error", err)
		os.Exit(1)
	}

	// --- Kernels / Catalog / Search ---
	kernels := kernel.NewRegistry()
	for _, k := range []kernel.Kernel{kernel.NewCameraKernel(), kernel.NewSingleSampleKernel(), kernel.NewRiboTEKernel()} {
		if err := kernels.Register(k); err != nil {
			slog.Error("failed to register kernel", "kernel", k.Name(), "error", err)
			os.Exit(1)
		}
		if err := k.LoadLibraries(cfg.PathwayReleaseID); err != nil {
			slog.Warn("kernel failed to load libraries", "kernel", k.Name(), "error", err)
		}
	}

	cat := catalog.New(kernels)

	var idx search.Index
	built, err := search.New(cat.Examples())
	if err != nil {
		slog.Warn("search index build failed; catalog search facet disabled", "error", err)
	} else {
		idx = built
		defer built.Close()
	}

	// --- WebSocket hub ---
	hub := streaming.NewHub()
	go hub.Run()

	// --- Progress bridge: pattern-subscribes across every job's
	// Blackboard progress channel and re-broadcasts into the local hub,
	// since the workers that publish progress run in separate processes
	// and cannot reach this hub directly. ---
	go bridgeProgressToHub(ctx, bb, hub)

	var mailer *notify.Mailer
	if cfg.SMTPHost != "" {
		mailer = notify.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFromAddress)
	} else {
		slog.Warn("no SMTP host configured; stall-sweeper operator alerts will be skipped")
	}

	// --- Stall sweeper (co-resident with the API process) ---
	sweeper := worker.NewSweeper(
		bb, mailer, cfg.MailErrorAddress,
		time.Duration(cfg.StatusTTLSec)*time.Second,
		time.Duration(cfg.MaxWorkerTimeoutSec)*time.Second,
		time.Duration(cfg.LoadingMaxTimeoutSec)*time.Second,
		30*time.Second,
	)
	sweeperErrCh := make(chan error, 1)
	go func() { sweeperErrCh <- sweeper.Start(ctx) }()

	// --- Handlers ---
	catalogHandlers := handlers.NewCatalogHandlers(cat, idx, bb)
	analysisHandlers := handlers.NewAnalysisHandlers(bb, br, cat, cfg.MaxMessageTries, time.Duration(cfg.StatusTTLSec)*time.Second)
	datasetHandlers := handlers.NewDatasetHandlers(bb, br, cat, cfg.MaxMessageTries, time.Duration(cfg.StatusTTLSec)*time.Second)
	streamHandler := handlers.NewStreamHandler(hub, cfg.AllowedOrigins)

	router := api.NewRouter(api.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Bb:             bb,

		AnalysisRateLimit:  cfg.AnalysisRateLimit,
		AnalysisRateWindow: time.Duration(cfg.AnalysisRateWindowSec) * time.Second,
		DataLoadRateLimit:  cfg.DataLoadRateLimit,
		DataLoadRateWindow: time.Duration(cfg.DataLoadRateWindowSec) * time.Second,

		MethodsHandler:        catalogHandlers.Methods(),
		TypesHandler:          catalogHandlers.Types(),
		SubmitAnalysisHandler: analysisHandlers.Submit(),
		StatusHandler:         analysisHandlers.Status(),
		ResultHandler:         analysisHandlers.Result(),
		ReportStatusHandler:   analysisHandlers.ReportStatus(),
		ReportArtifactHandler: analysisHandlers.Artifact(),
		DataSourcesHandler:    catalogHandlers.DataSources(),
		DataExamplesHandler:   catalogHandlers.Examples(),
		DataLoadHandler:       datasetHandlers.Load(),
		DataStatusHandler:     datasetHandlers.Status(),
		DataSummaryHandler:    catalogHandlers.Summary(),
		WSStatusHandler:       streamHandler,
	})

	// --- Start HTTP server ---
	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	// --- Graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	case err := <-sweeperErrCh:
		if err != nil {
			slog.Error("stall sweeper error", "error", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("GSA API server stopped")
}

// bridgeProgressToHub drains every worker's progress:{job_id} pub/sub
// message and re-broadcasts it through the local WebSocket hub, so
// /0.1/ws/status/{id} reflects progress made in a different process.
func bridgeProgressToHub(ctx context.Context, bb *blackboard.Blackboard, hub *streaming.Hub) {
	logger := slog.Default().With("component", "progress_bridge")
	for raw := range bb.PSubscribe(ctx, blackboard.ProgressChannelPattern()) {
		var payload streaming.JobStatusPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			logger.Warn("decode progress message", "error", err)
			continue
		}
		hub.PushJobStatus(payload.JobID, payload)
	}
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}
