package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gsaplatform/orchestrator/internal/blackboard"
	"github.com/gsaplatform/orchestrator/internal/broker"
	"github.com/gsaplatform/orchestrator/internal/catalog"
	"github.com/gsaplatform/orchestrator/internal/config"
	"github.com/gsaplatform/orchestrator/internal/kernel"
	"github.com/gsaplatform/orchestrator/internal/notify"
	"github.com/gsaplatform/orchestrator/internal/worker"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Load("../.env")
	_ = godotenv.Load("../../.env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)
	slog.Info("starting GSA Dataset Loader", "env", cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		slog.Error("failed to connect to S3/MinIO", "error", err)
		os.Exit(1)
	}

	bb := blackboard.New(redisStore, jobStore, blobStore)

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

	// The dataset loader only needs the /data/sources table, but the
	// catalog always builds the full listing set from one kernel
	// registry, so register kernels the same way the API process does.
	kernels := kernel.NewRegistry()
	for _, k := range []kernel.Kernel{kernel.NewCameraKernel(), kernel.NewSingleSampleKernel(), kernel.NewRiboTEKernel()} {
		if err := kernels.Register(k); err != nil {
			slog.Error("failed to register kernel", "kernel", k.Name(), "error", err)
			os.Exit(1)
		}
	}
	cat := catalog.New(kernels)

	var mailer *notify.Mailer
	if cfg.SMTPHost != "" {
		mailer = notify.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFromAddress)
	} else {
		slog.Warn("no SMTP host configured; operator alerts on load failure will be skipped")
	}

	loader := worker.NewDatasetLoader(
		bb, br, cat, mailer, cfg.MailErrorAddress,
		time.Duration(cfg.StatusTTLSec)*time.Second,
		time.Duration(cfg.DatasetCacheTTLSec)*time.Second,
	)

	if err := loader.Start(ctx); err != nil {
		slog.Error("failed to start dataset loader", "error", err)
		os.Exit(1)
	}

	slog.Info("dataset loader ready, listening for jobs")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	slog.Info("received shutdown signal, draining...", "signal", sig)
	cancel()
	slog.Info("GSA Dataset Loader stopped")
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
