package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dunamismax/pixelkit/internal/config"
	"github.com/dunamismax/pixelkit/internal/logging"
	"github.com/dunamismax/pixelkit/internal/store"
	"github.com/dunamismax/pixelkit/internal/telemetry"
	"github.com/dunamismax/pixelkit/internal/webhook"
	"github.com/dunamismax/pixelkit/internal/worker"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log, "worker")
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("setup tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	var recordStore store.RecordStore
	if cfg.Database.DSN != "" {
		pgStore, err := store.NewPostgresRecordStore(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect record store")
		}
		defer func() {
			if err := pgStore.Close(); err != nil {
				logger.Warn().Err(err).Msg("record store close")
			}
		}()
		recordStore = pgStore
		logger.Info().Msg("using postgres record store")
	} else {
		recordStore = store.NewMemoryRecordStore()
		logger.Warn().Msg("database.dsn not set; records are kept in memory")
	}

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.Webhook.SigningSecret,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
	})

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, recordStore, worker.Options{
		Webhook:    webhookClient,
		WebhookURL: cfg.Webhook.URL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create worker")
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", srv.MetricsHandler())
	metricsMux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
	})
	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Worker.MetricsAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	logger.Info().
		Int("concurrency", cfg.Worker.Concurrency).
		Str("queue", cfg.Queue.Name).
		Str("redis", cfg.Queue.RedisAddr).
		Bool("webhook", cfg.Webhook.URL != "").
		Msg("starting worker")

	// Run blocks until SIGINT or SIGTERM.
	runErr := srv.Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	if runErr != nil {
		logger.Fatal().Err(runErr).Msg("worker failed")
	}
}
