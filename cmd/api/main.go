package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelkit/internal/api"
	"github.com/dunamismax/pixelkit/internal/config"
	"github.com/dunamismax/pixelkit/internal/convert"
	"github.com/dunamismax/pixelkit/internal/logging"
	"github.com/dunamismax/pixelkit/internal/queue"
	"github.com/dunamismax/pixelkit/internal/ratelimit"
	"github.com/dunamismax/pixelkit/internal/storage"
	"github.com/dunamismax/pixelkit/internal/telemetry"
	"github.com/dunamismax/pixelkit/internal/useragent"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	if err := convert.Startup(); err != nil {
		logger.Fatal().Err(err).Msg("start image runtime")
	}
	defer convert.Shutdown()

	converter, err := convert.New(convert.Options{JPEGQuality: cfg.API.JPEGQuality})
	if err != nil {
		logger.Fatal().Err(err).Msg("create converter")
	}
	userAgents, err := useragent.NewGenerator()
	if err != nil {
		logger.Fatal().Err(err).Msg("create user agent generator")
	}

	opts := api.Options{
		RateLimitUserIDHeader: cfg.RateLimit.UserIDHeader,
		MaxUploadBytes:        cfg.API.MaxUploadBytes,
		CORSOrigins:           cfg.API.CORSOrigins,
	}

	if cfg.Storage.Enabled {
		archive, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("create storage client")
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			logger.Fatal().Err(err).Str("bucket", archive.Bucket()).Msg("ensure bucket")
		}
		opts.Archive = archive
		logger.Info().Str("endpoint", cfg.Storage.Endpoint).Str("bucket", archive.Bucket()).Msg("conversion archive enabled")
	}

	if cfg.Queue.Enabled {
		queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Warn().Err(err).Msg("queue client close")
			}
		}()
		opts.Recorder = queueClient
		logger.Info().Str("queue", cfg.Queue.Name).Str("redis", cfg.Queue.RedisAddr).Msg("conversion records enabled")
	}

	if cfg.RateLimit.Enabled {
		limiter, redisClient, err := ratelimit.NewFromConfig(cfg.RateLimit, cfg.Queue)
		if err != nil {
			logger.Fatal().Err(err).Msg("create rate limiter")
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn().Err(err).Msg("rate limit redis close")
			}
		}()
		opts.RateLimiter = limiter
		logger.Info().Int("capacity", cfg.RateLimit.Capacity).Dur("window", cfg.RateLimit.Window).Msg("rate limiting enabled")
	}

	app := api.NewServer(logger, converter, userAgents, opts)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.API.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
