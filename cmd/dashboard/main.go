package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelkit/internal/config"
	"github.com/dunamismax/pixelkit/internal/dashboard"
	"github.com/dunamismax/pixelkit/internal/feed"
	"github.com/dunamismax/pixelkit/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.Dashboard.Debug {
		cfg.Log.Level = "debug"
	}
	logger := logging.New(cfg.Log, "dashboard")

	client, err := feed.NewClient(cfg.Dashboard.FeedURL, cfg.Dashboard.FetchTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("create feed client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	frame, info, err := dashboard.Load(ctx, client, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("load feed")
	}

	app, err := dashboard.NewServer(logger, frame, info, dashboard.Options{
		Debug:       cfg.Dashboard.Debug,
		ChartWidth:  cfg.Dashboard.ChartWidth,
		ChartHeight: cfg.Dashboard.ChartHeight,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("build dashboard")
	}

	httpServer := &http.Server{
		Addr:         cfg.Dashboard.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Dashboard.Addr).Msg("listening")
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
