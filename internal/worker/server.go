package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dunamismax/pixelkit/internal/config"
	"github.com/dunamismax/pixelkit/internal/domain"
	"github.com/dunamismax/pixelkit/internal/queue"
	"github.com/dunamismax/pixelkit/internal/store"
	"github.com/dunamismax/pixelkit/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	outcomeRecorded = "recorded"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

type Server struct {
	logger        zerolog.Logger
	server        *asynq.Server
	recordStore   store.RecordStore
	webhookClient webhookSender
	webhookURL    string
	metrics       *metrics
	tracer        trace.Tracer
	now           func() time.Time
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

// Options holds the optional webhook target. An empty URL disables delivery.
type Options struct {
	Webhook    webhookSender
	WebhookURL string
}

func NewServer(
	logger zerolog.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	recordStore store.RecordStore,
	opts Options,
) (*Server, error) {
	if recordStore == nil {
		return nil, fmt.Errorf("record store is required")
	}

	s := newServer(logger, recordStore, opts)
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: max(1, workerCfg.Concurrency),
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			Logger:   asynqLogger{logger: logger.With().Str("source", "asynq").Logger()},
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error().
					Err(err).
					Str("type", task.Type()).
					Int("retry", retried).
					Int("max_retry", maxRetry).
					Msg("task failed")
			}),
		},
	)
	return s, nil
}

func newServer(logger zerolog.Logger, recordStore store.RecordStore, opts Options) *Server {
	return &Server{
		logger:        logger,
		recordStore:   recordStore,
		webhookClient: opts.Webhook,
		webhookURL:    opts.WebhookURL,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("pixelkit/worker"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeConversionRecord, s.handleConversionRecord)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleConversionRecord(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := outcomeFailed
	defer func() {
		s.metrics.recordDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.recordsTotal.WithLabelValues(outcome).Inc()
	}()

	payload, err := queue.ParseConversionRecordPayload(task)
	if err != nil {
		outcome = outcomeRejected
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.record_conversion", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("conversion.id", payload.ConversionID),
		attribute.String("conversion.target_format", payload.TargetFormat),
		attribute.Int64("conversion.output_bytes", payload.OutputBytes),
	)
	defer span.End()

	rec := recordFromPayload(payload, s.now())
	if err := rec.Validate(); err != nil {
		outcome = outcomeRejected
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid record")
		return fmt.Errorf("validate record %s: %v: %w", payload.ConversionID, err, asynq.SkipRetry)
	}

	stored, exists, err := s.recordStore.Get(ctx, rec.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return fmt.Errorf("lookup record %s: %w", rec.ID, err)
	}

	if exists {
		// Redelivery after a failed webhook; usage was counted on first insert.
		rec = stored
		s.logger.Debug().Str("conversion_id", rec.ID).Msg("conversion already recorded")
	} else {
		if err := s.recordStore.Create(ctx, rec); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store failed")
			return fmt.Errorf("store record %s: %w", rec.ID, err)
		}

		s.logger.Info().
			Str("conversion_id", rec.ID).
			Str("source_format", rec.SourceFormat).
			Str("target_format", rec.TargetFormat).
			Int64("bytes_saved", rec.BytesSaved()).
			Msg("conversion recorded")

		s.metrics.pixelsTotal.WithLabelValues(rec.TargetFormat).Add(float64(rec.Pixels()))
		s.metrics.bytesSavedTotal.WithLabelValues(rec.TargetFormat).Add(float64(rec.BytesSaved()))
	}

	if err := s.dispatchWebhook(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = outcomeRecorded
	span.SetStatus(codes.Ok, "recorded")
	return nil
}

func (s *Server) dispatchWebhook(ctx context.Context, rec domain.ConversionRecord) error {
	if s.webhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, s.webhookURL, webhook.EventConversionRecorded, rec); err != nil {
		s.metrics.webhookFailures.Inc()
		s.logger.Warn().Err(err).Str("conversion_id", rec.ID).Msg("webhook delivery failed")
		return fmt.Errorf("dispatch webhook: %w", err)
	}
	return nil
}

func recordFromPayload(payload queue.ConversionRecordPayload, recordedAt time.Time) domain.ConversionRecord {
	return domain.ConversionRecord{
		ID:           payload.ConversionID,
		SourceFormat: payload.SourceFormat,
		TargetFormat: payload.TargetFormat,
		InputBytes:   payload.InputBytes,
		OutputBytes:  payload.OutputBytes,
		Width:        payload.Width,
		Height:       payload.Height,
		ObjectKey:    payload.ObjectKey,
		RequestedAt:  payload.RequestedAt,
		RecordedAt:   recordedAt,
	}
}
