package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dunamismax/pixelkit/internal/convert"
	"github.com/dunamismax/pixelkit/internal/middleware"
	"github.com/dunamismax/pixelkit/internal/queue"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultMaxUploadBytes = 32 << 20

type Server struct {
	logger                zerolog.Logger
	converter             convert.Converter
	userAgents            userAgentSource
	instructions          instructionsDoc
	archive               conversionArchive
	recorder              recordEnqueuer
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	maxUploadBytes        int64
	corsOrigins           []string
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

type userAgentSource interface {
	Get(name string) (string, error)
	Browsers() []string
}

type conversionArchive interface {
	ArchiveConversion(ctx context.Context, conversionID, extension, contentType string, data []byte) (string, error)
}

type recordEnqueuer interface {
	EnqueueConversionRecord(ctx context.Context, payload queue.ConversionRecordPayload) (*asynq.TaskInfo, error)
}

// Options carries the optional collaborators. Nil archive, recorder or rate
// limiter switch the corresponding feature off.
type Options struct {
	Archive               conversionArchive
	Recorder              recordEnqueuer
	RateLimiter           RateLimiter
	RateLimitUserIDHeader string
	MaxUploadBytes        int64
	CORSOrigins           []string
}

func NewServer(logger zerolog.Logger, converter convert.Converter, userAgents userAgentSource, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if strings.TrimSpace(opts.RateLimitUserIDHeader) == "" {
		opts.RateLimitUserIDHeader = "X-User-ID"
	}

	s := &Server{
		logger:                logger,
		converter:             converter,
		userAgents:            userAgents,
		instructions:          newInstructions(userAgents.Browsers()),
		archive:               opts.Archive,
		recorder:              opts.Recorder,
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: opts.RateLimitUserIDHeader,
		maxUploadBytes:        opts.MaxUploadBytes,
		corsOrigins:           opts.CORSOrigins,
		metrics:               newMetrics(),
		tracer:                otel.Tracer("pixelkit/api"),
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return middleware.Chain(
		s.mux,
		chimiddleware.RequestID,
		chimiddleware.RealIP,
		middleware.Logger(s.logger),
		chimiddleware.Recoverer,
		middleware.CORS(s.corsOrigins),
		s.withTracing,
		s.metrics.withHTTPMetrics,
		s.withRateLimit,
	)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleInstructions)
	s.mux.HandleFunc("POST /convert", s.handleConvert)
	s.mux.HandleFunc("GET /fake_user_agent", s.handleFakeUserAgent)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
