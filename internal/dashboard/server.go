package dashboard

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/pixelkit/internal/middleware"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const pageTitle = "City of Winnipeg 311 Call Wait Times"

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(
	template.New("index.html").
		Funcs(template.FuncMap{
			"formatTimestamp": formatTimestamp,
			"formatNumber":    formatNumber,
		}).
		ParseFS(templateFS, "templates/index.html"),
)

type Options struct {
	Debug       bool
	ChartWidth  int
	ChartHeight int
}

// Server serves one frame loaded at startup. Everything it holds is
// read-only after NewServer returns.
type Server struct {
	logger   zerolog.Logger
	frame    Frame
	info     LoadInfo
	opts     Options
	page     []byte
	chart    []byte
	chartErr error
	metrics  *metrics
	mux      *http.ServeMux
}

func NewServer(logger zerolog.Logger, frame Frame, info LoadInfo, opts Options) (*Server, error) {
	if opts.ChartWidth <= 0 {
		opts.ChartWidth = 1024
	}
	if opts.ChartHeight <= 0 {
		opts.ChartHeight = 400
	}

	s := &Server{
		logger:  logger,
		frame:   frame,
		info:    info,
		opts:    opts,
		metrics: newMetrics(),
		mux:     http.NewServeMux(),
	}

	s.chart, s.chartErr = RenderChart(frame, opts.ChartWidth, opts.ChartHeight)
	if s.chartErr != nil && !errors.Is(s.chartErr, ErrNoPoints) {
		return nil, s.chartErr
	}
	if s.chartErr != nil {
		logger.Warn().Err(s.chartErr).Msg("chart disabled")
	}

	page, err := s.renderPage()
	if err != nil {
		return nil, err
	}
	s.page = page

	s.metrics.rowsLoaded.Set(float64(len(frame.Rows)))
	s.metrics.nullTimestamps.Set(float64(info.NullTimestamps))

	s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return middleware.Chain(
		s.mux,
		chimiddleware.RequestID,
		chimiddleware.RealIP,
		middleware.Logger(s.logger),
		chimiddleware.Recoverer,
		s.metrics.withHTTPMetrics,
	)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /chart.png", s.handleChart)
	s.mux.HandleFunc("GET /api/rows", s.handleRows)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.page)
}

func (s *Server) handleChart(w http.ResponseWriter, _ *http.Request) {
	if s.chartErr != nil {
		writeError(w, http.StatusNotFound, s.chartErr.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(s.chart)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.chart)
}

func (s *Server) handleRows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"columns": Columns,
		"rows":    s.frame.Rows,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) renderPage() ([]byte, error) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, map[string]any{
		"Title":       pageTitle,
		"Columns":     Columns,
		"Rows":        s.frame.Rows,
		"HasChart":    s.chartErr == nil,
		"ChartWidth":  s.opts.ChartWidth,
		"ChartHeight": s.opts.ChartHeight,
		"Debug":       s.opts.Debug,
		"Info":        s.info,
	})
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTimestamp(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.Format("2006-01-02 15:04:05")
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
