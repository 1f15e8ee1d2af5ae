package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func sampleFrame() Frame {
	return BuildFrame([]map[string]any{
		{"timestamp": "2024-01-01T00:00:00", "wait_time": "00:00:30", "wait_time_seconds": json.Number("30")},
		{"timestamp": "2024-01-01T01:00:00", "wait_time": "00:01:00", "wait_time_seconds": json.Number("60")},
		{"timestamp": "garbage", "wait_time_seconds": "x"},
	})
}

func newTestServer(t *testing.T, frame Frame, debug bool) *Server {
	t.Helper()
	s, err := NewServer(zerolog.Nop(), frame, LoadInfo{
		FeedURL:        "http://feed.test/data.json",
		Records:        len(frame.Rows),
		NullTimestamps: frame.NullTimestamps(),
		FetchedAt:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		FetchDuration:  150 * time.Millisecond,
	}, Options{Debug: debug, ChartWidth: 640, ChartHeight: 320})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s
}

func TestIndexRendersTableAndChart(t *testing.T) {
	h := newTestServer(t, sampleFrame(), false).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{pageTitle, "<th>wait_time_seconds</th>", "2024-01-01 01:00:00", "00:01:00", `src="/chart.png"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected page to contain %q", want)
		}
	}
	if strings.Count(body, "<tr><td>") != 3 {
		t.Fatalf("expected 3 table rows, got %d", strings.Count(body, "<tr><td>"))
	}
	if strings.Contains(body, `id="debug"`) {
		t.Fatal("expected no debug footer")
	}
}

func TestIndexDebugFooter(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t, sampleFrame(), true).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `id="debug"`) || !strings.Contains(body, "http://feed.test/data.json") {
		t.Fatal("expected debug footer with feed url")
	}
	if !strings.Contains(body, "null timestamps: 1") {
		t.Fatal("expected null timestamp count in footer")
	}
}

func TestChartServesPNG(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t, sampleFrame(), false).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chart.png", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("expected image/png, got %s", got)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode chart: %v", err)
	}
	if cfg.Width != 640 || cfg.Height != 320 {
		t.Fatalf("expected 640x320, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestChartWithoutPlottableRows(t *testing.T) {
	frame := BuildFrame([]map[string]any{{"timestamp": "nope", "wait_time_seconds": "5"}, {"wait_time_seconds": "7"}})
	h := newTestServer(t, frame, false).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chart.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Contains(rec.Body.String(), `src="/chart.png"`) {
		t.Fatal("expected page without chart image")
	}
}

func TestChartWithSingleTimestampedRow(t *testing.T) {
	frame := BuildFrame([]map[string]any{{"timestamp": "2024-01-01", "wait_time_seconds": "5"}, {"timestamp": "nope"}})
	h := newTestServer(t, frame, false).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chart.png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("expected image/png, got %s", got)
	}
	if _, err := png.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Fatalf("decode chart: %v", err)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rec.Body.String(), `src="/chart.png"`) {
		t.Fatal("expected page with chart image")
	}
}

func TestRowsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t, sampleFrame(), false).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rows", nil))

	var body struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(body.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(body.Rows))
	}
	if body.Rows[2]["timestamp"] != nil {
		t.Fatalf("expected null timestamp, got %v", body.Rows[2]["timestamp"])
	}
	if body.Rows[2]["wait_time"] != "N/A" || body.Rows[2]["wait_time_seconds"] != float64(0) {
		t.Fatalf("expected defaults, got %v", body.Rows[2])
	}
}

func TestDashboardMetrics(t *testing.T) {
	h := newTestServer(t, sampleFrame(), false).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "pixelkit_dashboard_rows_loaded 3") {
		t.Fatal("expected rows loaded gauge")
	}
}

func TestRenderChartFlatSeries(t *testing.T) {
	frame := BuildFrame([]map[string]any{
		{"timestamp": "2024-01-01", "wait_time_seconds": "10"},
		{"timestamp": "2024-01-02", "wait_time_seconds": "10"},
	})
	if _, err := RenderChart(frame, 300, 200); err != nil {
		t.Fatalf("render flat chart: %v", err)
	}

	same := BuildFrame([]map[string]any{
		{"timestamp": "2024-01-01", "wait_time_seconds": "1"},
		{"timestamp": "2024-01-01", "wait_time_seconds": "2"},
	})
	if _, err := RenderChart(same, 300, 200); err != nil {
		t.Fatalf("render chart with one distinct timestamp: %v", err)
	}

	if _, err := RenderChart(BuildFrame(nil), 300, 200); !errors.Is(err, ErrNoPoints) {
		t.Fatalf("expected ErrNoPoints, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	fetcher := &stubFetcher{records: []map[string]any{
		{"timestamp": "2024-01-01", "wait_time_seconds": "1"},
		{"timestamp": "?"},
	}}
	frame, info, err := Load(context.Background(), fetcher, zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(frame.Rows) != 2 || info.Records != 2 || info.NullTimestamps != 1 {
		t.Fatalf("unexpected load result rows=%d info=%+v", len(frame.Rows), info)
	}
	if info.FeedURL != "http://stub" {
		t.Fatalf("expected feed url, got %s", info.FeedURL)
	}

	fetcher.err = errors.New("boom")
	if _, _, err := Load(context.Background(), fetcher, zerolog.Nop()); err == nil {
		t.Fatal("expected load error")
	}
}

type stubFetcher struct {
	records []map[string]any
	err     error
}

func (s *stubFetcher) Fetch(context.Context) ([]map[string]any, error) {
	return s.records, s.err
}

func (s *stubFetcher) URL() string {
	return "http://stub"
}
