package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dunamismax/pixelkit/internal/domain"
	"github.com/dunamismax/pixelkit/internal/queue"
	"github.com/dunamismax/pixelkit/internal/store"
	"github.com/dunamismax/pixelkit/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(recordStore store.RecordStore, opts Options) *Server {
	s := newServer(zerolog.Nop(), recordStore, opts)
	s.now = func() time.Time { return fixedNow }
	return s
}

func newRecordTask(t *testing.T, payload queue.ConversionRecordPayload) *asynq.Task {
	t.Helper()
	task, err := queue.NewConversionRecordTask(payload)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func validPayload() queue.ConversionRecordPayload {
	return queue.ConversionRecordPayload{
		ConversionID: "conv-1",
		SourceFormat: "png",
		TargetFormat: "JPEG",
		InputBytes:   1_000,
		OutputBytes:  400,
		Width:        20,
		Height:       10,
		ObjectKey:    "conversions/conv-1.jpg",
		RequestedAt:  fixedNow.Add(-time.Second),
	}
}

func TestHandleConversionRecordStoresRecord(t *testing.T) {
	recordStore := store.NewMemoryRecordStore()
	sender := &captureSender{}
	s := newTestServer(recordStore, Options{Webhook: sender, WebhookURL: "https://hooks.example.com/pixelkit"})

	if err := s.handleConversionRecord(context.Background(), newRecordTask(t, validPayload())); err != nil {
		t.Fatalf("handle task: %v", err)
	}

	rec, ok, err := recordStore.Get(context.Background(), "conv-1")
	if err != nil || !ok {
		t.Fatalf("expected stored record, ok=%v err=%v", ok, err)
	}
	if rec.RecordedAt != fixedNow {
		t.Fatalf("expected recorded_at=%s, got %s", fixedNow, rec.RecordedAt)
	}
	if rec.BytesSaved() != 600 {
		t.Fatalf("expected bytes_saved=600, got %d", rec.BytesSaved())
	}

	if sender.calls != 1 {
		t.Fatalf("expected 1 webhook call, got %d", sender.calls)
	}
	if sender.event != webhook.EventConversionRecorded {
		t.Fatalf("expected event %s, got %s", webhook.EventConversionRecorded, sender.event)
	}
	if got, ok := sender.payload.(domain.ConversionRecord); !ok || got.ID != "conv-1" {
		t.Fatalf("expected record payload, got %#v", sender.payload)
	}
}

func TestHandleConversionRecordSkipsRetryOnBadPayload(t *testing.T) {
	s := newTestServer(store.NewMemoryRecordStore(), Options{})

	err := s.handleConversionRecord(context.Background(), asynq.NewTask(queue.TypeConversionRecord, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	invalid := validPayload()
	invalid.Width = 0
	err = s.handleConversionRecord(context.Background(), newRecordTask(t, invalid))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for invalid record, got %v", err)
	}
}

func TestHandleConversionRecordRetriesStoreFailure(t *testing.T) {
	s := newTestServer(failingStore{}, Options{})

	err := s.handleConversionRecord(context.Background(), newRecordTask(t, validPayload()))
	if err == nil {
		t.Fatal("expected store error")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatal("expected store failures to be retried")
	}
}

func TestHandleConversionRecordWithoutWebhookURL(t *testing.T) {
	sender := &captureSender{}
	s := newTestServer(store.NewMemoryRecordStore(), Options{Webhook: sender})

	if err := s.handleConversionRecord(context.Background(), newRecordTask(t, validPayload())); err != nil {
		t.Fatalf("handle task: %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("expected no webhook calls, got %d", sender.calls)
	}
}

func TestHandleConversionRecordReportsWebhookFailure(t *testing.T) {
	recordStore := store.NewMemoryRecordStore()
	sender := &captureSender{err: errors.New("connection refused")}
	s := newTestServer(recordStore, Options{Webhook: sender, WebhookURL: "https://hooks.example.com/pixelkit"})

	err := s.handleConversionRecord(context.Background(), newRecordTask(t, validPayload()))
	if err == nil || !strings.Contains(err.Error(), "dispatch webhook") {
		t.Fatalf("expected webhook error, got %v", err)
	}
	if _, ok, _ := recordStore.Get(context.Background(), "conv-1"); !ok {
		t.Fatal("expected the record to be kept after a webhook failure")
	}

	// A redelivery keeps the stored record and retries the webhook.
	sender.err = nil
	s.now = func() time.Time { return fixedNow.Add(time.Hour) }
	if err := s.handleConversionRecord(context.Background(), newRecordTask(t, validPayload())); err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if sender.calls != 2 {
		t.Fatalf("expected 2 webhook attempts, got %d", sender.calls)
	}
	got, ok := sender.payload.(domain.ConversionRecord)
	if !ok || !got.RecordedAt.Equal(fixedNow) {
		t.Fatalf("expected the stored record to be redelivered, got %#v", sender.payload)
	}
}

func TestRedeliveryCountsUsageOnce(t *testing.T) {
	sender := &captureSender{err: errors.New("connection refused")}
	s := newTestServer(store.NewMemoryRecordStore(), Options{Webhook: sender, WebhookURL: "https://hooks.example.com/pixelkit"})

	if err := s.handleConversionRecord(context.Background(), newRecordTask(t, validPayload())); err == nil {
		t.Fatal("expected webhook error on first delivery")
	}
	if err := s.handleConversionRecord(context.Background(), newRecordTask(t, validPayload())); err == nil {
		t.Fatal("expected webhook error on second delivery")
	}
	sender.err = nil
	if err := s.handleConversionRecord(context.Background(), newRecordTask(t, validPayload())); err != nil {
		t.Fatalf("third delivery: %v", err)
	}

	rec := httptest.NewRecorder()
	s.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`pixelkit_worker_records_total{outcome="failed"} 2`,
		`pixelkit_worker_records_total{outcome="recorded"} 1`,
		`pixelkit_usage_pixels_converted_total{format="JPEG"} 200`,
		`pixelkit_usage_bytes_saved_total{format="JPEG"} 600`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}

func TestHandleConversionRecordRetriesLookupFailure(t *testing.T) {
	s := newTestServer(lookupFailingStore{}, Options{})

	err := s.handleConversionRecord(context.Background(), newRecordTask(t, validPayload()))
	if err == nil || !strings.Contains(err.Error(), "lookup record") {
		t.Fatalf("expected lookup error, got %v", err)
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatal("expected lookup failures to be retried")
	}
}

func TestMetricsHandlerExposesRecordCounters(t *testing.T) {
	s := newTestServer(store.NewMemoryRecordStore(), Options{})
	if err := s.handleConversionRecord(context.Background(), newRecordTask(t, validPayload())); err != nil {
		t.Fatalf("handle task: %v", err)
	}

	rec := httptest.NewRecorder()
	s.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`pixelkit_worker_records_total{outcome="recorded"} 1`,
		`pixelkit_usage_pixels_converted_total{format="JPEG"} 200`,
		`pixelkit_usage_bytes_saved_total{format="JPEG"} 600`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics output to contain %q", want)
		}
	}
}

func TestRecordWebhookBodyShape(t *testing.T) {
	body, err := json.Marshal(recordFromPayload(validPayload(), fixedNow))
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	for _, field := range []string{`"id":"conv-1"`, `"target_format":"JPEG"`, `"object_key":"conversions/conv-1.jpg"`} {
		if !strings.Contains(string(body), field) {
			t.Fatalf("expected %s in %s", field, body)
		}
	}
}

type captureSender struct {
	calls   int
	event   string
	payload any
	err     error
}

func (c *captureSender) Send(_ context.Context, _ string, event string, payload any) error {
	c.calls++
	c.event = event
	c.payload = payload
	return c.err
}

type failingStore struct{}

func (failingStore) Create(context.Context, domain.ConversionRecord) error {
	return errors.New("database unavailable")
}

func (failingStore) Get(context.Context, string) (domain.ConversionRecord, bool, error) {
	return domain.ConversionRecord{}, false, nil
}

type lookupFailingStore struct{}

func (lookupFailingStore) Create(context.Context, domain.ConversionRecord) error {
	return nil
}

func (lookupFailingStore) Get(context.Context, string) (domain.ConversionRecord, bool, error) {
	return domain.ConversionRecord{}, false, errors.New("database unavailable")
}
