package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchDecodesRecords(t *testing.T) {
	var gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"timestamp":"2024-01-01T10:00:00.000","wait_time_seconds":"45"},{"wait_time_seconds":12}]`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	records, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if gotAccept != "application/json" {
		t.Fatalf("expected Accept application/json, got %q", gotAccept)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if _, ok := records[1]["wait_time_seconds"].(json.Number); !ok {
		t.Fatalf("expected json.Number, got %T", records[1]["wait_time_seconds"])
	}
}

func TestFetchRejectsNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, time.Second)
	if _, err := client.Fetch(context.Background()); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}

func TestFetchUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, _ := NewClient(url, time.Second)
	if _, err := client.Fetch(context.Background()); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}

func TestDecodeRejectsNonArrays(t *testing.T) {
	for _, body := range []string{`{"a":1}`, `not json`, `null`, `[1,2]`, `[] []`} {
		if _, err := Decode([]byte(body)); !errors.Is(err, ErrDecode) {
			t.Fatalf("body %q: expected ErrDecode, got %v", body, err)
		}
	}
}

func TestDecodeDropsNullElements(t *testing.T) {
	records, err := Decode([]byte(`[{"a":"1"},null,{}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient("  ", time.Second); err == nil {
		t.Fatal("expected error for empty url")
	}
}
