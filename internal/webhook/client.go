// Package webhook delivers signed event notifications over HTTP.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelkit/internal/id"
)

const (
	HeaderSignature = "X-Pixelkit-Signature"
	HeaderTimestamp = "X-Pixelkit-Timestamp"
	HeaderEvent     = "X-Pixelkit-Event"
	HeaderDelivery  = "X-Pixelkit-Delivery"

	EventConversionRecorded = "conversion.recorded"
)

// ErrRejected marks a 4xx answer other than 408 or 429; it is not retried.
var ErrRejected = errors.New("webhook rejected")

type Config struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Envelope is the JSON body of every delivery.
type Envelope struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	CreatedAt time.Time `json:"created_at"`
	Data      any       `json:"data"`
}

type Client struct {
	httpClient *http.Client
	secret     string
	attempts   int
	backoff    time.Duration
	maxBackoff time.Duration
	now        func() time.Time
}

func NewClient(cfg Config) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		secret:     cfg.SigningSecret,
		attempts:   max(1, cfg.MaxAttempts),
		backoff:    cfg.InitialBackoff,
		maxBackoff: cfg.MaxBackoff,
		now:        time.Now,
	}
	if c.httpClient.Timeout <= 0 {
		c.httpClient.Timeout = 10 * time.Second
	}
	if c.backoff <= 0 {
		c.backoff = time.Second
	}
	c.maxBackoff = max(c.maxBackoff, c.backoff)
	return c
}

// Send posts event wrapped in an Envelope to endpoint, retrying transport
// errors and 408, 429 and 5xx answers with capped exponential backoff. An
// empty endpoint is a no-op.
func (c *Client) Send(ctx context.Context, endpoint, event string, data any) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	createdAt := c.now().UTC()
	env := Envelope{ID: id.New(), Event: event, CreatedAt: createdAt, Data: data}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal webhook %s: %w", event, err)
	}
	timestamp := strconv.FormatInt(createdAt.Unix(), 10)
	signature := Sign(c.secret, timestamp, body)

	wait := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		lastErr = c.post(ctx, endpoint, env, timestamp, signature, body)
		if lastErr == nil || errors.Is(lastErr, ErrRejected) || attempt == c.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, c.maxBackoff)
	}
	if lastErr != nil {
		return fmt.Errorf("deliver %s %s: %w", event, env.ID, lastErr)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, env Envelope, timestamp, signature string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderDelivery, env.ID)
	req.Header.Set(HeaderEvent, env.Event)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("status %d", code)
	default:
		return fmt.Errorf("%w: status %d", ErrRejected, code)
	}
}

// Sign returns the signature header value for body sent at timestamp.
// Receivers recompute it with the shared secret to authenticate deliveries.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
