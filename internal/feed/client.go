// Package feed fetches the JSON record feed the dashboard renders.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrFetch  = errors.New("feed fetch failed")
	ErrDecode = errors.New("feed decode failed")
)

// Records larger than this are rejected rather than buffered.
const maxFeedBytes = 64 << 20

type Client struct {
	httpClient *http.Client
	url        string
}

func NewClient(url string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("feed url is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}, nil
}

func (c *Client) URL() string {
	return c.url
}

// Fetch performs a single GET and returns the feed as a list of JSON objects.
// Numbers are kept as json.Number so the caller decides how to coerce them.
func (c *Client) Fetch(ctx context.Context) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	if len(body) > maxFeedBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrFetch, maxFeedBytes)
	}

	return Decode(body)
}

// Decode parses a JSON array of objects. Null array elements are dropped.
func Decode(body []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if records == nil {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrDecode)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after array", ErrDecode)
	}

	out := records[:0]
	for _, rec := range records {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}
