package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type Fetcher interface {
	Fetch(ctx context.Context) ([]map[string]any, error)
	URL() string
}

// LoadInfo describes the single startup fetch; it feeds the debug footer.
type LoadInfo struct {
	FeedURL        string
	Records        int
	NullTimestamps int
	FetchedAt      time.Time
	FetchDuration  time.Duration
}

// Load fetches the feed once and builds the frame. Any error is meant to be
// fatal for the caller; there is no retry.
func Load(ctx context.Context, fetcher Fetcher, logger zerolog.Logger) (Frame, LoadInfo, error) {
	startedAt := time.Now()
	records, err := fetcher.Fetch(ctx)
	if err != nil {
		return Frame{}, LoadInfo{}, fmt.Errorf("load feed %s: %w", fetcher.URL(), err)
	}

	if e := logger.Debug(); e.Enabled() {
		e.Int("records", len(records)).Interface("head", head(records, 5)).Msg("raw feed records")
	}

	frame := BuildFrame(records)
	info := LoadInfo{
		FeedURL:        fetcher.URL(),
		Records:        len(frame.Rows),
		NullTimestamps: frame.NullTimestamps(),
		FetchedAt:      startedAt.UTC(),
		FetchDuration:  time.Since(startedAt),
	}

	if e := logger.Debug(); e.Enabled() {
		e.Interface("head", head(frame.Rows, 5)).Msg("cleaned rows")
	}
	logger.Info().
		Str("feed_url", info.FeedURL).
		Int("rows", info.Records).
		Int("null_timestamps", info.NullTimestamps).
		Dur("fetch_duration", info.FetchDuration).
		Msg("feed loaded")

	return frame, info, nil
}

func head[T any](items []T, n int) []T {
	if len(items) < n {
		return items
	}
	return items[:n]
}
