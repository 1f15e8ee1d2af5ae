package store

import (
	"context"

	"github.com/dunamismax/pixelkit/internal/domain"
)

// RecordStore persists conversion records. Create is idempotent on ID so
// queue redeliveries do not duplicate rows.
type RecordStore interface {
	Create(ctx context.Context, rec domain.ConversionRecord) error
	Get(ctx context.Context, id string) (domain.ConversionRecord, bool, error)
}
