package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dunamismax/pixelkit/internal/domain"
	_ "github.com/lib/pq"
)

const recordSchemaSQL = `
CREATE TABLE IF NOT EXISTS conversion_records (
	id TEXT PRIMARY KEY,
	source_format TEXT NOT NULL DEFAULT '',
	target_format TEXT NOT NULL,
	input_bytes BIGINT NOT NULL,
	output_bytes BIGINT NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	object_key TEXT NOT NULL DEFAULT '',
	requested_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);
`

type PostgresRecordStore struct {
	db *sql.DB
}

func NewPostgresRecordStore(ctx context.Context, dsn string) (*PostgresRecordStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresRecordStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresRecordStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, recordSchemaSQL); err != nil {
		return fmt.Errorf("ensure conversion_records schema: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Close() error {
	return s.db.Close()
}

func (s *PostgresRecordStore) Create(ctx context.Context, rec domain.ConversionRecord) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO conversion_records
		 (id, source_format, target_format, input_bytes, output_bytes, width, height, object_key, requested_at, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID,
		rec.SourceFormat,
		rec.TargetFormat,
		rec.InputBytes,
		rec.OutputBytes,
		rec.Width,
		rec.Height,
		rec.ObjectKey,
		rec.RequestedAt,
		rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversion record: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Get(ctx context.Context, id string) (domain.ConversionRecord, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, source_format, target_format, input_bytes, output_bytes, width, height, object_key, requested_at, recorded_at
		 FROM conversion_records
		 WHERE id = $1`,
		id,
	)

	var rec domain.ConversionRecord
	if err := row.Scan(
		&rec.ID,
		&rec.SourceFormat,
		&rec.TargetFormat,
		&rec.InputBytes,
		&rec.OutputBytes,
		&rec.Width,
		&rec.Height,
		&rec.ObjectKey,
		&rec.RequestedAt,
		&rec.RecordedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ConversionRecord{}, false, nil
		}
		return domain.ConversionRecord{}, false, fmt.Errorf("query conversion record: %w", err)
	}

	return rec, true, nil
}
