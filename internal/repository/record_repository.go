package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"catalogcrawler/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS product_records (
	id             UUID PRIMARY KEY,
	external_id    TEXT NOT NULL DEFAULT '',
	source_url     TEXT NOT NULL UNIQUE,
	title          TEXT NOT NULL DEFAULT '',
	captured_at    TIMESTAMPTZ NOT NULL,
	current_price  DOUBLE PRECISION,
	original_price DOUBLE PRECISION,
	payload        JSONB NOT NULL
)`

// RecordRepository stores one row per product page, keyed by source URL.
// It satisfies sink.Sink.
type RecordRepository struct {
	DB *sql.DB
}

func (r *RecordRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create product_records: %w", err)
	}
	return nil
}

// Save inserts rec, or replaces the row already stored for its source URL.
// The row id is kept on replace.
func (r *RecordRepository) Save(ctx context.Context, rec model.ProductRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.SourceURL, err)
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO product_records
		(id, external_id, source_url, title, captured_at, current_price, original_price, payload)
		VALUES ($1, $2, $3, $4, to_timestamp($5), $6, $7, $8)
		ON CONFLICT (source_url) DO UPDATE
		SET external_id = EXCLUDED.external_id, title = EXCLUDED.title, captured_at = EXCLUDED.captured_at,
		    current_price = EXCLUDED.current_price, original_price = EXCLUDED.original_price,
		    payload = EXCLUDED.payload
	`, uuid.NewString(), rec.ExternalID, rec.SourceURL, rec.Title, rec.CapturedAt,
		nullFloat(rec.Pricing.Current), nullFloat(rec.Pricing.Original), payload)
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.SourceURL, err)
	}
	return nil
}

func (r *RecordRepository) Write(ctx context.Context, rec model.ProductRecord) error {
	return r.Save(ctx, rec)
}

func (r *RecordRepository) Close() error {
	return r.DB.Close()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
