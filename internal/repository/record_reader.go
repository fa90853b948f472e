package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"catalogcrawler/internal/model"
)

// Querier is the part of pgxpool.Pool the reader needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RecordReader reads stored records back for export.
type RecordReader struct {
	DB Querier
}

// List returns stored records ordered by capture time. limit <= 0 means all.
func (r *RecordReader) List(ctx context.Context, limit int) ([]model.ProductRecord, error) {
	query := "SELECT payload FROM product_records ORDER BY captured_at, source_url"
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query product_records: %w", err)
	}
	defer rows.Close()

	var list []model.ProductRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan product_records: %w", err)
		}
		var rec model.ProductRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read product_records: %w", err)
	}
	return list, nil
}
