// Package sink persists product records.
package sink

import (
	"context"

	"catalogcrawler/internal/model"
)

// Sink receives each record once. Implementations must be safe for
// concurrent Write calls.
type Sink interface {
	Write(ctx context.Context, rec model.ProductRecord) error
	Close() error
}
