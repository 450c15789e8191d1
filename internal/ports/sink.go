package ports

import (
	"context"

	"github.com/ghalamif/plcwatch/internal/domain"
)

// Sink receives persisted rows. Delivery is at-most-once.
type Sink interface {
	Insert(ctx context.Context, table string, row domain.Row) error
	Name() string
}

// Store is a Sink that can also be read back and maintained.
type Store interface {
	Sink
	EnsureSchema(ctx context.Context) error
	Query(ctx context.Context, table, selectExpr, where string) ([]map[string]any, error)
	Truncate(ctx context.Context, table string) error
	Close() error
}
