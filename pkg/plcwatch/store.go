package plcwatch

import (
	"context"
	"fmt"

	"github.com/ghalamif/plcwatch/internal/adapters/sink"
	"github.com/ghalamif/plcwatch/internal/app/config"
)

// OpenStore opens the store selected by cfg.Store without touching its schema.
func OpenStore(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	switch cfg.Store.Driver {
	case config.DriverSQLite, "":
		s, err := sink.OpenSQLite(sink.SQLiteConfig{Path: cfg.Store.Path, Tables: cfg.Store.Tables})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := sink.OpenPostgres(ctx, sink.PostgresConfig{
			DSN:        cfg.Store.DSN,
			Tables:     cfg.Store.Tables,
			Hypertable: cfg.Store.Hypertable,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
