package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

type PostgresConfig struct {
	DSN    string
	Tables Tables
	// Hypertable turns the data table into a TimescaleDB hypertable on the time column.
	Hypertable bool
}

// PostgresStore writes rows to Postgres or TimescaleDB. Tag values land in a
// JSONB column since a tag may be bool, numeric or text.
type PostgresStore struct {
	db         *sql.DB
	tables     Tables
	layout     layout
	inserts    map[string]string
	hypertable bool
}

// OpenPostgres opens and pings a lib/pq connection.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres store: dsn is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	store, err := NewPostgresStore(db, cfg.Tables, cfg.Hypertable)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func NewPostgresStore(db *sql.DB, tables Tables, hypertable bool) (*PostgresStore, error) {
	tables.ApplyDefaults()
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	l := newLayout(tables)
	inserts := make(map[string]string, len(l))
	for table := range l {
		inserts[table] = insertStatement(l, table, func(n int) string { return fmt.Sprintf("$%d", n) })
	}
	return &PostgresStore{db: db, tables: tables, layout: l, inserts: inserts, hypertable: hypertable}, nil
}

func (p *PostgresStore) Name() string { return "postgres" }

func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range p.layout.createStatements(func(c column) string { return c.postgres }, quoteIdent) {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres store: schema: %w", err)
		}
	}
	if p.hypertable {
		if _, err := p.db.ExecContext(ctx, "SELECT create_hypertable($1, 'time', if_not_exists => TRUE, migrate_data => TRUE)", p.tables.Data); err != nil {
			return fmt.Errorf("postgres store: hypertable: %w", err)
		}
	}
	return nil
}

func (p *PostgresStore) Insert(ctx context.Context, table string, row domain.Row) error {
	query, ok := p.inserts[table]
	if !ok {
		return fmt.Errorf("postgres store: unknown table %q", table)
	}
	cols, _ := p.layout.columns(table)
	if len(row) != len(cols) {
		return fmt.Errorf("postgres store: %s expects %d values, got %d", table, len(cols), len(row))
	}

	args := make([]any, len(row))
	copy(args, row)
	if table == p.tables.Data {
		raw, err := json.Marshal(row[1])
		if err != nil {
			return fmt.Errorf("marshal value: %w", err)
		}
		args[1] = raw
	}

	_, err := p.db.ExecContext(ctx, query, args...)
	return err
}

func (p *PostgresStore) Query(ctx context.Context, table, selectExpr, where string) ([]map[string]any, error) {
	if _, err := p.layout.columns(table); err != nil {
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	rows, err := p.db.QueryContext(ctx, selectStatement(table, selectExpr, where))
	if err != nil {
		return nil, fmt.Errorf("postgres store: query %s: %w", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("postgres store: scan: %w", err)
		}
		row := make(map[string]any, len(names))
		for i, name := range names {
			row[name] = p.columnValue(table, name, vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (p *PostgresStore) columnValue(table, name string, v any) any {
	raw, ok := v.([]byte)
	if !ok {
		return v
	}
	if table == p.tables.Data && name == "value" {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			return decoded
		}
	}
	return string(raw)
}

func (p *PostgresStore) Truncate(ctx context.Context, table string) error {
	if _, err := p.layout.columns(table); err != nil {
		return fmt.Errorf("postgres store: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, "TRUNCATE TABLE "+table); err != nil {
		return fmt.Errorf("postgres store: truncate %s: %w", table, err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

var _ ports.Store = (*PostgresStore)(nil)
