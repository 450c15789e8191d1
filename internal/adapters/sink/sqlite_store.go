package sink

import (
	"context"
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

type SQLiteConfig struct {
	Path     string
	PoolSize int
	Tables   Tables
}

// SQLiteStore persists rows into a local SQLite file. SQLite serializes
// writers, so a small pool is enough for the single consumer plus CLI reads.
type SQLiteStore struct {
	pool    *sqlitex.Pool
	path    string
	layout  layout
	inserts map[string]string
}

func OpenSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	cfg.Tables.ApplyDefaults()
	if err := cfg.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("sqlite store: %w", err)
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 2
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    cfg.PoolSize,
		PrepareConn: prepareSQLiteConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: opening %s: %w", cfg.Path, err)
	}

	l := newLayout(cfg.Tables)
	inserts := make(map[string]string, len(l))
	for table := range l {
		inserts[table] = insertStatement(l, table, func(int) string { return "?" })
	}

	return &SQLiteStore{pool: pool, path: cfg.Path, layout: l, inserts: inserts}, nil
}

func prepareSQLiteConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite store: %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: take: %w", err)
	}
	defer s.pool.Put(conn)

	script := strings.Join(s.layout.createStatements(func(c column) string { return c.sqlite }, quoteIdent), ";\n") + ";"
	if err := sqlitex.ExecuteScript(conn, script, nil); err != nil {
		return fmt.Errorf("sqlite store: schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, table string, row domain.Row) error {
	query, ok := s.inserts[table]
	if !ok {
		return fmt.Errorf("sqlite store: unknown table %q", table)
	}
	cols, _ := s.layout.columns(table)
	if len(row) != len(cols) {
		return fmt.Errorf("sqlite store: %s expects %d values, got %d", table, len(cols), len(row))
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: take: %w", err)
	}
	defer s.pool.Put(conn)

	args := make([]any, len(row))
	for i, v := range row {
		args[i] = sqlValue(v)
	}
	if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return fmt.Errorf("sqlite store: insert %s: %w", table, err)
	}
	return nil
}

// Query runs SELECT selectExpr FROM table [WHERE where]. selectExpr and where
// are operator supplied SQL fragments; only the table name is checked.
func (s *SQLiteStore) Query(ctx context.Context, table, selectExpr, where string) ([]map[string]any, error) {
	if _, err := s.layout.columns(table); err != nil {
		return nil, fmt.Errorf("sqlite store: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: take: %w", err)
	}
	defer s.pool.Put(conn)

	var out []map[string]any
	err = sqlitex.ExecuteTransient(conn, selectStatement(table, selectExpr, where), &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			row := make(map[string]any, stmt.ColumnCount())
			for i := 0; i < stmt.ColumnCount(); i++ {
				row[stmt.ColumnName(i)] = columnValue(stmt, i)
			}
			out = append(out, row)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: query %s: %w", table, err)
	}
	return out, nil
}

func columnValue(stmt *sqlite.Stmt, i int) any {
	switch stmt.ColumnType(i) {
	case sqlite.TypeInteger:
		return stmt.ColumnInt64(i)
	case sqlite.TypeFloat:
		return stmt.ColumnFloat(i)
	case sqlite.TypeText:
		return stmt.ColumnText(i)
	case sqlite.TypeBlob:
		buf := make([]byte, stmt.ColumnLen(i))
		stmt.ColumnBytes(i, buf)
		return buf
	default:
		return nil
	}
}

// Truncate empties a table; SQLite has no TRUNCATE so a bare DELETE is used.
func (s *SQLiteStore) Truncate(ctx context.Context, table string) error {
	if _, err := s.layout.columns(table); err != nil {
		return fmt.Errorf("sqlite store: %w", err)
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: take: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteTransient(conn, "DELETE FROM "+table, nil); err != nil {
		return fmt.Errorf("sqlite store: truncate %s: %w", table, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlite store: closing %s: %w", s.path, err)
	}
	return nil
}

func insertStatement(l layout, table string, placeholder func(int) string) string {
	names, _ := l.columnNames(table)
	quoted := make([]string, len(names))
	marks := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
		marks[i] = placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

func selectStatement(table, selectExpr, where string) string {
	if strings.TrimSpace(selectExpr) == "" {
		selectExpr = "*"
	}
	q := fmt.Sprintf("SELECT %s FROM %s", selectExpr, table)
	if strings.TrimSpace(where) != "" {
		q += " WHERE " + where
	}
	return q
}

var _ ports.Store = (*SQLiteStore)(nil)
