package sink

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Tables names the two log tables written by the pipeline.
type Tables struct {
	Data  string `yaml:"data"`
	Alarm string `yaml:"alarm"`
}

func DefaultTables() Tables {
	return Tables{Data: "data_log", Alarm: "alarm_log"}
}

func (t *Tables) ApplyDefaults() {
	def := DefaultTables()
	if t.Data == "" {
		t.Data = def.Data
	}
	if t.Alarm == "" {
		t.Alarm = def.Alarm
	}
}

func (t Tables) Validate() error {
	for _, name := range []string{t.Data, t.Alarm} {
		if !validIdent(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	if t.Data == t.Alarm {
		return fmt.Errorf("data and alarm tables must differ, both are %q", t.Data)
	}
	return nil
}

type column struct {
	name string
	// per-dialect column types; empty means untyped (SQLite dynamic typing).
	sqlite   string
	postgres string
}

var dataColumns = []column{
	{"name", "TEXT NOT NULL", "TEXT NOT NULL"},
	{"value", "", "JSONB"},
	{"time", "TEXT NOT NULL", "TIMESTAMP NOT NULL"},
	{"quality", "INTEGER", "INTEGER"},
	{"tz", "TEXT", "TEXT"},
}

var alarmColumns = []column{
	{"procedure", "INTEGER", "INTEGER"},
	{"class", "INTEGER", "INTEGER"},
	{"state", "INTEGER", "INTEGER"},
	{"description", "TEXT", "TEXT"},
	{"time", "TEXT NOT NULL", "TIMESTAMP NOT NULL"},
	{"tz", "TEXT", "TEXT"},
}

// layout maps a table name to its ordered columns.
type layout map[string][]column

func newLayout(t Tables) layout {
	return layout{t.Data: dataColumns, t.Alarm: alarmColumns}
}

func (l layout) columns(table string) ([]column, error) {
	cols, ok := l[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	return cols, nil
}

func (l layout) columnNames(table string) ([]string, error) {
	cols, err := l.columns(table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names, nil
}

func (l layout) createStatements(dialect func(column) string, quote func(string) string) []string {
	tables := make([]string, 0, len(l))
	for table := range l {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	stmts := make([]string, 0, len(l))
	for _, table := range tables {
		cols := l[table]
		defs := make([]string, len(cols))
		for i, c := range cols {
			defs[i] = strings.TrimSpace(quote(c.name) + " " + dialect(c))
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", ")))
	}
	return stmts
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}

// sqlValue folds values the SQL drivers cannot bind into ones they can.
func sqlValue(v any) any {
	switch val := v.(type) {
	case uint64:
		if val > math.MaxInt64 {
			return float64(val)
		}
		return int64(val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}
