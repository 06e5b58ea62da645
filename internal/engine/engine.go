// Package engine runs the table operations of a pipeline run.
//
// An Engine owns a catalog of named tables. Every operation reads tables by
// name and registers its result under a destination name, which may equal the
// source to replace it. Two implementations exist: the in-process Arrow
// engine ("native") and an embedded DuckDB database ("duckdb").
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/ecomlake/internal/common"
	"github.com/paveg/ecomlake/internal/dataframe"
)

// Engine names accepted by New.
const (
	NameNative = "native"
	NameDuckDB = "duckdb"
)

// Predicate keeps rows whose Column equals Equals. Nulls never match.
type Predicate struct {
	Column string
	Equals string
}

// Eq returns a Predicate for column == value.
func Eq(column, value string) *Predicate {
	return &Predicate{Column: column, Equals: value}
}

// TableInfo describes a catalog table.
type TableInfo struct {
	Name   string
	Fields []dataframe.Field
	Rows   int
}

// Columns returns the column names in order.
func (t *TableInfo) Columns() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// HasColumn reports whether the table has the named column.
func (t *TableInfo) HasColumn(name string) bool {
	for _, f := range t.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Rows is a materialized slice of a table. Values are normalized to nil,
// string, bool, int64, float64 or time.Time (UTC).
type Rows struct {
	Columns []string
	Values  [][]any
}

// Engine is the execution context shared by all pipeline stages.
type Engine interface {
	// Name returns the engine name.
	Name() string

	// ReadCSV loads CSV text with a header row into table, inferring column
	// types. Empty fields are null.
	ReadCSV(ctx context.Context, table string, r io.Reader) error
	// Describe returns the schema and row count of table.
	Describe(ctx context.Context, table string) (*TableInfo, error)

	// Join inner-joins left and right on key into dst: the key column
	// first, then the other left columns, then the other right columns.
	Join(ctx context.Context, dst, left, right, key string) error
	// DropNulls removes rows where any of columns is null.
	DropNulls(ctx context.Context, dst, src string, columns []string) error
	// FillNulls replaces nulls in the string columns among columns.
	FillNulls(ctx context.Context, dst, src, value string, columns []string) error
	// ToTimestamp parses columns with pattern; values that do not match
	// become null.
	ToTimestamp(ctx context.Context, dst, src string, columns []string, pattern common.DateTimePattern) error

	// Sum returns the sum of column over the rows matching where (nil for
	// all rows). No non-null input gives an invalid result.
	Sum(ctx context.Context, table, column string, where *Predicate) (sql.NullFloat64, error)
	// Mean is Sum's average counterpart.
	Mean(ctx context.Context, table, column string, where *Predicate) (sql.NullFloat64, error)
	// MonthlySum groups the matching rows by year and month of tsColumn and
	// sums valueColumn as alias. The result has columns year, month, alias
	// ordered by year then month with nulls last.
	MonthlySum(ctx context.Context, dst, src, tsColumn, valueColumn, alias string, where *Predicate) error
	// CountBy groups the matching rows by key and counts non-null
	// countColumn values as alias, ordered by alias descending then key.
	CountBy(ctx context.Context, dst, src, key, countColumn, alias string, where *Predicate) error

	// Rows returns up to limit rows of table; limit < 0 returns all.
	Rows(ctx context.Context, table string, limit int) (*Rows, error)
	// WriteParquet writes table to w as a single Parquet file.
	WriteParquet(ctx context.Context, table string, w io.Writer, compression string) error

	// Drop removes table from the catalog. A missing table is not an error.
	Drop(ctx context.Context, table string) error
	// Close releases every table and the engine's resources.
	Close() error
}

// Options configures an engine.
type Options struct {
	// Workers sizes the native worker pool; 0 uses every CPU.
	Workers int
	// DuckDBPath is the DuckDB database file; empty is in-memory.
	DuckDBPath string
	// TimestampPattern is the pattern a CSV column must match to load as a
	// timestamp.
	TimestampPattern common.DateTimePattern
	// Delimiter separates CSV fields.
	Delimiter rune
	// TempDir holds DuckDB spool files; empty uses os.TempDir.
	TempDir string
	// Allocator backs native tables; nil uses the Go allocator.
	Allocator memory.Allocator
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.TimestampPattern == "" {
		o.TimestampPattern = common.DefaultTimestampPattern
	}
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.Allocator == nil {
		o.Allocator = memory.NewGoAllocator()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// New opens the engine called name.
func New(ctx context.Context, name string, opts Options) (Engine, error) {
	switch name {
	case "", NameNative:
		e, err := NewNative(opts)
		if err != nil {
			return nil, err
		}
		return e, nil
	case NameDuckDB:
		e, err := NewDuckDB(ctx, opts)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}

// normalize maps engine-specific scalar types onto the set Rows promises.
func normalize(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC()
	default:
		return val
	}
}
