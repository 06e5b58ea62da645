package engine

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/ecomlake/internal/common"
	"github.com/paveg/ecomlake/internal/dataframe"
	"github.com/paveg/ecomlake/internal/errors"
	dfio "github.com/paveg/ecomlake/internal/io"
	"github.com/paveg/ecomlake/internal/parallel"
	"github.com/paveg/ecomlake/internal/series"
)

// Native runs every operation in process on Arrow-backed DataFrames.
type Native struct {
	mu     sync.Mutex
	tables map[string]*dataframe.DataFrame
	mem    memory.Allocator
	pool   *parallel.WorkerPool
	opts   Options
	layout string
	logger *slog.Logger
}

// NewNative returns an empty native engine.
func NewNative(opts Options) (*Native, error) {
	opts = opts.withDefaults()
	layout, err := opts.TimestampPattern.Layout()
	if err != nil {
		return nil, err
	}
	pool := parallel.NewWorkerPool(opts.Workers)
	opts.Logger.Debug("native engine ready", "workers", pool.Workers())
	return &Native{
		tables: make(map[string]*dataframe.DataFrame),
		mem:    opts.Allocator,
		pool:   pool,
		opts:   opts,
		layout: layout,
		logger: opts.Logger,
	}, nil
}

// Name implements Engine.
func (n *Native) Name() string { return NameNative }

// table returns a registered table. The caller must hold n.mu.
func (n *Native) table(op, name string) (*dataframe.DataFrame, error) {
	df, ok := n.tables[name]
	if !ok {
		return nil, errors.NewTableNotFoundError(op, name)
	}
	return df, nil
}

// put registers df as name, releasing any table it replaces. The caller must
// hold n.mu.
func (n *Native) put(name string, df *dataframe.DataFrame) {
	if old, ok := n.tables[name]; ok && old != df {
		old.Release()
	}
	n.tables[name] = df
}

// derive runs fn on src and registers the result as dst.
func (n *Native) derive(ctx context.Context, op, dst, src string, fn func(*dataframe.DataFrame) (*dataframe.DataFrame, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	df, err := n.table(op, src)
	if err != nil {
		return err
	}
	out, err := fn(df)
	if err != nil {
		return err
	}
	n.put(dst, out)
	return nil
}

// ReadCSV implements Engine. Parsing happens outside the catalog lock so
// several files can load at once.
func (n *Native) ReadCSV(ctx context.Context, table string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := dfio.DefaultCSVOptions()
	opts.Delimiter = n.opts.Delimiter
	opts.TimestampLayout = n.layout
	opts.Pool = n.pool

	df, err := dfio.NewCSVReader(r, opts, n.mem).Read()
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.put(table, df)
	n.mu.Unlock()
	n.logger.Debug("loaded csv", "table", table, "rows", df.Len(), "columns", df.Width())
	return nil
}

// Describe implements Engine.
func (n *Native) Describe(ctx context.Context, table string) (*TableInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	df, err := n.table("Describe", table)
	if err != nil {
		return nil, err
	}
	return &TableInfo{Name: table, Fields: df.Schema(), Rows: df.Len()}, nil
}

// Join implements Engine.
func (n *Native) Join(ctx context.Context, dst, left, right, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	l, err := n.table("Join", left)
	if err != nil {
		return err
	}
	r, err := n.table("Join", right)
	if err != nil {
		return err
	}
	out, err := l.Join(r, &dataframe.JoinOptions{Type: dataframe.InnerJoin, LeftKey: key, RightKey: key})
	if err != nil {
		return err
	}
	n.put(dst, out)
	return nil
}

// DropNulls implements Engine.
func (n *Native) DropNulls(ctx context.Context, dst, src string, columns []string) error {
	return n.derive(ctx, "DropNulls", dst, src, func(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
		return df.DropNulls(columns...)
	})
}

// FillNulls implements Engine.
func (n *Native) FillNulls(ctx context.Context, dst, src, value string, columns []string) error {
	return n.derive(ctx, "FillNulls", dst, src, func(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
		return df.FillNull(value, columns...)
	})
}

// ToTimestamp implements Engine. Columns are parsed concurrently on the
// engine's worker pool.
func (n *Native) ToTimestamp(ctx context.Context, dst, src string, columns []string, pattern common.DateTimePattern) error {
	layout, err := pattern.Layout()
	if err != nil {
		return err
	}
	return n.derive(ctx, "ToTimestamp", dst, src, func(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
		return df.ToTimestampParallel(n.pool, layout, columns...)
	})
}

// filtered applies where to df. The result must be released.
func filtered(df *dataframe.DataFrame, where *Predicate) (*dataframe.DataFrame, error) {
	if where == nil {
		return df.Select(df.Columns()...)
	}
	return df.FilterEq(where.Column, where.Equals)
}

func (n *Native) reduce(ctx context.Context, op, table string, where *Predicate,
	fn func(*dataframe.DataFrame) (float64, bool, error),
) (sql.NullFloat64, error) {
	if err := ctx.Err(); err != nil {
		return sql.NullFloat64{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	df, err := n.table(op, table)
	if err != nil {
		return sql.NullFloat64{}, err
	}
	rows, err := filtered(df, where)
	if err != nil {
		return sql.NullFloat64{}, err
	}
	defer rows.Release()

	v, ok, err := fn(rows)
	if err != nil {
		return sql.NullFloat64{}, err
	}
	return sql.NullFloat64{Float64: v, Valid: ok}, nil
}

// Sum implements Engine.
func (n *Native) Sum(ctx context.Context, table, column string, where *Predicate) (sql.NullFloat64, error) {
	return n.reduce(ctx, "Sum", table, where, func(df *dataframe.DataFrame) (float64, bool, error) {
		return df.Sum(column)
	})
}

// Mean implements Engine.
func (n *Native) Mean(ctx context.Context, table, column string, where *Predicate) (sql.NullFloat64, error) {
	return n.reduce(ctx, "Mean", table, where, func(df *dataframe.DataFrame) (float64, bool, error) {
		return df.Mean(column)
	})
}

// MonthlySum implements Engine.
func (n *Native) MonthlySum(ctx context.Context, dst, src, tsColumn, valueColumn, alias string, where *Predicate) error {
	return n.derive(ctx, "MonthlySum", dst, src, func(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
		rows, err := filtered(df, where)
		if err != nil {
			return nil, err
		}
		defer rows.Release()

		withYear, err := rows.Year(tsColumn, "year")
		if err != nil {
			return nil, err
		}
		defer withYear.Release()
		withMonth, err := withYear.Month(tsColumn, "month")
		if err != nil {
			return nil, err
		}
		defer withMonth.Release()

		gb, err := withMonth.GroupBy("year", "month")
		if err != nil {
			return nil, err
		}
		grouped, err := gb.Agg(dataframe.Sum(valueColumn).As(alias))
		if err != nil {
			return nil, err
		}
		defer grouped.Release()

		widened, err := asDouble(grouped, alias)
		if err != nil {
			return nil, err
		}
		defer widened.Release()
		return widened.SortBy(dataframe.Asc("year"), dataframe.Asc("month"))
	})
}

// asDouble returns df with column cast to float64 so integer prices sum to
// the same type as decimal ones.
func asDouble(df *dataframe.DataFrame, column string) (*dataframe.DataFrame, error) {
	col, ok := df.Column(column)
	if !ok {
		return nil, errors.NewColumnNotFoundError("asDouble", column)
	}
	if col.DataType().ID() == arrow.FLOAT64 {
		return df.Select(df.Columns()...)
	}

	values := make([]float64, col.Len())
	valid := make([]bool, col.Len())
	for i := range values {
		v := col.ValueAt(i)
		if v == nil {
			continue
		}
		f, err := common.ToFloat64(v)
		if err != nil {
			continue
		}
		values[i], valid[i] = f, true
	}
	return df.WithColumn(series.NewWithNulls(column, values, valid, df.Allocator()))
}

// CountBy implements Engine.
func (n *Native) CountBy(ctx context.Context, dst, src, key, countColumn, alias string, where *Predicate) error {
	return n.derive(ctx, "CountBy", dst, src, func(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
		rows, err := filtered(df, where)
		if err != nil {
			return nil, err
		}
		defer rows.Release()

		gb, err := rows.GroupBy(key)
		if err != nil {
			return nil, err
		}
		counted, err := gb.Agg(dataframe.Count(countColumn).As(alias))
		if err != nil {
			return nil, err
		}
		defer counted.Release()
		return counted.SortBy(dataframe.Desc(alias), dataframe.Asc(key))
	})
}

// Rows implements Engine.
func (n *Native) Rows(ctx context.Context, table string, limit int) (*Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	df, err := n.table("Rows", table)
	if err != nil {
		return nil, err
	}
	count := df.Len()
	if limit >= 0 && limit < count {
		count = limit
	}
	out := &Rows{Columns: df.Columns(), Values: make([][]any, count)}
	for i := range count {
		row := df.Row(i)
		for j, v := range row {
			row[j] = normalize(v)
		}
		out.Values[i] = row
	}
	return out, nil
}

// WriteParquet implements Engine.
func (n *Native) WriteParquet(ctx context.Context, table string, w io.Writer, compression string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	df, err := n.table("WriteParquet", table)
	if err != nil {
		return err
	}
	opts := dfio.DefaultParquetOptions()
	opts.Compression = compression
	return dfio.NewParquetWriter(w, opts).Write(df)
}

// Drop implements Engine.
func (n *Native) Drop(_ context.Context, table string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if df, ok := n.tables[table]; ok {
		df.Release()
		delete(n.tables, table)
	}
	return nil
}

// Close implements Engine.
func (n *Native) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for name, df := range n.tables {
		df.Release()
		delete(n.tables, name)
	}
	n.pool.Close()
	return nil
}
