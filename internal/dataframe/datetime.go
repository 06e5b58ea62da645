package dataframe

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paveg/ecomlake/internal/common"
	"github.com/paveg/ecomlake/internal/errors"
	"github.com/paveg/ecomlake/internal/parallel"
	"github.com/paveg/ecomlake/internal/series"
)

// parseCacheSize bounds the distinct strings remembered per ToTimestamp call.
// Order exports repeat the same timestamps across their date columns.
const parseCacheSize = 4096

type parsedTime struct {
	micros int64
	ok     bool
}

// timestampParser parses text with a fixed layout in UTC, remembering results.
type timestampParser struct {
	layout string
	cache  *lru.Cache[string, parsedTime]
}

func newTimestampParser(layout string) (*timestampParser, error) {
	cache, err := lru.New[string, parsedTime](parseCacheSize)
	if err != nil {
		return nil, errors.NewInternalError("ToTimestamp", err)
	}
	return &timestampParser{layout: layout, cache: cache}, nil
}

func (p *timestampParser) parse(text string) (int64, bool) {
	if hit, ok := p.cache.Get(text); ok {
		return hit.micros, hit.ok
	}
	var result parsedTime
	if ts, ok := common.ParseTimestamp(p.layout, text); ok {
		result = parsedTime{micros: ts.UnixMicro(), ok: true}
	}
	p.cache.Add(text, result)
	return result.micros, result.ok
}

// convert turns col into a timestamp column. Values that do not match the
// layout become null; columns that already hold timestamps are shared as is.
func (p *timestampParser) convert(col ISeries, mem memory.Allocator) (ISeries, error) {
	if col.DataType().ID() == arrow.TIMESTAMP {
		return shareSeries(col)
	}

	b := array.NewTimestampBuilder(mem, series.TimestampType)
	defer b.Release()
	b.Reserve(col.Len())
	for i := 0; i < col.Len(); i++ {
		if col.IsNull(i) {
			b.AppendNull()
			continue
		}
		micros, ok := p.parse(col.GetAsString(i))
		if !ok {
			b.AppendNull()
			continue
		}
		b.Append(arrow.Timestamp(micros))
	}
	arr := b.NewArray()
	defer arr.Release()
	return series.Wrap[time.Time](col.Name(), arr), nil
}

// ToTimestamp parses the named columns with a Go time layout, in place.
func (df *DataFrame) ToTimestamp(layout string, columns ...string) (*DataFrame, error) {
	return df.ToTimestampParallel(nil, layout, columns...)
}

// ToTimestampParallel is ToTimestamp with each column converted on pool.
// A nil pool converts sequentially.
func (df *DataFrame) ToTimestampParallel(pool *parallel.WorkerPool, layout string, columns ...string) (*DataFrame, error) {
	if err := df.requireColumns("ToTimestamp", columns...); err != nil {
		return nil, err
	}
	if layout == "" {
		return nil, errors.NewInvalidInputError("ToTimestamp", "empty timestamp layout")
	}
	parser, err := newTimestampParser(layout)
	if err != nil {
		return nil, err
	}

	convertAt := func(_ int, name string) (ISeries, error) {
		return parser.convert(df.columns[name], df.mem)
	}

	var converted []ISeries
	if pool == nil {
		converted = make([]ISeries, len(columns))
		for i, name := range columns {
			if converted[i], err = convertAt(i, name); err != nil {
				break
			}
		}
	} else {
		converted, err = parallel.TryProcessIndexed(pool, columns, convertAt)
	}
	if err != nil {
		for _, s := range converted {
			if s != nil {
				s.Release()
			}
		}
		return nil, err
	}

	result, err := df.Select(df.Columns()...)
	if err != nil {
		releaseAll(converted)
		return nil, err
	}
	for i, s := range converted {
		next, err := result.WithColumn(s)
		result.Release()
		if err != nil {
			releaseAll(converted[i+1:])
			return nil, err
		}
		result = next
	}
	return result, nil
}

// Year appends dst holding the calendar year of timestamp column src.
func (df *DataFrame) Year(src, dst string) (*DataFrame, error) {
	return df.datePart("Year", src, dst, func(t time.Time) int32 { return int32(t.Year()) })
}

// Month appends dst holding the month (1-12) of timestamp column src.
func (df *DataFrame) Month(src, dst string) (*DataFrame, error) {
	return df.datePart("Month", src, dst, func(t time.Time) int32 { return int32(t.Month()) })
}

func (df *DataFrame) datePart(op, src, dst string, part func(time.Time) int32) (*DataFrame, error) {
	col, ok := df.columns[src]
	if !ok {
		return nil, errors.NewColumnNotFoundError(op, src)
	}
	if col.DataType().ID() != arrow.TIMESTAMP {
		return nil, errors.NewUnsupportedTypeError(op, src, col.DataType().String())
	}
	arr := col.Array()
	defer arr.Release()
	ts, _ := arr.(*array.Timestamp)
	unit := ts.DataType().(*arrow.TimestampType).Unit

	b := array.NewInt32Builder(df.mem)
	defer b.Release()
	b.Reserve(ts.Len())
	for i := 0; i < ts.Len(); i++ {
		if ts.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(part(ts.Value(i).ToTime(unit)))
	}
	out := b.NewArray()
	defer out.Release()
	return df.WithColumn(series.Wrap[int32](dst, out))
}
