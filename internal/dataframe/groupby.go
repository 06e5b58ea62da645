package dataframe

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/paveg/ecomlake/internal/common"
	"github.com/paveg/ecomlake/internal/errors"
	"github.com/paveg/ecomlake/internal/series"
	"golang.org/x/exp/constraints"
)

// AggFunc identifies an aggregate function.
type AggFunc int

const (
	AggSum AggFunc = iota
	AggCount
	AggMean
)

func (f AggFunc) String() string {
	switch f {
	case AggSum:
		return "sum"
	case AggCount:
		return "count"
	case AggMean:
		return "avg"
	default:
		return fmt.Sprintf("AggFunc(%d)", int(f))
	}
}

// CountAll is the column name that makes Count count rows instead of values.
const CountAll = "*"

// Aggregation is one aggregate output column.
type Aggregation struct {
	Func   AggFunc
	Column string
	Alias  string
}

// Sum adds the non-null values of column. Integer columns sum to int64,
// everything else to float64.
func Sum(column string) Aggregation { return Aggregation{Func: AggSum, Column: column} }

// Count counts the non-null values of column, or every row for CountAll.
func Count(column string) Aggregation { return Aggregation{Func: AggCount, Column: column} }

// Mean averages the non-null values of column.
func Mean(column string) Aggregation { return Aggregation{Func: AggMean, Column: column} }

// As names the output column.
func (a Aggregation) As(alias string) Aggregation {
	a.Alias = alias
	return a
}

// OutputName returns the alias, or func(column) when none was given.
func (a Aggregation) OutputName() string {
	if a.Alias != "" {
		return a.Alias
	}
	return fmt.Sprintf("%s(%s)", a.Func, a.Column)
}

// GroupBy holds the rows of a DataFrame partitioned by key columns.
// Groups are kept in order of first appearance; null keys form their own group.
type GroupBy struct {
	df     *DataFrame
	keys   []string
	groups [][]int
}

// GroupBy partitions the rows by the given key columns.
func (df *DataFrame) GroupBy(keys ...string) (*GroupBy, error) {
	if len(keys) == 0 {
		return nil, errors.NewInvalidInputError("GroupBy", "at least one key column is required")
	}
	if err := df.requireColumns("GroupBy", keys...); err != nil {
		return nil, err
	}

	keyCols := make([]ISeries, len(keys))
	for i, k := range keys {
		keyCols[i] = df.columns[k]
	}

	index := newKeyIndex(df.Len())
	var groups [][]int
	for i := 0; i < df.Len(); i++ {
		slot, existed := index.insert(compositeKey(keyCols, i))
		if !existed {
			groups = append(groups, nil)
		}
		groups[slot] = append(groups[slot], i)
	}

	return &GroupBy{df: df, keys: keys, groups: groups}, nil
}

// NumGroups returns the number of distinct key combinations.
func (gb *GroupBy) NumGroups() int {
	return len(gb.groups)
}

// Agg computes one row per group: the key columns followed by one column per
// aggregation, in the order given.
func (gb *GroupBy) Agg(aggs ...Aggregation) (*DataFrame, error) {
	firstRows := make([]int, len(gb.groups))
	for g, rows := range gb.groups {
		firstRows[g] = rows[0]
	}

	out := make([]ISeries, 0, len(gb.keys)+len(aggs))
	for _, k := range gb.keys {
		s, err := takeSeries(gb.df.columns[k], firstRows, gb.df.mem)
		if err != nil {
			releaseAll(out)
			return nil, err
		}
		out = append(out, s)
	}

	for _, agg := range aggs {
		s, err := gb.aggregate(agg)
		if err != nil {
			releaseAll(out)
			return nil, err
		}
		out = append(out, s)
	}
	return NewWithAllocator(gb.df.mem, out...), nil
}

func (gb *GroupBy) aggregate(agg Aggregation) (ISeries, error) {
	name := agg.OutputName()

	if agg.Func == AggCount && agg.Column == CountAll {
		counts := make([]int64, len(gb.groups))
		for g, rows := range gb.groups {
			counts[g] = int64(len(rows))
		}
		return series.New(name, counts, gb.df.mem), nil
	}

	col, ok := gb.df.columns[agg.Column]
	if !ok {
		return nil, errors.NewColumnNotFoundError("Agg", agg.Column)
	}

	if agg.Func == AggCount {
		counts := make([]int64, len(gb.groups))
		for g, rows := range gb.groups {
			for _, r := range rows {
				if !col.IsNull(r) {
					counts[g]++
				}
			}
		}
		return series.New(name, counts, gb.df.mem), nil
	}

	if agg.Func != AggSum && agg.Func != AggMean {
		return nil, errors.NewInvalidInputError("Agg", "unsupported aggregate "+agg.Func.String())
	}

	arr := col.Array()
	defer arr.Release()

	switch a := arr.(type) {
	case *array.Int64:
		return finishGroups(name, agg.Func, reduceGroups[int64](a, gb.groups), gb), nil
	case *array.Int32:
		return finishGroups(name, agg.Func, reduceGroups[int32](a, gb.groups), gb), nil
	case *array.Float64:
		return finishGroups(name, agg.Func, reduceGroups[float64](a, gb.groups), gb), nil
	case *array.String:
		return finishGroups(name, agg.Func, reduceTextGroups(a, gb.groups), gb), nil
	default:
		return nil, errors.NewUnsupportedTypeError("Agg", agg.Column, arr.DataType().String())
	}
}

type number interface {
	constraints.Integer | constraints.Float
}

// accumulator tracks a running sum over the non-null values of one group.
type accumulator[T number] struct {
	sum T
	n   int64
}

func (a *accumulator[T]) add(v T) {
	a.sum += v
	a.n++
}

// reduceGroups sums each group's non-null values.
func reduceGroups[T number, A valueArray[T]](arr A, groups [][]int) []accumulator[T] {
	accs := make([]accumulator[T], len(groups))
	for g, rows := range groups {
		for _, r := range rows {
			if !arr.IsNull(r) {
				accs[g].add(arr.Value(r))
			}
		}
	}
	return accs
}

// reduceTextGroups casts text to double before summing; values that do not
// parse are treated as null.
func reduceTextGroups(arr *array.String, groups [][]int) []accumulator[float64] {
	accs := make([]accumulator[float64], len(groups))
	for g, rows := range groups {
		for _, r := range rows {
			if arr.IsNull(r) {
				continue
			}
			if v, err := common.ToFloat64(arr.Value(r)); err == nil {
				accs[g].add(v)
			}
		}
	}
	return accs
}

// finishGroups turns accumulators into the output column. A group with no
// non-null input yields null. Integer sums widen to int64; means are float64.
func finishGroups[T number](name string, fn AggFunc, accs []accumulator[T], gb *GroupBy) ISeries {
	valid := make([]bool, len(accs))
	for i, acc := range accs {
		valid[i] = acc.n > 0
	}

	if fn == AggMean {
		means := make([]float64, len(accs))
		for i, acc := range accs {
			if acc.n > 0 {
				means[i] = float64(acc.sum) / float64(acc.n)
			}
		}
		return series.NewWithNulls(name, means, valid, gb.df.mem)
	}

	var zero T
	switch any(zero).(type) {
	case float32, float64:
		sums := make([]float64, len(accs))
		for i, acc := range accs {
			sums[i] = float64(acc.sum)
		}
		return series.NewWithNulls(name, sums, valid, gb.df.mem)
	default:
		sums := make([]int64, len(accs))
		for i, acc := range accs {
			sums[i] = int64(acc.sum)
		}
		return series.NewWithNulls(name, sums, valid, gb.df.mem)
	}
}

// isNumeric reports whether a column can be summed.
func isNumeric(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT64, arrow.INT32, arrow.FLOAT64:
		return true
	default:
		return false
	}
}
