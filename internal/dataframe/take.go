package dataframe

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/ecomlake/internal/errors"
	"github.com/paveg/ecomlake/internal/series"
)

// FromArray wraps an Arrow array in the matching typed series. The series
// retains its own reference to arr.
func FromArray(name string, arr arrow.Array) (ISeries, error) {
	switch arr.(type) {
	case *array.String:
		return series.Wrap[string](name, arr), nil
	case *array.Int64:
		return series.Wrap[int64](name, arr), nil
	case *array.Int32:
		return series.Wrap[int32](name, arr), nil
	case *array.Float64:
		return series.Wrap[float64](name, arr), nil
	case *array.Boolean:
		return series.Wrap[bool](name, arr), nil
	case *array.Timestamp:
		return series.Wrap[time.Time](name, arr), nil
	default:
		return nil, errors.NewUnsupportedTypeError("FromArray", name, arr.DataType().String())
	}
}

// shareSeries returns a second handle on the same data.
func shareSeries(s ISeries) (ISeries, error) {
	arr := s.Array()
	defer arr.Release()
	return FromArray(s.Name(), arr)
}

// Take gathers rows by index into a new DataFrame. An index of -1 yields a
// null in every column.
func (df *DataFrame) Take(indices []int) (*DataFrame, error) {
	out := make([]ISeries, 0, df.Width())
	for _, name := range df.order {
		s, err := takeSeries(df.columns[name], indices, df.mem)
		if err != nil {
			releaseAll(out)
			return nil, err
		}
		out = append(out, s)
	}
	return NewWithAllocator(df.mem, out...), nil
}

func takeSeries(s ISeries, indices []int, mem memory.Allocator) (ISeries, error) {
	arr := s.Array()
	defer arr.Release()

	taken, err := takeArray(arr, indices, mem)
	if err != nil {
		return nil, err
	}
	defer taken.Release()
	return FromArray(s.Name(), taken)
}

type valueArray[T any] interface {
	arrow.Array
	Value(i int) T
}

type valueBuilder[T any] interface {
	array.Builder
	Append(v T)
}

// takeArray gathers arr[indices] into a freshly built array.
func takeArray(arr arrow.Array, indices []int, mem memory.Allocator) (arrow.Array, error) {
	switch a := arr.(type) {
	case *array.String:
		return takeTyped[string](a, array.NewStringBuilder(mem), indices), nil
	case *array.Int64:
		return takeTyped[int64](a, array.NewInt64Builder(mem), indices), nil
	case *array.Int32:
		return takeTyped[int32](a, array.NewInt32Builder(mem), indices), nil
	case *array.Float64:
		return takeTyped[float64](a, array.NewFloat64Builder(mem), indices), nil
	case *array.Boolean:
		return takeTyped[bool](a, array.NewBooleanBuilder(mem), indices), nil
	case *array.Timestamp:
		tsType, _ := a.DataType().(*arrow.TimestampType)
		return takeTyped[arrow.Timestamp](a, array.NewTimestampBuilder(mem, tsType), indices), nil
	default:
		return nil, errors.NewUnsupportedTypeError("Take", "", arr.DataType().String())
	}
}

func takeTyped[T any, A valueArray[T], B valueBuilder[T]](src A, b B, indices []int) arrow.Array {
	defer b.Release()
	b.Reserve(len(indices))
	for _, i := range indices {
		if i < 0 || src.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(src.Value(i))
	}
	return b.NewArray()
}
