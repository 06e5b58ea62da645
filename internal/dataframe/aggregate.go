package dataframe

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/paveg/ecomlake/internal/common"
	"github.com/paveg/ecomlake/internal/errors"
)

// Sum adds the non-null values of column. ok is false when there were none.
func (df *DataFrame) Sum(column string) (float64, bool, error) {
	total, n, err := df.reduce("Sum", column)
	return total, n > 0, err
}

// Mean averages the non-null values of column. ok is false when there were none.
func (df *DataFrame) Mean(column string) (float64, bool, error) {
	total, n, err := df.reduce("Mean", column)
	if err != nil || n == 0 {
		return 0, false, err
	}
	return total / float64(n), true, nil
}

// CountNonNull counts the non-null values of column.
func (df *DataFrame) CountNonNull(column string) (int, error) {
	col, ok := df.columns[column]
	if !ok {
		return 0, errors.NewColumnNotFoundError("Count", column)
	}
	return col.Len() - col.NullN(), nil
}

// reduce sums the values of a numeric column, or of a text column cast to
// double where unparseable text counts as null.
func (df *DataFrame) reduce(op, column string) (float64, int, error) {
	col, ok := df.columns[column]
	if !ok {
		return 0, 0, errors.NewColumnNotFoundError(op, column)
	}
	if !isNumeric(col.DataType()) && col.DataType().ID() != arrow.STRING {
		return 0, 0, errors.NewUnsupportedTypeError(op, column, col.DataType().String())
	}

	var total float64
	n := 0
	for i := 0; i < col.Len(); i++ {
		v := col.ValueAt(i)
		if v == nil {
			continue
		}
		f, err := common.ToFloat64(v)
		if err != nil {
			continue
		}
		total += f
		n++
	}
	return total, n, nil
}
