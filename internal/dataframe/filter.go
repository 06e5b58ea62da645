package dataframe

import (
	"github.com/paveg/ecomlake/internal/errors"
)

// Filter keeps the rows where mask is true.
func (df *DataFrame) Filter(mask []bool) (*DataFrame, error) {
	if len(mask) != df.Len() {
		return nil, errors.ErrMismatchedLength
	}
	indices := make([]int, 0, len(mask))
	for i, keep := range mask {
		if keep {
			indices = append(indices, i)
		}
	}
	return df.Take(indices)
}

// FilterEq keeps the rows whose column renders equal to value. Null values
// never match, as in SQL three-valued comparison.
func (df *DataFrame) FilterEq(column, value string) (*DataFrame, error) {
	col, exists := df.Column(column)
	if !exists {
		return nil, errors.NewColumnNotFoundError("FilterEq", column)
	}
	mask := make([]bool, col.Len())
	for i := range mask {
		mask[i] = !col.IsNull(i) && col.GetAsString(i) == value
	}
	return df.Filter(mask)
}
