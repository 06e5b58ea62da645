package dataframe

import (
	"cmp"
	"sort"
	"time"

	"github.com/paveg/ecomlake/internal/errors"
)

// SortKey orders rows by one column. Nulls sort last in either direction
// unless NullsFirst is set.
type SortKey struct {
	Column     string
	Descending bool
	NullsFirst bool
}

// Asc sorts column ascending.
func Asc(column string) SortKey { return SortKey{Column: column} }

// Desc sorts column descending.
func Desc(column string) SortKey { return SortKey{Column: column, Descending: true} }

// SortBy returns the rows ordered by keys. The sort is stable, so rows that
// compare equal on every key keep their input order.
func (df *DataFrame) SortBy(keys ...SortKey) (*DataFrame, error) {
	if len(keys) == 0 {
		return nil, errors.NewInvalidInputError("SortBy", "at least one sort key is required")
	}
	cols := make([]ISeries, len(keys))
	for i, k := range keys {
		col, ok := df.columns[k.Column]
		if !ok {
			return nil, errors.NewColumnNotFoundError("SortBy", k.Column)
		}
		cols[i] = col
	}

	indices := make([]int, df.Len())
	for i := range indices {
		indices[i] = i
	}

	sort.SliceStable(indices, func(a, b int) bool {
		ra, rb := indices[a], indices[b]
		for k, key := range keys {
			if c := compareRows(cols[k], ra, rb, key); c != 0 {
				return c < 0
			}
		}
		return false
	})

	return df.Take(indices)
}

func compareRows(col ISeries, a, b int, key SortKey) int {
	nullA, nullB := col.IsNull(a), col.IsNull(b)
	switch {
	case nullA && nullB:
		return 0
	case nullA || nullB:
		c := 1
		if nullB {
			c = -1
		}
		if key.NullsFirst {
			c = -c
		}
		return c
	}

	c := compareValues(col.ValueAt(a), col.ValueAt(b))
	if key.Descending {
		c = -c
	}
	return c
}

func compareValues(a, b any) int {
	switch va := a.(type) {
	case string:
		return cmp.Compare(va, b.(string))
	case int64:
		return cmp.Compare(va, b.(int64))
	case int32:
		return cmp.Compare(va, b.(int32))
	case float64:
		return cmp.Compare(va, b.(float64))
	case bool:
		vb := b.(bool)
		switch {
		case va == vb:
			return 0
		case !va:
			return -1
		default:
			return 1
		}
	case time.Time:
		return va.Compare(b.(time.Time))
	default:
		return 0
	}
}
