// Package dataframe provides the in-memory, Arrow-backed tables the native
// engine executes on: column selection, row gathering, equality filters,
// hash joins, null handling, timestamp parsing, grouping and sorting.
//
// Every operation returns a new DataFrame that owns its own references to the
// underlying Arrow arrays, so releasing an input never invalidates an output.
package dataframe

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/ecomlake/internal/errors"
)

// DataFrame represents a table of data with typed columns
type DataFrame struct {
	columns map[string]ISeries
	order   []string // Maintains column order
	mem     memory.Allocator
}

// New creates a new DataFrame from a slice of ISeries. The DataFrame takes
// ownership of the series; a later duplicate name replaces an earlier one.
func New(series ...ISeries) *DataFrame {
	return NewWithAllocator(memory.DefaultAllocator, series...)
}

// NewWithAllocator creates a DataFrame whose derived columns are allocated from mem.
func NewWithAllocator(mem memory.Allocator, series ...ISeries) *DataFrame {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	columns := make(map[string]ISeries, len(series))
	order := make([]string, 0, len(series))

	for _, s := range series {
		name := s.Name()
		if old, exists := columns[name]; exists {
			old.Release()
		} else {
			order = append(order, name)
		}
		columns[name] = s
	}

	return &DataFrame{
		columns: columns,
		order:   order,
		mem:     mem,
	}
}

// Columns returns the names of all columns in order
func (df *DataFrame) Columns() []string {
	return append([]string{}, df.order...)
}

// Len returns the number of rows (assumes all columns have same length)
func (df *DataFrame) Len() int {
	if len(df.order) == 0 {
		return 0
	}
	return df.columns[df.order[0]].Len()
}

// Width returns the number of columns
func (df *DataFrame) Width() int {
	return len(df.order)
}

// Column returns the series for the given column name
func (df *DataFrame) Column(name string) (ISeries, bool) {
	series, exists := df.columns[name]
	return series, exists
}

// HasColumn checks if a column exists
func (df *DataFrame) HasColumn(name string) bool {
	_, exists := df.columns[name]
	return exists
}

// Allocator returns the allocator used for derived columns.
func (df *DataFrame) Allocator() memory.Allocator {
	return df.mem
}

// Select returns a new DataFrame with only the specified columns, in the
// order given.
func (df *DataFrame) Select(names ...string) (*DataFrame, error) {
	selected := make([]ISeries, 0, len(names))
	for _, name := range names {
		s, exists := df.columns[name]
		if !exists {
			releaseAll(selected)
			return nil, errors.NewColumnNotFoundError("Select", name)
		}
		shared, err := shareSeries(s)
		if err != nil {
			releaseAll(selected)
			return nil, err
		}
		selected = append(selected, shared)
	}
	return NewWithAllocator(df.mem, selected...), nil
}

// WithColumn returns a new DataFrame with s appended, or replacing the
// column of the same name in place. The new DataFrame takes ownership of s.
func (df *DataFrame) WithColumn(s ISeries) (*DataFrame, error) {
	out := make([]ISeries, 0, df.Width()+1)
	replaced := false
	for _, name := range df.order {
		if name == s.Name() {
			out = append(out, s)
			replaced = true
			continue
		}
		shared, err := shareSeries(df.columns[name])
		if err != nil {
			releaseAll(out)
			return nil, err
		}
		out = append(out, shared)
	}
	if !replaced {
		out = append(out, s)
	}
	return NewWithAllocator(df.mem, out...), nil
}

// Head returns the first n rows.
func (df *DataFrame) Head(n int) (*DataFrame, error) {
	if n < 0 {
		return nil, errors.NewInvalidInputError("Head", fmt.Sprintf("negative row count %d", n))
	}
	if n > df.Len() {
		n = df.Len()
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return df.Take(indices)
}

// Row returns the values of row i in column order; nulls are nil.
func (df *DataFrame) Row(i int) []any {
	row := make([]any, len(df.order))
	for j, name := range df.order {
		row[j] = df.columns[name].ValueAt(i)
	}
	return row
}

// String returns a string representation of the DataFrame
func (df *DataFrame) String() string {
	if len(df.columns) == 0 {
		return "DataFrame[empty]"
	}

	parts := []string{fmt.Sprintf("DataFrame[%dx%d]", df.Len(), df.Width())}

	for _, name := range df.order {
		series := df.columns[name]
		parts = append(parts, fmt.Sprintf("  %s: %s", name, series.DataType().String()))
	}

	return strings.Join(parts, "\n")
}

// Release releases all columns.
func (df *DataFrame) Release() {
	for _, s := range df.columns {
		s.Release()
	}
}

func (df *DataFrame) requireColumns(op string, names ...string) error {
	for _, name := range names {
		if !df.HasColumn(name) {
			return errors.NewColumnNotFoundError(op, name)
		}
	}
	return nil
}

func releaseAll(series []ISeries) {
	for _, s := range series {
		s.Release()
	}
}
