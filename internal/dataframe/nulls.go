package dataframe

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/paveg/ecomlake/internal/series"
)

// DropNulls removes every row holding a null in any of the named columns.
// With no names, all columns are checked.
func (df *DataFrame) DropNulls(columns ...string) (*DataFrame, error) {
	if len(columns) == 0 {
		columns = df.Columns()
	}
	if err := df.requireColumns("DropNulls", columns...); err != nil {
		return nil, err
	}

	mask := make([]bool, df.Len())
	for i := range mask {
		mask[i] = true
		for _, name := range columns {
			if df.columns[name].IsNull(i) {
				mask[i] = false
				break
			}
		}
	}
	return df.Filter(mask)
}

// FillNull replaces nulls with value in the named string columns. Columns of
// any other type are left untouched, since a text value cannot fill them.
func (df *DataFrame) FillNull(value string, columns ...string) (*DataFrame, error) {
	if err := df.requireColumns("FillNull", columns...); err != nil {
		return nil, err
	}

	result, err := df.Select(df.Columns()...)
	if err != nil {
		return nil, err
	}
	for _, name := range columns {
		col := df.columns[name]
		if col.DataType().ID() != arrow.STRING || col.NullN() == 0 {
			continue
		}
		filled := fillString(col, value, df)
		next, err := result.WithColumn(filled)
		result.Release()
		if err != nil {
			return nil, err
		}
		result = next
	}
	return result, nil
}

func fillString(col ISeries, value string, df *DataFrame) ISeries {
	arr := col.Array()
	defer arr.Release()
	src, _ := arr.(*array.String)

	b := array.NewStringBuilder(df.mem)
	defer b.Release()
	b.Reserve(src.Len())
	for i := 0; i < src.Len(); i++ {
		if src.IsNull(i) {
			b.Append(value)
			continue
		}
		b.Append(src.Value(i))
	}
	filled := b.NewArray()
	defer filled.Release()
	return series.Wrap[string](col.Name(), filled)
}
