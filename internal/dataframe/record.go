package dataframe

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ArrowSchema returns the Arrow schema of the DataFrame. Every field is nullable.
func (df *DataFrame) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, df.Width())
	for _, name := range df.order {
		fields = append(fields, arrow.Field{
			Name:     name,
			Type:     df.columns[name].DataType(),
			Nullable: true,
		})
	}
	return arrow.NewSchema(fields, nil)
}

// ToRecord assembles the columns into a single Arrow record. The caller must
// release it.
func (df *DataFrame) ToRecord() arrow.Record {
	cols := make([]arrow.Array, 0, df.Width())
	for _, name := range df.order {
		cols = append(cols, df.columns[name].Array())
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()
	return array.NewRecord(df.ArrowSchema(), cols, int64(df.Len()))
}

// FromRecord builds a DataFrame over the columns of rec.
func FromRecord(rec arrow.Record, mem memory.Allocator) (*DataFrame, error) {
	out := make([]ISeries, 0, rec.NumCols())
	for i, field := range rec.Schema().Fields() {
		s, err := FromArray(field.Name, rec.Column(i))
		if err != nil {
			releaseAll(out)
			return nil, err
		}
		out = append(out, s)
	}
	return NewWithAllocator(mem, out...), nil
}
