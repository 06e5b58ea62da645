//nolint:testpackage // requires internal access to unexported types and functions
package dataframe

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/ecomlake/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaString(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := New(
		series.New("order_id", []string{"o1"}, mem),
		series.New("order_item_id", []int64{1}, mem),
		series.New("price", []float64{1}, mem),
		series.New("year", []int32{2024}, mem),
		series.New("flag", []bool{true}, mem),
		series.New("ts", []time.Time{time.Now()}, mem),
	)
	defer df.Release()

	expected := "root\n" +
		" |-- order_id: string (nullable = true)\n" +
		" |-- order_item_id: long (nullable = true)\n" +
		" |-- price: double (nullable = true)\n" +
		" |-- year: integer (nullable = true)\n" +
		" |-- flag: boolean (nullable = true)\n" +
		" |-- ts: timestamp (nullable = true)\n"
	assert.Equal(t, expected, df.SchemaString())
}

func TestRecordRoundTrip(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	df := NewWithAllocator(mem,
		series.New("a", []string{"x", "y"}, mem),
		series.NewWithNulls("b", []int64{1, 0}, []bool{true, false}, mem),
	)
	defer df.Release()

	rec := df.ToRecord()
	defer rec.Release()
	assert.Equal(t, int64(2), rec.NumRows())
	assert.Equal(t, int64(2), rec.NumCols())

	back, err := FromRecord(rec, mem)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, df.Row(1), back.Row(1))
}
