//nolint:testpackage // requires internal access to unexported types and functions
package dataframe

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/ecomlake/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDropNulls(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	df := NewWithAllocator(mem,
		series.NewWithNulls("a", []string{"x", "", "z", "w"}, []bool{true, false, true, true}, mem),
		series.NewWithNulls("b", []int64{1, 2, 0, 4}, []bool{true, true, false, true}, mem),
		series.NewWithNulls("c", []float64{0, 0, 0, 0}, []bool{false, false, false, false}, mem),
	)
	defer df.Release()

	t.Run("subset", func(t *testing.T) {
		out, err := df.DropNulls("a", "b")
		require.NoError(t, err)
		defer out.Release()
		require.Equal(t, 2, out.Len())
		assert.Equal(t, []any{"x", int64(1), nil}, out.Row(0))
		assert.Equal(t, []any{"w", int64(4), nil}, out.Row(1))
	})

	t.Run("all columns", func(t *testing.T) {
		out, err := df.DropNulls()
		require.NoError(t, err)
		defer out.Release()
		assert.Equal(t, 0, out.Len())
	})

	t.Run("missing column", func(t *testing.T) {
		_, err := df.DropNulls("nope")
		require.Error(t, err)
	})
}

func TestFillNull(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	df := NewWithAllocator(mem,
		series.NewWithNulls("order_status", []string{"", "delivered"}, []bool{false, true}, mem),
		series.NewWithNulls("seller_id", []string{"s1", ""}, []bool{true, false}, mem),
		series.NewWithNulls("price", []float64{0, 3}, []bool{false, true}, mem),
	)
	defer df.Release()

	out, err := df.FillNull("unknown", "order_status", "seller_id", "price")
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, []string{"order_status", "seller_id", "price"}, out.Columns())
	assert.Equal(t, []any{"unknown", "s1", nil}, out.Row(0), "non-string columns are left untouched")
	assert.Equal(t, []any{"delivered", "unknown", 3.0}, out.Row(1))

	_, err = df.FillNull("unknown", "nope")
	require.Error(t, err)
}
