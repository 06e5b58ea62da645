//nolint:testpackage // requires internal access to unexported types and functions
package dataframe

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/ecomlake/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupByFirstAppearanceOrder(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := New(series.New("category", []string{"B", "A", "B", "C"}, mem))
	defer df.Release()

	gb, err := df.GroupBy("category")
	require.NoError(t, err)
	assert.Equal(t, 3, gb.NumGroups())
	assert.Equal(t, [][]int{{0, 2}, {1}, {3}}, gb.groups)
}

func TestGroupByAgg(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	df := NewWithAllocator(mem,
		series.New("product_id", []string{"P1", "P2", "P1", "P1"}, mem),
		series.NewWithNulls("order_id", []string{"o1", "o2", "", "o4"}, []bool{true, true, false, true}, mem),
		series.New("price", []float64{10, 20, 30, 40}, mem),
		series.New("qty", []int32{1, 2, 3, 4}, mem),
	)
	defer df.Release()

	gb, err := df.GroupBy("product_id")
	require.NoError(t, err)

	out, err := gb.Agg(
		Count("order_id").As("Total_orders"),
		Count(CountAll).As("rows"),
		Sum("price"),
		Mean("price").As("avg_price"),
		Sum("qty").As("qty"),
	)
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, []string{"product_id", "Total_orders", "rows", "sum(price)", "avg_price", "qty"}, out.Columns())
	assert.Equal(t, []any{"P1", int64(2), int64(3), 80.0, 80.0 / 3, int64(8)}, out.Row(0))
	assert.Equal(t, []any{"P2", int64(1), int64(1), 20.0, 20.0, int64(2)}, out.Row(1))
}

func TestGroupByNullKeysFormOneGroup(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := New(
		series.NewWithNulls("year", []int32{2024, 0, 0}, []bool{true, false, false}, mem),
		series.NewWithNulls("month", []int32{1, 0, 0}, []bool{true, false, false}, mem),
		series.New("price", []float64{100, 5, 7}, mem),
	)
	defer df.Release()

	gb, err := df.GroupBy("year", "month")
	require.NoError(t, err)
	out, err := gb.Agg(Sum("price").As("total_revenue"))
	require.NoError(t, err)
	defer out.Release()

	require.Equal(t, 2, out.Len())
	assert.Equal(t, []any{int32(2024), int32(1), 100.0}, out.Row(0))
	assert.Equal(t, []any{nil, nil, 12.0}, out.Row(1))
}

func TestGroupBySumOfNullsIsNull(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := New(
		series.New("k", []string{"a", "b"}, mem),
		series.NewWithNulls("v", []float64{1, 0}, []bool{true, false}, mem),
		series.New("t", []string{"2.5", "n/a"}, mem),
	)
	defer df.Release()

	gb, err := df.GroupBy("k")
	require.NoError(t, err)
	out, err := gb.Agg(Sum("v").As("v"), Mean("v").As("m"), Sum("t").As("t"))
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, []any{"a", 1.0, 1.0, 2.5}, out.Row(0))
	assert.Equal(t, []any{"b", nil, nil, nil}, out.Row(1))
}

func TestGroupByErrors(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := New(series.New("k", []string{"a"}, mem), series.New("flag", []bool{true}, mem))
	defer df.Release()

	_, err := df.GroupBy()
	require.Error(t, err)
	_, err = df.GroupBy("missing")
	require.Error(t, err)

	gb, err := df.GroupBy("k")
	require.NoError(t, err)
	_, err = gb.Agg(Sum("missing"))
	require.Error(t, err)
	_, err = gb.Agg(Sum("flag"))
	require.Error(t, err)
}

func TestAggregationOutputName(t *testing.T) {
	assert.Equal(t, "sum(price)", Sum("price").OutputName())
	assert.Equal(t, "avg(price)", Mean("price").OutputName())
	assert.Equal(t, "count(order_id)", Count("order_id").OutputName())
	assert.Equal(t, "n", Count("x").As("n").OutputName())
}
