//nolint:testpackage // requires internal access to unexported types and functions
package dataframe

import (
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/ecomlake/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInnerJoinOnSharedKey(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	orders := NewWithAllocator(mem,
		series.New("customer_id", []string{"c1", "c2", "c3"}, mem),
		series.New("order_id", []string{"o1", "o2", "o3"}, mem),
	)
	defer orders.Release()

	items := NewWithAllocator(mem,
		series.New("order_id", []string{"o1", "o1", "o3", "o9"}, mem),
		series.New("product_id", []string{"P1", "P2", "P3", "P9"}, mem),
	)
	defer items.Release()

	joined, err := orders.Join(items, &JoinOptions{Type: InnerJoin, LeftKey: "order_id", RightKey: "order_id"})
	require.NoError(t, err)
	defer joined.Release()

	assert.Equal(t, []string{"order_id", "customer_id", "product_id"}, joined.Columns())
	require.Equal(t, 3, joined.Len())
	assert.Equal(t, []any{"o1", "c1", "P1"}, joined.Row(0))
	assert.Equal(t, []any{"o1", "c1", "P2"}, joined.Row(1))
	assert.Equal(t, []any{"o3", "c3", "P3"}, joined.Row(2))
}

func TestJoinNullKeysNeverMatch(t *testing.T) {
	mem := memory.NewGoAllocator()

	left := New(series.NewWithNulls("k", []string{"", "a"}, []bool{false, true}, mem))
	defer left.Release()
	right := New(
		series.NewWithNulls("k", []string{"", "a"}, []bool{false, true}, mem),
		series.New("v", []int64{1, 2}, mem),
	)
	defer right.Release()

	joined, err := left.Join(right, &JoinOptions{LeftKey: "k", RightKey: "k"})
	require.NoError(t, err)
	defer joined.Release()

	require.Equal(t, 1, joined.Len())
	assert.Equal(t, []any{"a", int64(2)}, joined.Row(0))
}

func TestLeftJoinKeepsUnmatched(t *testing.T) {
	mem := memory.NewGoAllocator()

	left := New(series.New("id", []int64{1, 2}, mem))
	defer left.Release()
	right := New(series.New("id", []int64{2}, mem), series.New("v", []string{"x"}, mem))
	defer right.Release()

	joined, err := left.Join(right, &JoinOptions{Type: LeftJoin, LeftKey: "id", RightKey: "id"})
	require.NoError(t, err)
	defer joined.Release()

	require.Equal(t, 2, joined.Len())
	assert.Equal(t, []any{int64(1), nil}, joined.Row(0))
	assert.Equal(t, []any{int64(2), "x"}, joined.Row(1))
}

func TestJoinDifferentKeyNamesAndCollisions(t *testing.T) {
	mem := memory.NewGoAllocator()

	left := New(series.New("id", []string{"a"}, mem), series.New("name", []string{"left"}, mem))
	defer left.Release()
	right := New(series.New("ref", []string{"a"}, mem), series.New("name", []string{"right"}, mem))
	defer right.Release()

	joined, err := left.Join(right, &JoinOptions{LeftKey: "id", RightKey: "ref"})
	require.NoError(t, err)
	defer joined.Release()

	assert.Equal(t, []string{"id", "name", "ref", "name_right"}, joined.Columns())
	assert.Equal(t, []any{"a", "left", "a", "right"}, joined.Row(0))
}

func TestJoinErrors(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := New(series.New("id", []string{"a"}, mem))
	defer df.Release()

	_, err := df.Join(df, nil)
	require.Error(t, err)
	_, err = df.Join(df, &JoinOptions{LeftKey: "missing", RightKey: "id"})
	require.Error(t, err)
	_, err = df.Join(df, &JoinOptions{LeftKey: "id", RightKey: "missing"})
	require.Error(t, err)
}

func TestKeyIndexGrows(t *testing.T) {
	index := newKeyIndex(1)
	for i := 0; i < 1000; i++ {
		slot, existed := index.insert(fmt.Sprintf("key-%d", i))
		require.False(t, existed)
		require.Equal(t, i, slot)
	}
	for i := 0; i < 1000; i++ {
		slot, found := index.lookup(fmt.Sprintf("key-%d", i))
		require.True(t, found)
		require.Equal(t, i, slot)
	}
	_, found := index.lookup("absent")
	assert.False(t, found)
	assert.Equal(t, 1000, index.size)
}

func TestNextPowerOfTwo(t *testing.T) {
	assert.Equal(t, 1, nextPowerOfTwo(0))
	assert.Equal(t, 1, nextPowerOfTwo(1))
	assert.Equal(t, 4, nextPowerOfTwo(3))
	assert.Equal(t, 1024, nextPowerOfTwo(1000))
}

func TestCompositeKeyDistinguishesNull(t *testing.T) {
	mem := memory.NewGoAllocator()
	a := series.NewWithNulls("a", []string{"", ""}, []bool{false, true}, mem)
	defer a.Release()

	keys := []ISeries{a}
	assert.NotEqual(t, compositeKey(keys, 0), compositeKey(keys, 1))
}
