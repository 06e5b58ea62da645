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

func TestSumAndMean(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := New(
		series.NewWithNulls("price", []float64{100, 0, 20}, []bool{true, false, true}, mem),
		series.New("qty", []int64{1, 2, 3}, mem),
		series.New("text", []string{"1.5", "x", "2.5"}, mem),
		series.New("ts", []time.Time{{}, {}, {}}, mem),
	)
	defer df.Release()

	sum, ok, err := df.Sum("price")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 120.0, sum, 1e-9)

	mean, ok, err := df.Mean("price")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 60.0, mean, 1e-9)

	sum, ok, err = df.Sum("qty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 6.0, sum, 1e-9)

	mean, ok, err = df.Mean("text")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 2.0, mean, 1e-9)

	_, _, err = df.Sum("ts")
	require.Error(t, err)
	_, _, err = df.Sum("missing")
	require.Error(t, err)

	n, err := df.CountNonNull("price")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSumOfEmptyIsNull(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := New(series.New("price", []float64{}, mem))
	defer df.Release()

	_, ok, err := df.Sum("price")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = df.Mean("price")
	require.NoError(t, err)
	assert.False(t, ok)
}
