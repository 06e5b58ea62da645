package parallel_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/paveg/ecomlake/internal/parallel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerPool(t *testing.T) {
	pool := parallel.NewWorkerPool(0)
	defer pool.Close()
	assert.Positive(t, pool.Workers())

	pool2 := parallel.NewWorkerPool(4)
	defer pool2.Close()
	assert.Equal(t, 4, pool2.Workers())

	pool3 := parallel.NewWorkerPool(-1)
	defer pool3.Close()
	assert.Positive(t, pool3.Workers())
}

func TestProcessIndexed(t *testing.T) {
	pool := parallel.NewWorkerPool(2)
	defer pool.Close()

	input := []string{"a", "b", "c", "d"}

	results := parallel.ProcessIndexed(pool, input, func(index int, value string) string {
		return value + string(rune('0'+index))
	})

	assert.Equal(t, []string{"a0", "b1", "c2", "d3"}, results)
}

func TestProcessIndexedEmpty(t *testing.T) {
	pool := parallel.NewWorkerPool(2)
	defer pool.Close()

	results := parallel.ProcessIndexed(pool, []int{}, func(_ int, x int) int { return x })
	assert.Nil(t, results)
}

func TestProcessIndexedRunsEveryItem(t *testing.T) {
	pool := parallel.NewWorkerPool(3)
	defer pool.Close()

	var calls int64
	input := make([]int, 100)
	for i := range input {
		input[i] = i
	}

	results := parallel.ProcessIndexed(pool, input, func(_ int, x int) int {
		atomic.AddInt64(&calls, 1)
		return x * 2
	})

	require.Len(t, results, 100)
	assert.Equal(t, int64(100), atomic.LoadInt64(&calls))
	for i, r := range results {
		assert.Equal(t, i*2, r)
	}
}

func TestTryProcessIndexedReturnsFirstError(t *testing.T) {
	pool := parallel.NewWorkerPool(4)
	defer pool.Close()

	errOdd := errors.New("odd")
	input := []int{0, 1, 2, 3}

	results, err := parallel.TryProcessIndexed(pool, input, func(_ int, x int) (int, error) {
		if x%2 == 1 {
			return 0, errOdd
		}
		return x + 10, nil
	})

	require.ErrorIs(t, err, errOdd)
	require.Len(t, results, 4)
	assert.Equal(t, 10, results[0])
	assert.Equal(t, 12, results[2])
}

func TestTryProcessIndexedCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := parallel.NewWorkerPoolWithContext(ctx, 2)
	defer pool.Close()

	_, err := parallel.TryProcessIndexed(pool, []int{1, 2, 3}, func(_ int, x int) (int, error) {
		return x, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
