// Package parallel provides the worker pool the native engine uses to fan
// column-level work (timestamp parsing, CSV column conversion) across CPUs.
//
// Results are always returned in input order, so callers can rely on
// deterministic column placement regardless of scheduling.
package parallel

import (
	"context"
	"runtime"
	"sync"
)

// WorkerPool manages a pool of goroutines for parallel processing
type WorkerPool struct {
	numWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewWorkerPool creates a new worker pool. A non-positive count uses
// runtime.NumCPU().
func NewWorkerPool(numWorkers int) *WorkerPool {
	return NewWorkerPoolWithContext(context.Background(), numWorkers)
}

// NewWorkerPoolWithContext creates a worker pool that stops handing out work
// once ctx is done.
func NewWorkerPoolWithContext(ctx context.Context, numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers: numWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Workers returns the number of goroutines the pool runs.
func (wp *WorkerPool) Workers() int {
	return wp.numWorkers
}

// ProcessIndexed executes work items in parallel while preserving order
func ProcessIndexed[T, R any](
	wp *WorkerPool,
	items []T,
	worker func(int, T) R,
) []R {
	results, _ := TryProcessIndexed(wp, items, func(i int, item T) (R, error) {
		return worker(i, item), nil
	})
	return results
}

// TryProcessIndexed is ProcessIndexed for fallible work. It returns the error
// of the lowest-indexed failing item, or the pool's context error when the
// pool was cancelled before every item ran. Results of successful items are
// returned even when an error is reported so callers can release them.
func TryProcessIndexed[T, R any](
	wp *WorkerPool,
	items []T,
	worker func(int, T) (R, error),
) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}

	// Channel for input items with index
	itemCh := make(chan indexedItem[T], len(items))

	// Channel for results with index
	resultCh := make(chan indexedResult[R], len(items))

	workers := wp.numWorkers
	if workers > len(items) {
		workers = len(items)
	}

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemCh {
				select {
				case <-wp.ctx.Done():
					return
				default:
					result, err := worker(item.index, item.value)
					resultCh <- indexedResult[R]{
						index:  item.index,
						result: result,
						err:    err,
					}
				}
			}
		}()
	}

	// Send items to workers
	go func() {
		defer close(itemCh)
		for i, item := range items {
			select {
			case <-wp.ctx.Done():
				return
			case itemCh <- indexedItem[T]{index: i, value: item}:
			}
		}
	}()

	// Close result channel when all workers are done
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// Collect results and maintain order
	results := make([]R, len(items))
	errs := make([]error, len(items))
	received := 0
	for result := range resultCh {
		results[result.index] = result.result
		errs[result.index] = result.err
		received++
	}

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	if received < len(items) {
		return results, wp.ctx.Err()
	}
	return results, nil
}

// Close shuts down the worker pool
func (wp *WorkerPool) Close() {
	wp.cancel()
}

// indexedItem holds an item with its index
type indexedItem[T any] struct {
	index int
	value T
}

// indexedResult holds a result with its index
type indexedResult[R any] struct {
	index  int
	result R
	err    error
}
