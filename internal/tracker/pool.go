package tracker

import (
	"context"
	"sync"
)

// poolResult carries one task's output back to the collector.
type poolResult[T any] struct {
	idx   int
	value T
}

// runPool calls task for every index in [0, n) on a fixed number of
// goroutines and returns the results in index order. Indices that were
// never dispatched because ctx ended are filled by cancelled.
func runPool[T any](ctx context.Context, workers, n int, task func(ctx context.Context, i int) T, cancelled func(i int, err error) T) []T {
	out := make([]T, n)
	if n == 0 {
		return out
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	jobs := make(chan int, workers*2)
	results := make(chan poolResult[T], workers*2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- poolResult[T]{idx: i, value: task(ctx, i)}
			}
		}()
	}

	// Feed jobs in a goroutine.
	go func() {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close results when all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	done := make([]bool, n)
	for r := range results {
		out[r.idx] = r.value
		done[r.idx] = true
	}
	for i := range out {
		if !done[i] {
			out[i] = cancelled(i, context.Cause(ctx))
		}
	}
	return out
}
