// Package parallel provides bounded data-parallel fan-out for the per-point
// loops of the embedding pipeline. Work items write only to indices they own,
// so results do not depend on scheduling order.
package parallel

import (
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Workers returns the default fan-out width.
func Workers() int {
	return runtime.NumCPU()
}

// For runs fn(i) for every i in [0, n) using at most workers goroutines.
// It blocks until all items complete. workers <= 1 runs inline, which keeps
// single-threaded callers allocation-free.
func For(n, workers int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if workers <= 0 {
		workers = Workers()
	}
	if workers == 1 || n == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	if workers > n {
		workers = n
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	defer pool.Release()

	// Contiguous chunks: each worker owns a disjoint index range.
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		lo, hi := start, end
		submitErr := pool.Submit(func() {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				fn(i)
			}
		})
		if submitErr != nil {
			// Pool rejected the task; run the chunk inline.
			for i := lo; i < hi; i++ {
				fn(i)
			}
			wg.Done()
		}
	}
	wg.Wait()
}
