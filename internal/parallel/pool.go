// Package parallel provides a small worker pool for running one function
// per item in a slice, sized to the machine by default. It uses a
// work-queue model, with a fixed pool of goroutines pulling items from a
// shared channel, rather than broadcasting every item to every worker,
// since a snapshot build or restore has many more paths than it has CPUs.
package parallel

import (
	"runtime"
	"sync"
)

// Workers returns the worker count to use when size is non-positive: the
// number of logical CPUs, never less than one.
func Workers(size int) int {
	if size > 0 {
		return size
	}
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// ForEach runs fn(i) for every index in [0, n) using up to workers goroutines,
// and returns a slice of length n whose element i is the error fn(i)
// returned (nil for n == 0). Every index is attempted
// even after an error is recorded, matching the engine's policy that a
// per-file failure excludes that file rather than aborting the whole pass;
// callers that must abort early should have fn itself become a no-op once an
// abort flag is set.
func ForEach(n, workers int, fn func(i int) error) []error {
	workers = Workers(workers)
	if workers > n {
		workers = n
	}
	if n == 0 {
		return nil
	}

	errs := make([]error, n)
	indices := make(chan int)
	var wg sync.WaitGroup

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indices {
				errs[i] = fn(i)
			}
		}()
	}

	for i := 0; i < n; i++ {
		indices <- i
	}
	close(indices)
	wg.Wait()

	return errs
}
