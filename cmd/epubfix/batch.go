package main

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// resolveWorkers returns the number of books processed at once.
// Zero means one per CPU. The result never exceeds jobs and is at least 1.
func resolveWorkers(workers, jobs int) int {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > jobs {
		workers = jobs
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// forEach calls fn for every index in [0, n) with at most workers calls in
// flight. Indexes not yet started when ctx is canceled are passed to
// skipped instead. Per-item errors are recorded by the callbacks; forEach
// itself never fails.
func forEach(ctx context.Context, n, workers int, fn func(i int), skipped func(i int, err error)) {
	var g errgroup.Group
	g.SetLimit(resolveWorkers(workers, n))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				skipped(i, err)
				return nil
			}
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}
