// Package workerpool implements the bounded fan-out executor spec.md §9
// calls for in place of one-goroutine-per-task spawning: a pool sized by
// configured thread count, constructed at pipeline start and joined at
// pipeline end.
package workerpool

import (
	"context"
	"sync"
)

// Task is one unit of fan-out work. A non-nil return aborts the run for
// the caller of Run, matching spec.md §4.7's "any failed call past the
// retry policy aborts the pipeline run" failure semantics.
type Task func(ctx context.Context) error

// Run executes tasks across a pool of n workers (n < 1 is treated as 1),
// returning the first error encountered. All tasks are submitted
// regardless of earlier failures (ctx is not cancelled on first error);
// if ctx is cancelled externally, queued tasks that haven't started yet
// still execute but should check ctx themselves to short-circuit.
func Run(ctx context.Context, n int, tasks []Task) error {
	if n < 1 {
		n = 1
	}
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan Task)
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			for task := range taskCh {
				if err := task(ctx); err != nil {
					once.Do(func() { firstErr = err })
				}
			}
		}()
	}

	for _, t := range tasks {
		taskCh <- t
	}
	close(taskCh)
	wg.Wait()

	return firstErr
}
