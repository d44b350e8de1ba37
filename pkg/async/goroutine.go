package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// ErrorLogger is the logging surface SafeGo needs. Both
// *observability.Logger and *logrus.Logger satisfy it.
type ErrorLogger interface {
	Errorf(format string, args ...interface{})
}

// SafeGo runs fn in a goroutine under a timeout, logging its error or panic
// instead of crashing the process. The returned channel closes when fn
// has returned.
//
//	done := async.SafeGo(ctx, time.Minute, "usage report", logger, func(ctx context.Context) error {
//	    return exporter.Export(ctx, month)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, logger ErrorLogger, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		if err := runSafely(ctx, fn); err != nil && logger != nil {
			logger.Errorf("task %s failed: %v", taskName, err)
		}
	}()
	return done
}

// runSafely converts a panic in fn into an error carrying the stack
func runSafely(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// ItemError ties a Batch failure to the item that caused it
type ItemError[T any] struct {
	Item T
	Err  error
}

func (e *ItemError[T]) Error() string {
	return fmt.Sprintf("%v: %v", e.Item, e.Err)
}

func (e *ItemError[T]) Unwrap() error {
	return e.Err
}

// Batch processes items with at most workers concurrent calls, each under
// its own timeout. It waits for every item and returns the failures in item
// order. Items not started before ctx is cancelled fail with ctx.Err().
func Batch[T any](ctx context.Context, items []T, workers int, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers <= 0 {
		workers = 1
	}

	results := make([]error, len(items))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, item := range items {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = ctx.Err()
			continue
		}

		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()

			itemCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			results[i] = runSafely(itemCtx, func(ctx context.Context) error {
				return fn(ctx, item)
			})
		}(i, item)
	}
	wg.Wait()

	var errs []error
	for i, err := range results {
		if err != nil {
			errs = append(errs, &ItemError[T]{Item: items[i], Err: err})
		}
	}
	return errs
}
