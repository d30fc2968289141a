package schedule

import (
	"context"
	"sync"
)

// Future holds the eventual result of a scheduled task.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// resolve stores the result. Only the first call has any effect.
func (f *Future[T]) resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

func (f *Future[T]) fail(err error) {
	var zero T
	f.resolve(zero, err)
}

// Done returns a channel that is closed once the task has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the task settles or ctx is done.
// A ctx cancellation only stops the wait; the task itself keeps its own context.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
