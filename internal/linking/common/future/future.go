// Package future provides a single-assignment result handle with blocking
// waits and completion callbacks.
package future

import (
	"context"
	"sync"
)

// Future holds a value that becomes available once.
type Future[T any] struct {
	done chan struct{}

	mu        sync.Mutex
	resolved  bool
	val       T
	err       error
	callbacks []func(T, error)
}

// New returns an unresolved Future and the function that resolves it.
// Only the first call to resolve has an effect. Callbacks registered before
// resolution run on the goroutine that calls resolve.
func New[T any]() (*Future[T], func(T, error)) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.resolve
}

// Resolved returns a Future that is already complete.
func Resolved[T any](v T, err error) *Future[T] {
	f, resolve := New[T]()
	resolve(v, err)
	return f
}

func (f *Future[T]) resolve(v T, err error) {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return
	}
	f.resolved = true
	f.val, f.err = v, err
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(v, err)
	}
}

// Done is closed when the Future resolves.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the Future resolves or ctx ends.
// When ctx ends first the zero value and ctx.Err() are returned.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then registers fn to run once the Future resolves. If it already has, fn
// runs immediately on the calling goroutine.
func (f *Future[T]) Then(fn func(T, error)) {
	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.val, f.err
	f.mu.Unlock()
	fn(v, err)
}
