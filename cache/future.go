// Package cache provides a generic get-or-compute cache of futures. At most one computation is
// running per key at any time: the first caller registers the future and starts the computation,
// every later caller observes and awaits the same future.
package cache

import (
	"context"
	"time"
)

// Future is the handle of a computation that may still be in progress.
type Future[V any] struct {
	done        chan struct{}
	value       V
	err         error
	completedAt time.Time
}

func newFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

// Completed returns a future that has already completed with value.
func Completed[V any](value V) *Future[V] {
	f := newFuture[V]()
	f.complete(value, nil)
	return f
}

// Failed returns a future that has already completed with err.
func Failed[V any](err error) *Future[V] {
	f := newFuture[V]()
	var zero V
	f.complete(zero, err)
	return f
}

func (f *Future[V]) complete(value V, err error) {
	f.value = value
	f.err = err
	f.completedAt = time.Now()
	close(f.done)
}

// Await blocks until the computation completes or ctx is done. Giving up on the future does not
// cancel the computation.
func (f *Future[V]) Await(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Done is closed once the computation has completed.
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the computation has completed.
func (f *Future[V]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the error of a completed future, or nil while the computation is running.
func (f *Future[V]) Err() error {
	if !f.Ready() {
		return nil
	}
	return f.err
}

// CompletedAt returns the completion time, or the zero time while the computation is running.
func (f *Future[V]) CompletedAt() time.Time {
	select {
	case <-f.done:
		return f.completedAt
	default:
		return time.Time{}
	}
}
