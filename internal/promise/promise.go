// Package promise provides a one-shot readiness handle.
//
// A Future settles exactly once, either with a value or an error. Later
// Resolve/Reject calls are ignored, so a resolved Future never turns into a
// rejected one. Components that need a fresh readiness signal create a new
// Future instead of resetting the old one.
package promise

import (
	"context"
	"sync"
)

// Future is a value that becomes available later.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// New returns a pending Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Rejected returns a Future already settled with err.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Resolve settles f with v. It reports whether this call settled f.
func (f *Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

// Reject settles f with err. It reports whether this call settled f.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

// Settle resolves or rejects f depending on err.
func (f *Future[T]) Settle(v T, err error) bool {
	return f.settle(v, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once f settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether f has settled.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until f settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}

	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the settled value without blocking.
// ok is false while f is pending.
func (f *Future[T]) Result() (v T, err error, ok bool) {
	if !f.Settled() {
		return v, nil, false
	}
	return f.val, f.err, true
}
