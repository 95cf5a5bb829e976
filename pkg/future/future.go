// Package future provides a small continuation-driven promise used to compose
// remote calls without blocking the calling goroutine.
//
// A Future completes exactly once, either with a value or with an error; the
// first completion wins and later attempts are ignored. Continuations registered
// with WhenComplete run on the goroutine that completes the future, or inline
// when the future is already done.
package future

import (
	"context"
	"sync"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/hypergrid/internal/sentinel"
)

// Future is the eventual result of an asynchronous computation.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	completed bool
	val       T
	err       error
	callbacks []func(T, error)
}

// New returns a pending future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future already completed with v.
func Completed[T any](v T) *Future[T] {
	f := New[T]()
	f.Complete(v)

	return f
}

// Failed returns a future already completed with err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.Fail(err)

	return f
}

// Complete resolves the future with v. It returns false if the future was already done.
func (f *Future[T]) Complete(v T) bool { return f.resolve(v, nil) }

// Fail resolves the future with err. It returns false if the future was already done.
func (f *Future[T]) Fail(err error) bool {
	var zero T

	return f.resolve(zero, err)
}

// Resolve completes the future with either v or err.
func (f *Future[T]) Resolve(v T, err error) bool {
	if err != nil {
		return f.Fail(err)
	}

	return f.Complete(v)
}

func (f *Future[T]) resolve(v T, err error) bool {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()

		return false
	}

	f.completed = true
	f.val = v
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}

	return true
}

// IsDone reports whether the future has completed.
func (f *Future[T]) IsDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.completed
}

// Done returns a channel closed on completion.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Result returns the outcome of a completed future. It must only be called after Done is closed.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.val, f.err
}

// WhenComplete registers fn to run once the future completes.
func (f *Future[T]) WhenComplete(fn func(T, error)) {
	f.mu.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()

		return
	}

	v, err := f.val, f.err
	f.mu.Unlock()

	fn(v, err)
}

// Await blocks until the future completes or ctx is done.
// It is meant for the edges of the system (public APIs, transports and tests), never for routing code.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T

		return zero, ewrap.Wrap(sentinel.ErrTimeoutOrCanceled, ctx.Err().Error())
	}
}

// Handle maps both outcomes of f through fn. A panic-free fn that returns an error fails the result.
func Handle[T, U any](f *Future[T], fn func(T, error) (U, error)) *Future[U] {
	out := New[U]()

	f.WhenComplete(func(v T, err error) {
		out.Resolve(fn(v, err))
	})

	return out
}

// Then maps a successful outcome of f through fn; failures propagate unchanged.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	return Handle(f, func(v T, err error) (U, error) {
		if err != nil {
			var zero U

			return zero, err
		}

		return fn(v)
	})
}

// Compose chains an asynchronous step after a successful f.
func Compose[T, U any](f *Future[T], fn func(T) *Future[U]) *Future[U] {
	out := New[U]()

	f.WhenComplete(func(v T, err error) {
		if err != nil {
			out.Fail(err)

			return
		}

		fn(v).WhenComplete(func(u U, err error) { out.Resolve(u, err) })
	})

	return out
}

// Forward completes dst with the outcome of src.
func Forward[T any](src, dst *Future[T]) {
	src.WhenComplete(func(v T, err error) { dst.Resolve(v, err) })
}
