package future

import (
	"sync"
	"sync/atomic"

	"github.com/hyp3rd/ewrap"
)

// MergingFuture gathers the contributions of several concurrent producers into a
// preallocated result slice and completes once every expected contribution landed,
// or with the first failure.
//
// Producers that write disjoint indexes call Set followed by CountDown. Producers
// whose buffer writes must be indivisible from other state (for example registering
// entries into a shared context) use Merge, which runs under a short critical section.
type MergingFuture[T any] struct {
	*Future[any]

	mu        sync.Mutex
	results   []T
	counter   atomic.Int64
	transform func([]T) (any, error)
}

// NewMerging allocates a merging future of size slots expecting participants contributions.
// transform converts the filled buffer into the final value; nil yields the buffer itself.
func NewMerging[T any](participants, size int, transform func([]T) (any, error)) *MergingFuture[T] {
	mf := &MergingFuture[T]{
		Future:    New[any](),
		results:   make([]T, size),
		transform: transform,
	}
	mf.counter.Store(int64(participants))

	if participants == 0 {
		mf.finish()
	}

	return mf
}

// Len returns the size of the result buffer.
func (mf *MergingFuture[T]) Len() int { return len(mf.results) }

// Set writes v at index i. Writes after completion are dropped.
func (mf *MergingFuture[T]) Set(i int, v T) {
	if mf.IsDone() {
		return
	}

	mf.results[i] = v
}

// Scatter writes values at the given positions. Writes after completion are dropped.
func (mf *MergingFuture[T]) Scatter(positions []int, values []T) error {
	if len(positions) != len(values) {
		return ewrap.Newf("scatter: %d positions for %d values", len(positions), len(values))
	}

	if mf.IsDone() {
		return nil
	}

	for i, pos := range positions {
		mf.results[pos] = values[i]
	}

	return nil
}

// CountDown records one finished contribution and completes the future on the last one.
func (mf *MergingFuture[T]) CountDown() {
	if mf.counter.Add(-1) == 0 {
		mf.finish()
	}
}

// Merge runs fn under the merge lock and then counts down. fn receives the result buffer.
// A non-nil error from fn fails the whole future.
func (mf *MergingFuture[T]) Merge(fn func(results []T) error) {
	mf.mu.Lock()

	if mf.IsDone() {
		mf.mu.Unlock()

		return
	}

	err := fn(mf.results)
	remaining := int64(1)

	if err == nil {
		remaining = mf.counter.Add(-1)
	}

	mf.mu.Unlock()

	// complete outside the critical section so continuations never run under mu
	switch {
	case err != nil:
		mf.Fail(err)
	case remaining == 0:
		mf.finish()
	}
}

func (mf *MergingFuture[T]) finish() {
	if mf.transform == nil {
		mf.Complete(mf.results)

		return
	}

	v, err := mf.transform(mf.results)
	mf.Resolve(v, err)
}
