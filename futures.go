package taskqueue

import "context"

// rawFuture is the untyped completion handle the scheduler fulfils. It
// settles exactly once, via resolve or reject, never both.
type rawFuture struct {
	done chan struct{}
	val  any
	err  error
}

func newRawFuture() *rawFuture {
	return &rawFuture{done: make(chan struct{})}
}

func (f *rawFuture) resolve(v any) {
	f.val = v
	close(f.done)
}

func (f *rawFuture) reject(err error) {
	f.err = err
	close(f.done)
}

func (f *rawFuture) wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Future is the typed handle returned by Add. It completes exactly once,
// with either the task's result or its error.
type Future[T any] struct {
	raw *rawFuture
	id  ID
}

// ID returns the id assigned to the task this future belongs to (either
// the caller-supplied id or the auto-assigned one).
func (f *Future[T]) ID() ID { return f.id }

// Wait blocks until the task settles or ctx is done, whichever comes
// first.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	v, err := f.raw.wait(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	tv, _ := v.(T)
	return tv, nil
}
