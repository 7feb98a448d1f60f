package taskqueue

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
)

// Queue is an in-process asynchronous task queue with concurrency
// control and rate limiting. It is safe for concurrent use: every
// method may be called from any goroutine.
type Queue struct {
	cmdCh chan any

	closedFlag *atomicBool
	metrics    MetricsPolicy
	state      *stateSnapshot
	running    *atomicPtrSlice

	autoID atomic.Uint64
}

// New constructs a Queue from the given options, starting its scheduler
// goroutine immediately. The queue begins accepting Add calls right
// away; whether it also begins admitting them depends on AutoStart
// (WithPaused to start paused).
func New(opts ...Option) (*Queue, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	o.fillDefaults()
	if err := o.validate(); err != nil {
		return nil, err
	}

	logger := loggerFromContext(o.LogContext)
	state := newStateSnapshot()
	running := newAtomicPtrSlice()
	l := newLoop(o, logger, state, running)

	q := &Queue{
		cmdCh:      l.cmdCh,
		closedFlag: &atomicBool{},
		metrics:    o.Metrics,
		state:      state,
		running:    running,
	}
	go l.run(q.closedFlag, make(chan struct{}))
	return q, nil
}

func (q *Queue) nextAutoID() ID {
	n := q.autoID.Add(1)
	return ID("task-" + strconv.FormatUint(n, 10))
}

// Add submits a plain error-returning function. Prefer the generic
// Add[T] function when the task produces a value.
func (q *Queue) Add(fn func(ctx context.Context) error, opts ...TaskOption) ID {
	_, id := Add(q, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return id
}

// AddAll submits every function in fns with the same TaskOption set.
func (q *Queue) AddAll(fns []func(ctx context.Context) error, opts ...TaskOption) []ID {
	ids := make([]ID, len(fns))
	for i, fn := range fns {
		ids[i] = q.Add(fn, opts...)
	}
	return ids
}

// Start resumes admission after Pause, or begins it for a queue
// constructed with WithPaused.
func (q *Queue) Start() { q.cmdCh <- cmdStart{} }

// Pause stops admitting new tasks. Tasks already running continue to
// completion.
func (q *Queue) Pause() { q.cmdCh <- cmdPause{} }

// IsPaused reports whether the queue is currently paused.
func (q *Queue) IsPaused() bool { return q.state.load().Paused }

// Clear discards every waiting task without running it. Tasks already
// running are unaffected. Waiting tasks' futures are not resolved or
// rejected; they are simply abandoned.
func (q *Queue) Clear() { q.cmdCh <- cmdClear{} }

// SetPriority relocates a still-waiting task to a new priority. It
// returns ErrNotFound if id names no waiting task (already running,
// already finished, or never existed), or ErrClosed once the queue has
// been shut down.
func (q *Queue) SetPriority(id ID, priority int) error {
	if q.closedFlag.load() {
		return ErrClosed
	}
	resp := make(chan error, 1)
	q.cmdCh <- cmdSetPriority{id: id, prio: priority, resp: resp}
	return <-resp
}

// Concurrency reports the current concurrency cap.
func (q *Queue) Concurrency() int { return q.state.load().Concurrency }

// SetConcurrency changes the maximum number of simultaneously running
// tasks. n must be >= 1; use a very large n to approximate "unlimited".
// Returns ErrClosed once the queue has been shut down.
func (q *Queue) SetConcurrency(n int) error {
	if q.closedFlag.load() {
		return ErrClosed
	}
	resp := make(chan error, 1)
	q.cmdCh <- cmdSetConcurrency{n: n, resp: resp}
	return <-resp
}

// Timeout reports the queue-wide default per-task timeout. Zero means
// tasks run with no default timeout.
func (q *Queue) Timeout() time.Duration { return q.state.load().Timeout }

// SetTimeout changes the queue-wide default per-task timeout. d == 0
// means "no default timeout"; d must not be negative. Returns
// ErrClosed once the queue has been shut down.
func (q *Queue) SetTimeout(d time.Duration) error {
	if q.closedFlag.load() {
		return ErrClosed
	}
	resp := make(chan error, 1)
	q.cmdCh <- cmdSetTimeout{d: d, resp: resp}
	return <-resp
}

// Size reports the number of tasks currently waiting to run.
func (q *Queue) Size() int { return q.state.load().Size }

// Pending reports the number of tasks currently running.
func (q *Queue) Pending() int { return q.state.load().Pending }

// SizeBy reports the number of waiting tasks matching pred. Returns 0
// once the queue has been shut down.
func (q *Queue) SizeBy(pred func(TaskInfo) bool) int {
	if q.closedFlag.load() {
		return 0
	}
	resp := make(chan int, 1)
	q.cmdCh <- cmdFilter{pred: pred, resp: resp}
	return <-resp
}

// IsRateLimited reports whether the queue is currently withholding
// admission purely because of its rate limiter.
func (q *Queue) IsRateLimited() bool { return q.state.load().RateLimited }

// IsSaturated reports whether a waiting task exists that cannot be
// started right now, because of either the concurrency cap or the rate
// limiter.
func (q *Queue) IsSaturated() bool { return q.state.load().Saturated }

// RunningTasks returns a snapshot of the tasks currently executing.
func (q *Queue) RunningTasks() []RunningTask { return q.running.load() }

// Stats returns the most recently published Snapshot, combining the
// always-on core state with the executed-task count from the queue's
// MetricsPolicy.
func (q *Queue) Stats() Snapshot {
	s := q.state.load()
	s.Executed = q.metrics.ExecutedCount()
	return s
}

// Events subscribes to the queue's event stream. buf sizes the per-
// subscriber buffer; once full, the oldest buffered event is dropped
// rather than blocking the scheduler. Call the returned cancel function
// to unsubscribe. Once the queue has been shut down, Events returns an
// already-closed channel and a no-op cancel function.
func (q *Queue) Events(buf int) (<-chan Event, func()) {
	if q.closedFlag.load() {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	resp := make(chan subscribeResult, 1)
	q.cmdCh <- cmdSubscribeEvents{buf: buf, resp: resp}
	res := <-resp
	return res.ch, func() { q.cmdCh <- cmdUnsubscribeEvents{token: res.token} }
}

// Shutdown stops accepting new tasks and waits for every running task
// to finish, or for ctx to be done, whichever comes first. It never
// discards waiting tasks itself; call Clear first if that's wanted.
// The returned error aggregates (via multierr) anything that kept
// shutdown from completing cleanly.
func (q *Queue) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	q.cmdCh <- cmdShutdown{req: &shutdownRequest{ctx: ctx, done: done}}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		snap := q.state.load()
		return multierr.Combine(
			ctx.Err(),
			errors.New("taskqueue: queue still had tasks in flight when the shutdown deadline passed: pending="+strconv.Itoa(snap.Pending)+" waiting="+strconv.Itoa(snap.Size)),
		)
	}
}
