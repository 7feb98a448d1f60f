package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
	lg "github.com/Andrej220/go-utils/zlog"
)

// startTask admits e: it builds the task's context (cancel token plus
// optional timeout), records it as running, and hands the actual call to
// a dedicated goroutine. Only the scheduler goroutine calls startTask;
// the spawned goroutine reports back over l.cmdCh like everything else,
// so the finish is itself processed in strict receive order.
func (l *loop) startTask(e *entry) {
	timeout := l.timeout
	hasTimeout := timeout > 0
	if e.hasTimeout {
		timeout = e.timeout
		hasTimeout = timeout > 0
	}

	base := e.cancelToken
	if base == nil {
		base = context.Background()
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if hasTimeout {
		ctx, cancel = context.WithTimeoutCause(base, timeout, ErrTimeout)
	} else {
		ctx, cancel = context.WithCancel(base)
	}

	l.running[e.id] = &RunningTask{
		ID:        e.id,
		Priority:  e.priority,
		StartedAt: time.Now(),
		Timeout:   timeout,
	}
	l.pending++

	def := *l.opts.RetryPolicy
	policy := def
	if e.retry != nil {
		policy = e.retry.resolve(def)
	}

	logger := l.logger
	cmdCh := l.cmdCh
	fn := e.run
	id := e.id
	fut := e.future

	go func() {
		defer cancel()
		val, err := runWithRetry(ctx, fn, policy, logger, id)
		cmdCh <- cmdTaskFinished{id: id, value: val, err: err, fut: fut}
	}()
}

// handleTaskFinished settles the task's future and emits its terminal
// event. Once that per-task completed/error event is on the wire it
// also emits next, to signal a scheduling slot is free, and, once the
// last in-flight task drains, pending-zero.
func (l *loop) handleTaskFinished(cmd cmdTaskFinished) {
	delete(l.running, cmd.id)
	l.pending--
	l.metrics.IncExecuted()
	if cmd.err != nil {
		cmd.fut.reject(cmd.err)
		l.logger.Info("task failed", lg.String("id", string(cmd.id)), lg.Any("error", cmd.err))
		l.emit(Event{Kind: EventError, ID: cmd.id, Err: cmd.err})
	} else {
		cmd.fut.resolve(cmd.value)
		l.logger.Info("task completed", lg.String("id", string(cmd.id)))
		l.emit(Event{Kind: EventCompleted, ID: cmd.id, Value: cmd.value})
	}
	l.emit(Event{Kind: EventNext, ID: cmd.id})
	if l.pending == 0 {
		l.emit(Event{Kind: EventPendingZero})
	}
}

// runWithRetry runs fn under pol's attempt/backoff policy, returning its
// value on the first success. Context cancellation or timeout aborts
// the backoff loop immediately rather than being retried.
func runWithRetry(ctx context.Context, fn Func, pol RetryPolicy, logger lg.ZLogger, id ID) (any, error) {
	bo := boff.New(pol.Initial, pol.Max, time.Now().UnixNano())

	var lastErr error
	for attempt := 1; attempt <= pol.Attempts; attempt++ {
		val, err := callSafely(ctx, fn)
		if err == nil {
			return val, nil
		}
		if cerr := ctxTerminalError(ctx); cerr != nil {
			return nil, cerr
		}
		lastErr = err
		if attempt == pol.Attempts {
			logger.Error("task failed",
				lg.String("id", string(id)),
				lg.Int("attempt", attempt),
				lg.Any("error", err))
			return nil, &TaskFailure{Err: lastErr}
		}

		delay := bo.Next()
		logger.Warn("task attempt failed; backing off",
			lg.String("id", string(id)),
			lg.Int("attempt", attempt),
			lg.String("sleep", delay.String()),
			lg.Any("error", err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return nil, ctxTerminalError(ctx)
		}
	}
	return nil, &TaskFailure{Err: lastErr}
}

// ctxTerminalError classifies why ctx is done, distinguishing a
// deadline (the task's own or the queue-wide default timeout) from an
// externally cancelled cancel token.
func ctxTerminalError(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if errors.Is(context.Cause(ctx), ErrTimeout) {
		return ErrTimeout
	}
	return &CancelledError{Reason: context.Cause(ctx)}
}

// callSafely recovers a panicking task body into a TaskFailure-eligible
// error instead of taking down the scheduler goroutine's caller.
func callSafely(ctx context.Context, fn Func) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("taskqueue: task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// ---------------------------------------------------------------------------
// Public submission API
// ---------------------------------------------------------------------------

// Add submits fn for execution and returns a typed Future plus the id
// assigned to the task (auto-assigned unless WithTaskID was given).
func Add[T any](q *Queue, fn func(ctx context.Context) (T, error), opts ...TaskOption) (*Future[T], ID) {
	return addFunc[T](q, func(ctx context.Context) (any, error) { return fn(ctx) }, opts...)
}

// AddAll submits every function in fns with the same TaskOption set,
// returning a future and id per function in the same order.
func AddAll[T any](q *Queue, fns []func(ctx context.Context) (T, error), opts ...TaskOption) ([]*Future[T], []ID) {
	futures := make([]*Future[T], len(fns))
	ids := make([]ID, len(fns))
	for i, fn := range fns {
		futures[i], ids[i] = Add(q, fn, opts...)
	}
	return futures, ids
}

func addFunc[T any](q *Queue, fn Func, opts ...TaskOption) (*Future[T], ID) {
	var to TaskOptions
	for _, opt := range opts {
		opt(&to)
	}
	id := to.ID
	if id == "" {
		id = q.nextAutoID()
	}
	e := &entry{
		id:          id,
		priority:    to.Priority,
		run:         fn,
		timeout:     to.Timeout,
		hasTimeout:  to.HasTimeout,
		cancelToken: to.CancelToken,
		retry:       to.Retry,
		future:      newRawFuture(),
		heapIndex:   -1,
	}
	if q.closedFlag.load() {
		e.future.reject(ErrClosed)
		return &Future[T]{raw: e.future, id: id}, id
	}
	q.cmdCh <- cmdAdd{e: e}
	return &Future[T]{raw: e.future, id: id}, id
}
