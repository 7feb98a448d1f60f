package taskqueue

import (
	"context"
	"time"
)

// ID identifies a task. User-supplied ids are taken verbatim; an
// omitted id is auto-assigned from the queue's internal counter and is
// always returned from Add so callers can target it with SetPriority
// later.
type ID string

// Func is the function a submitted task executes. It receives the
// task's cancel token (an ordinary context.Context) and produces a
// value or an error. The engine itself is untyped (Func returns any);
// Add[T] below provides a generic, type-safe call site on top of it.
type Func func(ctx context.Context) (any, error)

// TaskOptions are the per-task overrides accepted by Add.
type TaskOptions struct {
	// Priority controls admission order; higher runs earlier. Default 0.
	Priority int

	// ID names the task. If empty, one is auto-assigned.
	ID ID

	// Timeout overrides the queue's default timeout for this task.
	Timeout time.Duration

	// HasTimeout distinguishes "no timeout for this task" from "inherit
	// the queue default" when Timeout is left at its zero value. Set
	// through WithTaskTimeout, never by hand.
	HasTimeout bool

	// CancelToken is the context whose cancellation aborts the task: if
	// already Done before admission, the task never runs (rate-limit
	// consumption performed by the scheduler is rolled back); if it
	// cancels after admission, the function's ctx argument observes it
	// the normal way.
	CancelToken context.Context

	// Retry overrides the queue's default retry policy for this task.
	Retry *RetryPolicy
}

// TaskOption mutates TaskOptions, mirroring the queue-level Option idiom.
type TaskOption func(*TaskOptions)

// WithPriority sets a task's priority. Higher values are admitted first.
func WithPriority(p int) TaskOption {
	return func(o *TaskOptions) { o.Priority = p }
}

// WithTaskID assigns an explicit id to a task instead of auto-assigning
// one.
func WithTaskID(id ID) TaskOption {
	return func(o *TaskOptions) { o.ID = id }
}

// WithTaskTimeout overrides the queue's default timeout for one task.
func WithTaskTimeout(d time.Duration) TaskOption {
	return func(o *TaskOptions) { o.Timeout = d; o.HasTimeout = true }
}

// WithCancelToken supplies the cancel token (context.Context) a task
// honours.
func WithCancelToken(ctx context.Context) TaskOption {
	return func(o *TaskOptions) { o.CancelToken = ctx }
}

// WithTaskRetry overrides the queue's default retry policy for one task.
func WithTaskRetry(rp RetryPolicy) TaskOption {
	return func(o *TaskOptions) { o.Retry = &rp }
}

// RunningTask describes a task that has been admitted but not yet
// finished, as returned by Queue.RunningTasks.
type RunningTask struct {
	ID        ID
	Priority  int
	StartedAt time.Time
	Timeout   time.Duration
}

// TaskInfo is the read-only view of a waiting entry passed to the
// predicate given to Queue.SizeBy.
type TaskInfo struct {
	ID       ID
	Priority int
}

// entry is the internal record held by the waiting priority queue. It
// is created on Add and destroyed either on admission (it becomes a
// running task, tracked separately) or on pre-start abort.
type entry struct {
	id       ID
	priority int
	seq      uint64 // insertion order, for stable ties

	run Func

	timeout     time.Duration
	hasTimeout  bool
	cancelToken context.Context
	retry       *RetryPolicy

	future *rawFuture

	// heapIndex is maintained by container/heap; -1 when not in the heap.
	heapIndex int
}
