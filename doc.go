// Package taskqueue provides an in-process asynchronous task queue with
// priority scheduling, a concurrency cap, and interval-based rate limiting.
//
// Design goals
//
// The package is designed around the following principles:
//
//   - A single cooperative scheduler goroutine owns all mutable state,
//     the waiting queue, the rate limiter, the pending counter, every
//     timer, so none of it needs a lock.
//   - Task bodies run concurrently (one goroutine per admitted task) but
//     never touch queue state directly; they report back to the
//     scheduler over a channel.
//   - Cancellation is just context.Context: a task's cancel token is the
//     context passed to its function, honoured the same way any
//     well-behaved Go function honours ctx.Done().
//
// Architecture overview
//
// The queue is composed of four cooperating parts:
//
//  1. Priority queue (priority_queue.go)
//     A stable, binary-heap-ordered container of waiting tasks. Equal
//     priority dequeues in submission order. Supports in-place
//     re-prioritization by task id.
//
//  2. Rate limiter (ratelimiter.go)
//     Fixed-window or strict (sliding-window) admission control, answering
//     "is another admission allowed right now" and arming a resume timer
//     when the answer is no.
//
//  3. Scheduler (scheduler.go)
//     The single event-loop goroutine. Every state-changing operation,
//     submitting a task, pausing, clearing, changing concurrency, a timer
//     firing, a task finishing, is a value received on a channel and
//     processed to completion before the next one is read.
//
//  4. Task runner (runner.go)
//     Per-task execution: timeout race, cancellation race, optional
//     backoff-driven retry of failed (not timed-out, not cancelled)
//     attempts, and event emission.
//
// Ordering and fairness
//
// Admission order follows priority, then insertion order among equal
// priorities. The queue makes no promise about completion order: a
// low-priority task admitted first may still finish after a
// higher-priority task admitted later, if the two run concurrently.
//
// Rate limiting
//
// In fixed-window mode, at most IntervalCap tasks are admitted per
// Interval-long window, counted since the window last reset. In strict
// mode, at most IntervalCap tasks are admitted in any rolling
// Interval-long window, eliminating the boundary-burst pathology of fixed
// windows at the cost of storing one timestamp per admission.
//
// Intended use cases
//
// taskqueue is well suited for:
//
//   - Bounding concurrent work against an external API's rate limit
//   - Prioritized background job execution inside a single process
//   - Fan-out pipelines that need a concurrency ceiling without a
//     dedicated worker-pool topology
//
// It does not persist tasks, does not cross process boundaries, and does
// not itself perform I/O: callers supply the function, the queue only
// decides when to run it.
package taskqueue
