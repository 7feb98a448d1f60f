package taskqueue

import "time"

const (
	defaultAttempts     = 1
	defaultInitialRetry = 100 * time.Millisecond
	defaultMaxRetry     = 2 * time.Second
)

// RetryPolicy describes how many times, and with what backoff, a task's
// function is re-invoked after a TaskFailure (never after a Timeout or a
// Cancelled). Zero fields of a task's own policy are filled from the
// queue's default policy (see resolve); for the queue default itself,
// fillDefaults only raises a non-positive Attempts to 1. The package
// default (Attempts: 1) performs no retry at all.
//
// A task may set its own RetryPolicy as an override of the queue-wide
// default, the same relationship a task's Timeout already has with the
// queue's default Timeout.
type RetryPolicy struct {
	// Attempts is the maximum number of tries for a task. 1 means "no
	// retry": the function runs once.
	Attempts int

	// Initial is the first backoff duration between attempts.
	Initial time.Duration

	// Max is the cap for backoff duration.
	Max time.Duration
}

// DefaultRetryPolicy returns the package's built-in retry policy for use
// as a WithDefaultRetryPolicy argument or in tests.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: defaultAttempts,
		Initial:  defaultInitialRetry,
		Max:      defaultMaxRetry,
	}
}

// resolve fills zero fields of a per-task override from the queue
// default.
func (rp RetryPolicy) resolve(def RetryPolicy) RetryPolicy {
	out := def
	if rp.Attempts > 0 {
		out.Attempts = rp.Attempts
	}
	if rp.Initial > 0 {
		out.Initial = rp.Initial
	}
	if rp.Max > 0 {
		out.Max = rp.Max
	}
	return out
}
