package taskqueue

import (
	"context"
	"math"
	"time"
)

// Unlimited is the sentinel accepted by WithConcurrency and
// WithIntervalCap to mean "+infinity", no cap at all.
const Unlimited = 0

// Options configure a Queue. Construct the zero value's effective
// defaults via the With* functions passed to New; never set fields on a
// bare Options directly; validation and default-filling both run inside
// New.
type Options struct {
	Concurrency int // 0 (Unlimited) means no concurrency cap

	AutoStart bool

	IntervalCap            int // 0 (Unlimited) means no rate cap
	Interval               time.Duration
	CarryoverIntervalCount bool
	Strict                 bool

	Timeout time.Duration // 0 means no default per-task timeout

	QueueClass QueueFactory

	Metrics MetricsPolicy

	RetryPolicy *RetryPolicy

	LogContext context.Context
}

// Option mutates an in-construction Options value.
type Option func(*Options)

// WithConcurrency sets the maximum number of tasks running simultaneously.
// Pass Unlimited (or a negative value) for no cap.
func WithConcurrency(n int) Option {
	return func(o *Options) { o.Concurrency = n }
}

// WithPaused starts the queue in the Paused state; the caller must call
// Start to begin admitting tasks.
func WithPaused() Option {
	return func(o *Options) { o.AutoStart = false }
}

// WithIntervalCap sets the maximum number of admissions per Interval.
func WithIntervalCap(n int) Option {
	return func(o *Options) { o.IntervalCap = n }
}

// WithInterval sets the rate-limit window length. Interval == 0 disables
// rate limiting regardless of IntervalCap.
func WithInterval(d time.Duration) Option {
	return func(o *Options) { o.Interval = d }
}

// WithCarryoverIntervalCount makes the next fixed window begin with its
// admission count equal to the current pending count, rather than 0.
func WithCarryoverIntervalCount(b bool) Option {
	return func(o *Options) { o.CarryoverIntervalCount = b }
}

// WithStrict switches the rate limiter to sliding-window ("strict") mode.
// Requires a positive finite Interval and a finite IntervalCap.
func WithStrict() Option {
	return func(o *Options) { o.Strict = true }
}

// WithDefaultTimeout sets the queue-wide per-task timeout used when a
// task does not specify its own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithQueueClass installs an alternative waiting-queue implementation.
// The default is the built-in stable priority heap.
func WithQueueClass(f QueueFactory) Option {
	return func(o *Options) { o.QueueClass = f }
}

// WithMetrics installs a MetricsPolicy. The default is an atomic,
// lock-free implementation; pass a NoopMetrics for zero overhead.
func WithMetrics(m MetricsPolicy) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithDefaultRetryPolicy sets the queue-wide retry policy applied to a
// task's TaskFailure (never to Timeout or Cancelled) when the task does
// not specify its own. The default policy makes exactly one attempt.
func WithDefaultRetryPolicy(rp RetryPolicy) Option {
	return func(o *Options) { o.RetryPolicy = &rp }
}

// WithLogContext supplies the context.Context from which the queue's
// logger is resolved via zlog.FromContext. Defaults to
// context.Background().
func WithLogContext(ctx context.Context) Option {
	return func(o *Options) { o.LogContext = ctx }
}

func defaultOptions() *Options {
	return &Options{
		Concurrency: Unlimited,
		AutoStart:   true,
		IntervalCap: Unlimited,
		Interval:    0,
		Timeout:     0,
		RetryPolicy: &RetryPolicy{Attempts: 1},
		LogContext:  context.Background(),
	}
}

// fillDefaults replaces any option left at its zero value with the
// package default.
func (o *Options) fillDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = math.MaxInt
	}
	if o.IntervalCap <= 0 {
		o.IntervalCap = math.MaxInt
	}
	if o.QueueClass == nil {
		o.QueueClass = newPriorityQueue
	}
	if o.Metrics == nil {
		o.Metrics = newAtomicMetrics()
	}
	if o.RetryPolicy == nil {
		o.RetryPolicy = &RetryPolicy{Attempts: 1}
	}
	if o.RetryPolicy.Attempts <= 0 {
		o.RetryPolicy.Attempts = 1
	}
	if o.LogContext == nil {
		o.LogContext = context.Background()
	}
}

// validate checks the construction invariants and returns a
// *ConfigurationError describing the first violation found.
func (o *Options) validate() error {
	if o.Interval < 0 {
		return newConfigErr("interval", "must be >= 0")
	}
	if o.Strict {
		if o.Interval <= 0 {
			return newConfigErr("strict", "requires interval > 0")
		}
		if o.IntervalCap <= 0 || o.IntervalCap == math.MaxInt {
			return newConfigErr("strict", "requires a finite intervalCap")
		}
	}
	if o.Timeout < 0 {
		return newConfigErr("timeout", "must be a positive finite duration")
	}
	return nil
}
