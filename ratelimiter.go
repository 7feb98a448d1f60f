package taskqueue

import (
	"math"
	"time"
)

// rateLimiter is consulted by the scheduler on every admission attempt.
// It decides whether an admission is currently permitted and, if not,
// how long the scheduler should wait before asking again.
//
// Only the scheduler goroutine touches a rateLimiter; like the priority
// queue, it needs no lock of its own.
type rateLimiter interface {
	// ignored reports whether rate limiting is configured off entirely
	// (Interval == 0 or IntervalCap == Unlimited).
	ignored() bool

	// isPausedAt reports whether an admission is blocked right now. When
	// it returns true, wait holds the duration the caller should arm a
	// resume timer for.
	isPausedAt(now time.Time, pending int) (paused bool, wait time.Duration)

	// consume records an admission at now.
	consume(now time.Time)

	// rollback undoes the most recent consume, used when a task aborts
	// before running (pre-start cancellation) so the slot it spent isn't
	// wasted.
	rollback()

	// count reports the number of admissions counted toward the current
	// window, used by the is-rate-limited predicate.
	count() int

	// cap reports the configured admission cap (Unlimited-sentinel-free:
	// always a concrete number once fillDefaults has run).
	cap() int

	// compact reclaims any bookkeeping no longer needed once the queue is
	// fully idle.
	compact()
}

// noLimiter is used whenever rate limiting is configured off. It never
// blocks and never records anything.
type noLimiter struct{}

func (noLimiter) ignored() bool { return true }
func (noLimiter) isPausedAt(time.Time, int) (bool, time.Duration) {
	return false, 0
}
func (noLimiter) consume(time.Time) {}
func (noLimiter) rollback()         {}
func (noLimiter) count() int        { return 0 }
func (noLimiter) cap() int          { return 0 }
func (noLimiter) compact()          {}

func newRateLimiter(o *Options) rateLimiter {
	if o.Interval <= 0 || o.IntervalCap <= 0 || o.IntervalCap == math.MaxInt {
		return noLimiter{}
	}
	if o.Strict {
		return newStrictLimiter(o.Interval, o.IntervalCap)
	}
	return newFixedWindowLimiter(o.Interval, o.IntervalCap, o.CarryoverIntervalCount)
}

// ---------------------------------------------------------------------------
// Fixed window
// ---------------------------------------------------------------------------

// fixedWindowLimiter resets its admission count at fixed interval
// boundaries: at most intCap admissions per interval-long window,
// counted since the window last reset.
type fixedWindowLimiter struct {
	interval  time.Duration
	intCap    int
	carryover bool

	intervalCount     int
	intervalEnd       time.Time
	lastExecutionTime time.Time
	hasLastExecution  bool
	windowTimerArmed  bool

	// state before the most recent consume, restored by rollback
	prevIntervalEnd       time.Time
	prevLastExecutionTime time.Time
	prevHasLastExecution  bool
}

func newFixedWindowLimiter(interval time.Duration, intervalCap int, carryover bool) *fixedWindowLimiter {
	return &fixedWindowLimiter{interval: interval, intCap: intervalCap, carryover: carryover}
}

func (l *fixedWindowLimiter) ignored() bool { return false }

func (l *fixedWindowLimiter) isPausedAt(now time.Time, pending int) (bool, time.Duration) {
	if l.windowTimerArmed {
		if l.intervalCount < l.intCap {
			return false, 0
		}
		// Window timer already owns waking the scheduler; wait only
		// for however long is left until it fires, not a fresh interval.
		wait := l.intervalEnd.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return true, wait
	}
	if !l.intervalEnd.IsZero() && l.intervalEnd.After(now) {
		return true, l.intervalEnd.Sub(now)
	}
	if l.hasLastExecution {
		if spacing := l.interval - now.Sub(l.lastExecutionTime); spacing > 0 {
			return true, spacing
		}
	}
	if l.carryover {
		l.intervalCount = pending
	} else {
		l.intervalCount = 0
	}
	l.intervalEnd = time.Time{}
	return false, 0
}

func (l *fixedWindowLimiter) consume(now time.Time) {
	l.prevIntervalEnd, l.prevLastExecutionTime, l.prevHasLastExecution = l.intervalEnd, l.lastExecutionTime, l.hasLastExecution
	l.intervalCount++
	l.lastExecutionTime = now
	l.hasLastExecution = true
	if l.intervalEnd.IsZero() {
		l.intervalEnd = now.Add(l.interval)
	}
}

func (l *fixedWindowLimiter) rollback() {
	if l.intervalCount > 0 {
		l.intervalCount--
	}
	l.intervalEnd, l.lastExecutionTime, l.hasLastExecution = l.prevIntervalEnd, l.prevLastExecutionTime, l.prevHasLastExecution
}

func (l *fixedWindowLimiter) count() int { return l.intervalCount }
func (l *fixedWindowLimiter) cap() int   { return l.intCap }

// armWindowTimer/clearWindowTimer are driven by the scheduler, which owns
// the actual time.Timer; the limiter only tracks whether one is armed so
// isPausedAt can tell the "no timer yet" branches apart from the
// "timer already running" branch.
func (l *fixedWindowLimiter) armWindowTimer()   { l.windowTimerArmed = true }
func (l *fixedWindowLimiter) clearWindowTimer() { l.windowTimerArmed = false }

// resetForTick is called by the scheduler when the window timer fires,
// starting the next window's count at either 0 or the current pending
// count, per CarryoverIntervalCount.
func (l *fixedWindowLimiter) resetForTick(pending int) {
	if l.carryover {
		l.intervalCount = pending
	} else {
		l.intervalCount = 0
	}
	l.intervalEnd = time.Time{}
}

func (l *fixedWindowLimiter) compact() {}

// ---------------------------------------------------------------------------
// Strict (sliding window)
// ---------------------------------------------------------------------------

const strictCompactThreshold = 256

// strictLimiter enforces the cap over any rolling interval-length window
// by keeping a timestamp per admission in a circular buffer. The
// buffer's start index advances on eviction and the backing slice is
// periodically compacted rather than shifted on every eviction.
type strictLimiter struct {
	interval time.Duration
	intCap   int

	ticks []time.Time
	start int
}

func newStrictLimiter(interval time.Duration, intervalCap int) *strictLimiter {
	return &strictLimiter{interval: interval, intCap: intervalCap}
}

func (l *strictLimiter) ignored() bool { return false }

func (l *strictLimiter) evict(now time.Time) {
	cutoff := now.Add(-l.interval)
	for l.start < len(l.ticks) && !l.ticks[l.start].After(cutoff) {
		l.start++
	}
	l.maybeCompact()
}

func (l *strictLimiter) maybeCompact() {
	if l.start == 0 {
		return
	}
	if l.start >= len(l.ticks) {
		l.ticks = l.ticks[:0]
		l.start = 0
		return
	}
	if l.start > strictCompactThreshold && l.start*2 > len(l.ticks) {
		l.ticks = append([]time.Time(nil), l.ticks[l.start:]...)
		l.start = 0
	}
}

func (l *strictLimiter) isPausedAt(now time.Time, _ int) (bool, time.Duration) {
	l.evict(now)
	live := len(l.ticks) - l.start
	if live < l.intCap {
		return false, 0
	}
	oldest := l.ticks[l.start]
	wait := l.interval - now.Sub(oldest)
	if wait < 0 {
		wait = 0
	}
	return true, wait
}

func (l *strictLimiter) consume(now time.Time) {
	l.ticks = append(l.ticks, now)
}

func (l *strictLimiter) rollback() {
	if len(l.ticks) > l.start {
		l.ticks = l.ticks[:len(l.ticks)-1]
	}
}

func (l *strictLimiter) count() int {
	return len(l.ticks) - l.start
}

func (l *strictLimiter) cap() int { return l.intCap }

func (l *strictLimiter) compact() {
	l.evict(time.Now())
	if len(l.ticks) == l.start {
		l.ticks = l.ticks[:0]
		l.start = 0
	}
}
