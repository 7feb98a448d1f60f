package taskqueue

import (
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time view of queue state, published by the
// scheduler after every state-changing event and read by Queue.Stats
// and the individual getters.
type Snapshot struct {
	Size        int
	Pending     int
	Paused      bool
	RateLimited bool
	Saturated   bool
	Executed    uint64
	Concurrency int
	Timeout     time.Duration
}

// stateSnapshot holds the queue's core observable state (size, pending,
// paused, rate-limited, saturated, concurrency, timeout). It is always
// present and updated by the scheduler regardless of which MetricsPolicy
// is installed, so Size/Pending/IsPaused/Concurrency/Timeout/
// IsRateLimited/IsSaturated stay accurate even under NoopMetrics; only
// the executed-task counter is what MetricsPolicy controls.
type stateSnapshot struct {
	v atomic.Pointer[Snapshot]
}

func newStateSnapshot() *stateSnapshot {
	s := &stateSnapshot{}
	s.v.Store(&Snapshot{})
	return s
}

func (s *stateSnapshot) publish(snap Snapshot) { s.v.Store(&snap) }
func (s *stateSnapshot) load() Snapshot        { return *s.v.Load() }

// MetricsPolicy tracks the number of tasks the queue has executed to
// completion. Implementations must be safe for concurrent use:
// IncExecuted is called only from the scheduler goroutine, but
// ExecutedCount may be read from any goroutine holding a *Queue.
type MetricsPolicy interface {
	// IncExecuted increments the completed-task counter.
	IncExecuted()

	// ExecutedCount returns the total number of tasks executed so far.
	ExecutedCount() uint64
}

// atomicMetrics is a lock-free MetricsPolicy backed by an atomic
// counter, the default installed by fillDefaults.
type atomicMetrics struct {
	executed atomic.Uint64
}

func newAtomicMetrics() *atomicMetrics { return &atomicMetrics{} }

func (m *atomicMetrics) IncExecuted() { m.executed.Add(1) }

func (m *atomicMetrics) ExecutedCount() uint64 { return m.executed.Load() }

// NoopMetrics discards the executed-task count entirely. Install it via
// WithMetrics when even that one atomic increment per task is
// unwanted; every other observable (Size, Pending, IsPaused, ...)
// keeps working normally, since it does not go through MetricsPolicy.
type NoopMetrics struct{}

func (NoopMetrics) IncExecuted()          {}
func (NoopMetrics) ExecutedCount() uint64 { return 0 }
