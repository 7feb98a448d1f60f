package taskqueue

import (
	"context"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
)

// loop is the single cooperative scheduler goroutine that owns every
// piece of mutable queue state: the waiting queue, the rate limiter,
// the pending counter, every timer, the waiter registry. Nothing else
// ever mutates this state directly; every operation, whether from the
// public API or from a finishing task, crosses in as a value on cmdCh
// and is processed to completion before the next one is read.
type loop struct {
	opts *Options
	q    SchedQueue

	limiter rateLimiter

	concurrency int
	timeout     time.Duration
	paused      bool
	closed      bool

	pending int
	running map[ID]*RunningTask

	windowTimer      *time.Timer
	resumeTimer      *time.Timer
	windowTimerFires <-chan time.Time
	resumeTimerFires <-chan time.Time

	rateLimited bool // last emitted is-rate-limited value, for coalescing
	wasEmpty    bool // last emitted is-empty value, for coalescing
	wasIdle     bool // last emitted is-idle value, for coalescing

	events  *emitter
	waiters []*waiter

	metrics MetricsPolicy
	state   *stateSnapshot
	logger  lg.ZLogger

	cmdCh chan any

	shutdown *shutdownRequest

	runningSnap *atomicPtrSlice // published running-tasks snapshot
}

func newLoop(o *Options, logger lg.ZLogger, state *stateSnapshot, runningSnap *atomicPtrSlice) *loop {
	return &loop{
		opts:        o,
		q:           o.QueueClass(),
		limiter:     newRateLimiter(o),
		concurrency: o.Concurrency,
		timeout:     o.Timeout,
		paused:      !o.AutoStart,
		running:     make(map[ID]*RunningTask),
		events:      newEmitter(),
		metrics:     o.Metrics,
		state:       state,
		logger:      logger,
		cmdCh:       make(chan any, 64),
		runningSnap: runningSnap,
	}
}

// ---------------------------------------------------------------------------
// Commands: every mutating operation crosses into the loop as a value,
// processed strictly in receive order.
// ---------------------------------------------------------------------------

type cmdAdd struct{ e *entry }

type cmdSetPriority struct {
	id   ID
	prio int
	resp chan error
}

type cmdPause struct{}
type cmdStart struct{}
type cmdClear struct{}

type cmdSetConcurrency struct {
	n    int
	resp chan error
}

type cmdSetTimeout struct {
	d    time.Duration
	resp chan error
}

type cmdFilter struct {
	pred func(TaskInfo) bool
	resp chan int
}

type cmdSubscribeEvents struct {
	buf  int
	resp chan subscribeResult
}

type cmdUnsubscribeEvents struct{ token int }

type cmdWaiter struct{ w *waiter }

type cmdTaskFinished struct {
	id    ID
	value any
	err   error
	fut   *rawFuture
}

type shutdownRequest struct {
	ctx  context.Context
	done chan struct{}
}

type cmdShutdown struct{ req *shutdownRequest }

type subscribeResult struct {
	ch    <-chan Event
	token int
}

// ---------------------------------------------------------------------------
// Main loop
// ---------------------------------------------------------------------------

func (l *loop) run(closedFlag *atomicBool, loopDone chan struct{}) {
	defer close(loopDone)
	l.publish()
	for {
		select {
		case c := <-l.cmdCh:
			l.handle(c, closedFlag)
		case <-l.windowTimerFires:
			l.onWindowTimerFired()
		case <-l.resumeTimerFires:
			l.onResumeTimerFired()
		}
		l.drain()
		l.recomputeRateLimited()
		l.checkWaiters()
		l.publish()
		if l.shutdown != nil && l.pending == 0 {
			l.finishShutdown()
			return
		}
	}
}

func (l *loop) handle(c any, closedFlag *atomicBool) {
	switch cmd := c.(type) {
	case cmdAdd:
		l.handleAdd(cmd.e)
	case cmdSetPriority:
		cmd.resp <- l.q.SetPriority(cmd.id, cmd.prio)
	case cmdPause:
		l.paused = true
		l.logger.Info("queue paused")
	case cmdStart:
		l.paused = false
		l.logger.Info("queue started")
	case cmdClear:
		l.handleClear()
	case cmdSetConcurrency:
		if cmd.n < 1 {
			cmd.resp <- newConfigErr("concurrency", "must be >= 1")
			return
		}
		l.concurrency = cmd.n
		cmd.resp <- nil
	case cmdSetTimeout:
		if cmd.d < 0 {
			cmd.resp <- newConfigErr("timeout", "must be a positive finite duration")
			return
		}
		l.timeout = cmd.d
		cmd.resp <- nil
	case cmdFilter:
		results := l.q.Filter(func(e *entry) bool {
			return cmd.pred(TaskInfo{ID: e.id, Priority: e.priority})
		})
		cmd.resp <- len(results)
	case cmdSubscribeEvents:
		ch, token := l.events.subscribe(cmd.buf)
		cmd.resp <- subscribeResult{ch: ch, token: token}
	case cmdUnsubscribeEvents:
		l.events.unsubscribe(cmd.token)
	case cmdWaiter:
		l.registerWaiter(cmd.w)
	case cmdTaskFinished:
		l.handleTaskFinished(cmd)
	case cmdShutdown:
		closedFlag.store(true)
		l.closed = true
		l.shutdown = cmd.req
	}
}

// handleAdd enqueues a task; the drain loop that runs right after handle
// returns decides whether it can be admitted immediately.
func (l *loop) handleAdd(e *entry) {
	if l.closed {
		e.future.reject(ErrClosed)
		return
	}
	l.q.Enqueue(e)
	l.emit(Event{Kind: EventAdd, ID: e.id})
}

// handleClear replaces the waiting queue with a fresh one. Running
// tasks and the strict limiter's tick history are untouched: Clear only
// discards what has not started yet. The resulting empty/idle
// transition, if any, and window/resume timer teardown are left to the
// drain pass that runs right after every handled command.
func (l *loop) handleClear() {
	dropped := l.q.Size()
	l.q = l.opts.QueueClass()
	l.logger.Info("queue cleared", lg.Int("dropped", dropped))
	l.emit(Event{Kind: EventNext})
}

// ---------------------------------------------------------------------------
// tryToStartAnother / drain
// ---------------------------------------------------------------------------

// tryToStartAnother is the queue's single core admission operation: it
// either admits exactly one waiting task or determines why it cannot,
// arming whatever timer will let it try again. empty/idle are only
// emitted on the transition into that state, never repeated on every
// drain pass while the queue stays empty or idle.
func (l *loop) tryToStartAnother() bool {
	if l.q.Size() == 0 {
		l.clearWindowTimer()
		if !l.wasEmpty {
			l.wasEmpty = true
			l.emit(Event{Kind: EventEmpty})
		}
		if l.pending == 0 {
			l.clearResumeTimer()
			l.limiter.compact()
			if !l.wasIdle {
				l.wasIdle = true
				l.emit(Event{Kind: EventIdle})
			}
		} else {
			l.wasIdle = false
		}
		return false
	}
	l.wasEmpty = false
	l.wasIdle = false
	if l.paused {
		return false
	}

	now := time.Now()
	if paused, wait := l.limiter.isPausedAt(now, l.pending); paused {
		l.armResumeTimer(wait)
		return false
	}

	if l.pending >= l.concurrency {
		return false
	}

	e, ok := l.q.Dequeue()
	if !ok {
		return false
	}
	if !l.limiter.ignored() {
		l.limiter.consume(now)
		if fw, isFW := l.limiter.(*fixedWindowLimiter); isFW && !fw.windowTimerArmed {
			fw.armWindowTimer()
			l.armWindowTimer(fw.interval)
		}
	}
	if e.cancelToken != nil && e.cancelToken.Err() != nil {
		// Pre-start cancellation: the slot this admission just consumed
		// from the rate limiter would otherwise be wasted on a task that
		// never runs.
		if !l.limiter.ignored() {
			l.limiter.rollback()
		}
		cerr := &CancelledError{Reason: context.Cause(e.cancelToken)}
		e.future.reject(cerr)
		l.logger.Info("task cancelled before start",
			lg.String("id", string(e.id)), lg.Any("reason", cerr.Reason))
		l.emit(Event{Kind: EventError, ID: e.id, Err: cerr})
		return true
	}
	l.emit(Event{Kind: EventActive, ID: e.id})
	l.logger.Info("task admitted", lg.String("id", string(e.id)), lg.Int("priority", e.priority))
	l.startTask(e)
	return true
}

func (l *loop) drain() {
	for l.tryToStartAnother() {
	}
}

// ---------------------------------------------------------------------------
// Timers
// ---------------------------------------------------------------------------

func (l *loop) armWindowTimer(d time.Duration) {
	if l.windowTimer == nil {
		l.windowTimer = time.NewTimer(d)
		l.windowTimerFires = l.windowTimer.C
		return
	}
	if !l.windowTimer.Stop() {
		select {
		case <-l.windowTimer.C:
		default:
		}
	}
	l.windowTimer.Reset(d)
}

func (l *loop) clearWindowTimer() {
	if l.windowTimer != nil {
		l.windowTimer.Stop()
		l.windowTimer = nil
		l.windowTimerFires = nil
	}
	if fw, ok := l.limiter.(*fixedWindowLimiter); ok {
		fw.clearWindowTimer()
	}
}

func (l *loop) armResumeTimer(d time.Duration) {
	if l.resumeTimer == nil {
		l.resumeTimer = time.NewTimer(d)
		l.resumeTimerFires = l.resumeTimer.C
		return
	}
	if !l.resumeTimer.Stop() {
		select {
		case <-l.resumeTimer.C:
		default:
		}
	}
	l.resumeTimer.Reset(d)
}

func (l *loop) clearResumeTimer() {
	if l.resumeTimer != nil {
		l.resumeTimer.Stop()
		l.resumeTimer = nil
		l.resumeTimerFires = nil
	}
}

func (l *loop) onWindowTimerFired() {
	fw, ok := l.limiter.(*fixedWindowLimiter)
	if !ok {
		l.clearWindowTimer()
		return
	}
	fw.resetForTick(l.pending)
	if l.q.Size() == 0 && l.pending == 0 {
		l.clearWindowTimer()
		return
	}
	l.windowTimer.Reset(fw.interval)
}

func (l *loop) onResumeTimerFired() {
	l.resumeTimer = nil
	l.resumeTimerFires = nil
}

// ---------------------------------------------------------------------------
// Rate-limit / saturation predicates
// ---------------------------------------------------------------------------

func (l *loop) isRateLimitedNow() bool {
	if l.limiter.ignored() {
		return false
	}
	return l.q.Size() > 0 && l.limiter.count() >= l.limiter.cap()
}

// recomputeRateLimited runs once per tick, after the tick's drain has
// settled, so a single admission/rejection does not flicker
// rate-limit/rate-limit-cleared back to back.
func (l *loop) recomputeRateLimited() {
	now := l.isRateLimitedNow()
	if now == l.rateLimited {
		return
	}
	l.rateLimited = now
	if now {
		l.logger.Info("queue rate-limited")
		l.emit(Event{Kind: EventRateLimit})
	} else {
		l.logger.Info("queue rate limit cleared")
		l.emit(Event{Kind: EventRateLimitCleared})
	}
}

func (l *loop) isSaturated() bool {
	size := l.q.Size()
	if l.pending == l.concurrency && size > 0 {
		return true
	}
	return l.rateLimited && size > 0
}

// publish pushes the current state snapshot and running-task list to
// the atomics external goroutines read from. This runs unconditionally
// on every tick, independent of the pluggable MetricsPolicy, so the
// core getters stay accurate even when MetricsPolicy is NoopMetrics.
func (l *loop) publish() {
	l.state.publish(Snapshot{
		Size:        l.q.Size(),
		Pending:     l.pending,
		Paused:      l.paused,
		RateLimited: l.rateLimited,
		Saturated:   l.isSaturated(),
		Concurrency: l.concurrency,
		Timeout:     l.timeout,
	})
	tasks := make([]RunningTask, 0, len(l.running))
	for _, rt := range l.running {
		tasks = append(tasks, *rt)
	}
	l.runningSnap.store(tasks)
}

func (l *loop) emit(ev Event) {
	l.events.emit(ev)
	if ev.Kind == EventError {
		l.fireErrorWaiters(ev.Err)
	}
}

func (l *loop) finishShutdown() {
	l.clearWindowTimer()
	l.clearResumeTimer()
	close(l.shutdown.done)
}
