// Package sched stands in for everything "below" the synchronization
// core: the ready-queue scheduler, interrupt masking, and the context
// switch. None of that is this project's subject — a real thread
// scheduler and interrupt controller are out of scope — but the core
// has to run on top of *something*, so this package gives it the
// thinnest environment that satisfies the downward interfaces the core
// calls into:
//
//	intr_disable / intr_set_level  -> Scheduler.Disable
//	intr_context                   -> Scheduler.InInterruptContext
//	thread_current                 -> Scheduler.Current (the core itself
//	                                   takes *Thread explicitly instead;
//	                                   see DESIGN.md)
//	thread_block                   -> Scheduler.Block
//	thread_unblock                 -> Scheduler.Unblock
//	thread_preemption               -> Scheduler.Preempt
//	mlfqs_active                   -> Scheduler.MLFQSActive
//
// A real kernel has one CPU and an arbitrary number of threads that may
// be running, ready, or blocked at any instant. Go has no equivalent of
// "only one goroutine executes at a time," so Scheduler enforces it
// explicitly with a single mutex and a resume channel per thread: a
// thread only proceeds past Block/Preempt/AwaitTurn once the scheduler
// hands it back the (single, simulated) CPU. This makes the donation and
// wakeup orderings deterministic enough to test.
package sched

import (
	"container/heap"
	"sync"

	"go.uber.org/zap"
)

// Scheduler is the simulated single-CPU, single-ready-queue environment
// the synchronization core runs against.
type Scheduler struct {
	mu               sync.Mutex
	ready            threadHeap
	current          *Thread
	mlfqsActive      bool
	interruptContext bool
	seqCounter       uint64
	log              *zap.SugaredLogger
}

// NewScheduler creates a scheduler with one running thread (standing in
// for the kernel's initial thread) and returns both.
//
// The scheduler logs nothing by default (log is a no-op logger); callers
// that want thread-state transitions logged install a real one with
// SetLogger.
func NewScheduler(mlfqsActive bool) (*Scheduler, *Thread) {
	s := &Scheduler{mlfqsActive: mlfqsActive, log: zap.NewNop().Sugar()}
	heap.Init(&s.ready)
	main := &Thread{
		Name:             "main",
		Priority:         31,
		OriginalPriority: 31,
		state:            StateRunning,
		resume:           make(chan struct{}, 1),
	}
	s.current = main
	return s, main
}

// Spawn registers a new thread in the ready queue. It may be called from
// any goroutine — typically a test or demo driver setting up a scenario.
// If the CPU happens to be idle (no current thread, e.g. every other
// thread is already parked), Spawn promotes it immediately; otherwise it
// only gets the CPU once a later Block/Unblock/Preempt/Finish transition
// hands it over. The goroutine meant to embody the thread should call
// AwaitTurn immediately after Spawn returns.
func (s *Scheduler) Spawn(name string, priority int) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seqCounter++
	t := &Thread{
		Name:             name,
		Priority:         priority,
		OriginalPriority: priority,
		state:            StateReady,
		resume:           make(chan struct{}, 1),
		seq:              s.seqCounter,
	}
	heap.Push(&s.ready, t)
	s.promote()
	return t
}

// AwaitTurn parks the calling goroutine until the scheduler has made t
// the current thread. Call once, right after Spawn.
//
// promote() may have already made t current and sent its resume token
// before this goroutine got a chance to run at all — a real race against
// the "go func(){...}()" that embodies t, not a logic bug — so the
// already-current case still drains the token rather than skipping it;
// otherwise it would sit in the channel and make some later, legitimate
// promote() of t panic against a full buffer.
func (s *Scheduler) AwaitTurn(t *Thread) {
	s.mu.Lock()
	if s.current == t {
		s.mu.Unlock()
		select {
		case <-t.resume:
		default:
		}
		return
	}
	s.mu.Unlock()
	<-t.resume
}

// Disable is the scoped substitute for intr_disable/intr_set_level: it
// takes the scheduler's sole mutual-exclusion primitive and returns a
// closure that restores it. Callers defer the restore immediately so it
// runs on every exit path, including a panic from diagnostic.Abort.
func (s *Scheduler) Disable() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

// InInterruptContext reports whether the scheduler is currently inside a
// simulated interrupt handler.
func (s *Scheduler) InInterruptContext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interruptContext
}

// SimulateInterrupt runs fn with the scheduler marked as being inside an
// interrupt handler, so that InInterruptContext-gated preconditions can be
// exercised in tests without a real interrupt vector.
func (s *Scheduler) SimulateInterrupt(fn func()) {
	s.mu.Lock()
	s.interruptContext = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.interruptContext = false
		s.mu.Unlock()
	}()
	fn()
}

// MLFQSActive reports whether the (unimplemented) multilevel feedback
// queue scheduler is active. When true, lock.go's donation logic is
// entirely skipped: a feedback-queue scheduler recomputes priorities on
// its own schedule and donation would just fight it.
func (s *Scheduler) MLFQSActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mlfqsActive
}

// SetMLFQSActive flips the MLFQS gate. Scenario setup only; the core
// never calls this itself.
func (s *Scheduler) SetMLFQSActive(v bool) {
	s.mu.Lock()
	s.mlfqsActive = v
	s.mu.Unlock()
}

// SetLogger installs l as the scheduler's diagnostic logger for
// thread-state transitions (block/unblock/preempt). Scenario setup only;
// a scheduler with no logger installed logs nothing.
func (s *Scheduler) SetLogger(l *zap.SugaredLogger) {
	s.mu.Lock()
	s.log = l
	s.mu.Unlock()
}

// Log returns the scheduler's current diagnostic logger, for lock.go's
// donation walk to log through without sched importing back up to the
// package that imports it.
func (s *Scheduler) Log() *zap.SugaredLogger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log
}

// Current returns the thread currently holding the simulated CPU. Racy by
// nature, like everything else that peeks at scheduler state from outside
// a Disable() section.
func (s *Scheduler) Current() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Block parks t: the caller must already hold the scheduler's
// interrupts-disabled section (via Disable). It briefly releases that
// section itself while the caller is off the CPU, re-acquiring it only
// once the caller is scheduled again.
func (s *Scheduler) Block(t *Thread) {
	s.log.Debugw("thread blocked", "name", t.Name, "priority", t.Priority)
	t.state = StateBlocked
	if s.current == t {
		s.current = nil
	}
	s.promote()
	s.mu.Unlock()
	<-t.resume
	s.mu.Lock()
}

// Unblock moves t from BLOCKED to READY and, if the CPU happens to be
// free, promotes it immediately. Caller must hold Disable().
func (s *Scheduler) Unblock(t *Thread) {
	s.log.Debugw("thread unblocked", "name", t.Name, "priority", t.Priority)
	t.state = StateReady
	heap.Push(&s.ready, t)
	s.promote()
}

// Preempt checks whether the ready queue's head now outranks t; if so, t
// gives up the CPU and parks until rescheduled. Caller must hold
// Disable(). Semaphore.Up calls this unconditionally after every up,
// even when no waiter existed, since the cost of a no-op check is
// negligible next to keeping the preemption point in one place. A
// harness may also call it directly to model an external scheduling
// event (a thread's creation, or a timer tick) forcing a reconsideration
// — the real timer and thread-creation machinery are out of scope here,
// but their *effect*, a reschedule check, is this same hook.
func (s *Scheduler) Preempt(t *Thread) {
	if s.ready.Len() == 0 || s.ready.Peek().Priority <= t.Priority {
		return
	}
	s.log.Debugw("thread preempted", "name", t.Name, "priority", t.Priority, "by", s.ready.Peek().Name)
	t.state = StateReady
	heap.Push(&s.ready, t)
	if s.current == t {
		s.current = nil
	}
	s.promote()
	s.mu.Unlock()
	<-t.resume
	s.mu.Lock()
}

// Yield unconditionally gives up the CPU to the next ready thread, if
// any, regardless of priority. It has no equivalent among the core's
// downward interfaces — Preempt only ever yields when outranked — but a
// deterministic harness needs some way to force a specific interleaving
// (e.g. letting a lower-priority thread actually reach a contended
// acquire) without waiting on a real timer tick, so it lives here as a
// test/demo-only scheduling primitive. The core package never calls it.
func (s *Scheduler) Yield(t *Thread) {
	s.mu.Lock()
	if s.ready.Len() == 0 {
		s.mu.Unlock()
		return
	}
	// Pop the next thread before requeuing t: t may outrank everything
	// else in the ready queue, and promote() would just hand the CPU
	// straight back to it, defeating the "unconditional" handoff.
	next := heap.Pop(&s.ready).(*Thread)
	t.state = StateReady
	heap.Push(&s.ready, t)
	if s.current == t {
		s.current = nil
	}
	next.state = StateRunning
	s.current = next
	select {
	case next.resume <- struct{}{}:
	default:
		panic("sched: thread already had a pending resume")
	}
	s.mu.Unlock()
	<-t.resume
}

// Finish retires t and hands the CPU to whichever ready thread is next in
// priority order, if any. Call once a thread's body has no more work.
func (s *Scheduler) Finish(t *Thread) {
	s.mu.Lock()
	t.state = StateExited
	if s.current == t {
		s.current = nil
	}
	s.promote()
	s.mu.Unlock()
}

// promote hands the CPU to the highest-priority ready thread, if the CPU
// is free and someone is waiting for it. Caller must hold s.mu.
func (s *Scheduler) promote() {
	if s.current != nil || s.ready.Len() == 0 {
		return
	}
	t := heap.Pop(&s.ready).(*Thread)
	t.state = StateRunning
	s.current = t
	select {
	case t.resume <- struct{}{}:
	default:
		panic("sched: thread already had a pending resume")
	}
}
