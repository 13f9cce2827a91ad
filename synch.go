package synch

import (
	"sort"

	"github.com/dijkstracula/go-synch/internal/diagnostic"
	"github.com/dijkstracula/go-synch/sched"
)

// Semaphore is a nonnegative counter with a priority-ordered wait set.
// Down/TryDown/Up are the only three operations; everything else
// (Lock, ConditionVariable) is built out of these.
//
// Invariant: Value() == 0 whenever a Down call is parked waiting on it:
// the counter and the waiter set are never both nonzero/nonempty at rest.
type Semaphore struct {
	sched   *sched.Scheduler
	value   uint
	waiters []*sched.Thread
}

// NewSemaphore returns an initialized Semaphore with the given starting
// value, which may be any nonnegative count (not just 0 or 1).
func NewSemaphore(s *sched.Scheduler, value uint) *Semaphore {
	sem := &Semaphore{}
	sem.Init(s, value)
	return sem
}

// Init (re)initializes sem to value with an empty wait set.
func (sem *Semaphore) Init(s *sched.Scheduler, value uint) {
	if sem == nil {
		diagnostic.Abort("sema_init: nil semaphore")
	}
	if s == nil {
		diagnostic.Abort("sema_init: nil scheduler")
	}
	sem.sched = s
	sem.value = value
	sem.waiters = nil
}

// Down waits for sem's value to become positive and atomically
// decrements it. It must not be called from interrupt context: it may
// block, and blocking handlers don't make sense on this kernel.
func (sem *Semaphore) Down(t *sched.Thread) {
	if sem == nil {
		diagnostic.Abort("sema_down: nil semaphore")
	}
	if sem.sched.InInterruptContext() {
		diagnostic.Abort("sema_down: called from interrupt context")
	}

	restore := sem.sched.Disable()
	defer restore()

	for sem.value == 0 {
		sem.waiters = append(sem.waiters, t)
		sortByPriorityDesc(sem.waiters)
		sem.sched.Block(t)
	}
	sem.value--
}

// TryDown decrements sem's value and returns true if it was positive,
// otherwise returns false without blocking. Safe to call from interrupt
// context.
func (sem *Semaphore) TryDown() bool {
	if sem == nil {
		diagnostic.Abort("sema_try_down: nil semaphore")
	}

	restore := sem.sched.Disable()
	defer restore()

	if sem.value > 0 {
		sem.value--
		return true
	}
	return false
}

// Up increments sem's value and, if any thread is waiting, wakes the one
// with the highest current priority — priorities may have shifted via
// donation since they started waiting, so the wait set is re-sorted
// before the pop. t is the calling thread, used only for the mandatory
// preemption check afterward. Safe to call from interrupt context.
func (sem *Semaphore) Up(t *sched.Thread) {
	if sem == nil {
		diagnostic.Abort("sema_up: nil semaphore")
	}

	restore := sem.sched.Disable()
	defer restore()

	if len(sem.waiters) > 0 {
		sortByPriorityDesc(sem.waiters)
		w := sem.waiters[0]
		sem.waiters = sem.waiters[1:]
		sem.sched.Unblock(w)
	}
	sem.value++
	// Unconditional, even when no waiter existed: harmless, if wasteful,
	// on the no-waiter path, and keeps the preemption check in one place
	// rather than conditioned on whether anyone happened to be waiting.
	sem.sched.Preempt(t)
}

// Value returns sem's current counter value. Exposed for debugging and
// test assertions only; nothing in this package relies on reading it
// outside a Disable() section.
func (sem *Semaphore) Value() uint {
	restore := sem.sched.Disable()
	defer restore()
	return sem.value
}

// sortByPriorityDesc re-sorts a waiter slice by descending thread
// priority, stable so that threads of equal priority keep the relative
// order they were inserted in rather than an arbitrary one. O(n log n)
// per call; the wait sets involved are never large, and donations can
// reorder them arbitrarily between one wake and the next, so there is
// no cheaper correct alternative to resorting at every dequeue.
func sortByPriorityDesc(waiters []*sched.Thread) {
	sort.SliceStable(waiters, func(i, j int) bool {
		return waiters[i].Priority > waiters[j].Priority
	})
}
