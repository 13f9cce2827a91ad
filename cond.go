package synch

import (
	"math"
	"sort"

	"github.com/dijkstracula/go-synch/internal/diagnostic"
	"github.com/dijkstracula/go-synch/sched"
)

// waiterToken is the ephemeral per-wait record cond_wait parks on: a
// private semaphore, initialized to 0, that exactly one thread waits on.
// It lives for the duration of a single Wait call.
type waiterToken struct {
	sema Semaphore
}

// ConditionVariable lets one thread signal a condition that other
// threads, holding the same lock, are waiting on. Signaling and waking
// are Mesa-style: not atomic with the signaler's release of the lock, so
// a woken waiter must re-check whatever predicate it was waiting on
// after Wait returns.
type ConditionVariable struct {
	sched   *sched.Scheduler
	waiters []*waiterToken
}

// NewConditionVariable returns an initialized, empty ConditionVariable.
func NewConditionVariable(s *sched.Scheduler) *ConditionVariable {
	c := &ConditionVariable{}
	c.Init(s)
	return c
}

// Init (re)initializes c with an empty wait set.
func (c *ConditionVariable) Init(s *sched.Scheduler) {
	if c == nil {
		diagnostic.Abort("cond_init: nil condition variable")
	}
	c.sched = s
	c.waiters = nil
}

// Wait atomically releases l and blocks until signaled, then reacquires
// l before returning. t must hold l.
func (c *ConditionVariable) Wait(t *sched.Thread, l *Lock) {
	if c == nil {
		diagnostic.Abort("cond_wait: nil condition variable")
	}
	if l == nil {
		diagnostic.Abort("cond_wait: nil lock")
	}
	if c.sched.InInterruptContext() {
		diagnostic.Abort("cond_wait: called from interrupt context")
	}
	if !l.HeldByCurrentThread(t) {
		diagnostic.Abort("cond_wait: %s does not hold the associated lock", t.Name)
	}

	w := &waiterToken{}
	w.sema.Init(c.sched, 0)

	restore := c.sched.Disable()
	c.waiters = append(c.waiters, w)
	restore()

	l.Release(t)
	w.sema.Down(t)
	l.Acquire(t)
}

// Signal wakes the single highest-priority waiter on c, if any. l must
// be held by t. Because donations may have changed priorities while
// threads were parked, the ordering is decided now, not at the moment
// each thread called Wait.
func (c *ConditionVariable) Signal(t *sched.Thread, l *Lock) {
	if c == nil {
		diagnostic.Abort("cond_signal: nil condition variable")
	}
	if l == nil {
		diagnostic.Abort("cond_signal: nil lock")
	}
	if !l.HeldByCurrentThread(t) {
		diagnostic.Abort("cond_signal: %s does not hold the associated lock", t.Name)
	}

	if len(c.waiters) == 0 {
		return
	}

	restore := c.sched.Disable()
	sort.SliceStable(c.waiters, func(i, j int) bool {
		return topWaiterPriority(c.waiters[i]) > topWaiterPriority(c.waiters[j])
	})
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	restore()

	w.sema.Up(t)
}

// Broadcast wakes every waiter on c, highest priority first. l must be
// held by t.
func (c *ConditionVariable) Broadcast(t *sched.Thread, l *Lock) {
	for len(c.waiters) > 0 {
		c.Signal(t, l)
	}
}

// topWaiterPriority is the priority of the single thread parked on w's
// semaphore, or the lowest possible priority if nothing is parked on it
// yet (which shouldn't happen for a token still in c.waiters, but keeps
// the comparator total). Reads w.sema.waiters directly rather than
// through Semaphore.Value/Disable: the caller already holds the
// scheduler's one critical-section mutex via c.sched.Disable(), and that
// mutex isn't reentrant.
func topWaiterPriority(w *waiterToken) int {
	if len(w.sema.waiters) == 0 {
		return math.MinInt
	}
	best := w.sema.waiters[0].Priority
	for _, waiter := range w.sema.waiters[1:] {
		if waiter.Priority > best {
			best = waiter.Priority
		}
	}
	return best
}
