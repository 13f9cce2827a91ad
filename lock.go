package synch

import (
	"github.com/dijkstracula/go-synch/internal/diagnostic"
	"github.com/dijkstracula/go-synch/sched"
)

// maxDonationDepth bounds the transitive donation walk in Acquire. The
// donation graph is acyclic by construction — a thread with no
// WaitOnLock is always a sink, and a single-CPU scheduler can never have
// both endpoints of a would-be cycle running at once — so a walk this
// deep is never reached in practice. The cap just keeps a programming
// error elsewhere from turning into a hang: past it, the walk stops.
const maxDonationDepth = 8

// Lock is a binary semaphore with a recorded holder and transitive
// priority donation. It is not reentrant: a thread that already holds a
// Lock must not try to acquire it again.
type Lock struct {
	sema   Semaphore
	holder *sched.Thread
}

// NewLock returns an initialized, unheld Lock.
func NewLock(s *sched.Scheduler) *Lock {
	l := &Lock{}
	l.Init(s)
	return l
}

// Init (re)initializes l as unheld, with its backing semaphore at 1.
func (l *Lock) Init(s *sched.Scheduler) {
	if l == nil {
		diagnostic.Abort("lock_init: nil lock")
	}
	l.holder = nil
	l.sema.Init(s, 1)
}

// Holder returns the thread currently holding l, or nil. It satisfies
// sched.Lock so a Thread's WaitOnLock field can reach back to its holder
// without sched importing this package.
func (l *Lock) Holder() *sched.Thread {
	return l.holder
}

// Acquire takes l, blocking until it becomes available. t must not
// already hold l. Unless the host scheduler's MLFQS mode is active, a
// contended acquire donates t's priority transitively through the chain
// of locks and holders blocking t's progress, and the donation is
// recorded by appending t to the current holder's Donors and setting
// t.WaitOnLock so Release can roll it back later.
func (l *Lock) Acquire(t *sched.Thread) {
	if l == nil {
		diagnostic.Abort("lock_acquire: nil lock")
	}
	if t == nil {
		diagnostic.Abort("lock_acquire: nil thread")
	}
	if l.sema.sched.InInterruptContext() {
		diagnostic.Abort("lock_acquire: called from interrupt context")
	}
	if l.HeldByCurrentThread(t) {
		diagnostic.Abort("lock_acquire: %s already holds this lock", t.Name)
	}

	if !l.sema.sched.MLFQSActive() {
		l.donate(t)
	}

	l.sema.Down(t)

	l.holder = t
	if !l.sema.sched.MLFQSActive() {
		t.WaitOnLock = nil
	}
}

// donate records t as a donor of l's current holder (if any) and walks
// the chain of locks each subsequent holder is itself waiting on,
// raising every thread's priority to at least t's, stopping as soon as a
// thread's priority already meets or exceeds t's (monotonic cutoff) or
// the chain reaches a thread that isn't waiting on anything.
func (l *Lock) donate(t *sched.Thread) {
	log := l.sema.sched.Log()

	restore := l.sema.sched.Disable()
	defer restore()

	holder := l.holder
	if holder == nil {
		return
	}

	holder.Donors = append(holder.Donors, t)
	t.WaitOnLock = l

	donated := t.Priority
	node := holder
	for depth := 0; depth < maxDonationDepth; depth++ {
		if node.Priority < donated {
			log.Debugw("priority donated", "from", t.Name, "to", node.Name, "priority", donated)
			node.Priority = donated
		}
		next := node.WaitOnLock
		if next == nil {
			break
		}
		nextHolder := next.Holder()
		if nextHolder == nil || nextHolder.Priority >= donated {
			break
		}
		node = nextHolder
	}
}

// TryAcquire takes l without blocking, returning true on success. It
// never donates. t must not already hold l.
func (l *Lock) TryAcquire(t *sched.Thread) bool {
	if l == nil {
		diagnostic.Abort("lock_try_acquire: nil lock")
	}
	if l.HeldByCurrentThread(t) {
		diagnostic.Abort("lock_try_acquire: %s already holds this lock", t.Name)
	}

	if l.sema.TryDown() {
		l.holder = t
		return true
	}
	return false
}

// Release releases l, which t must currently hold. Unless MLFQS is
// active, every donor waiting specifically on l is dropped from t's
// Donors, and t's priority is recomputed as the max of its own original
// priority and every remaining donor's priority.
func (l *Lock) Release(t *sched.Thread) {
	if l == nil {
		diagnostic.Abort("lock_release: nil lock")
	}
	if !l.HeldByCurrentThread(t) {
		diagnostic.Abort("lock_release: %s does not hold this lock", t.Name)
	}

	if !l.sema.sched.MLFQSActive() {
		restore := l.sema.sched.Disable()
		kept := t.Donors[:0]
		for _, d := range t.Donors {
			if d.WaitOnLock != l {
				kept = append(kept, d)
			}
		}
		t.Donors = kept

		priority := t.OriginalPriority
		for _, d := range t.Donors {
			if d.Priority > priority {
				priority = d.Priority
			}
		}
		t.Priority = priority
		restore()
	}

	l.holder = nil
	l.sema.Up(t)
}

// HeldByCurrentThread reports whether t holds l. Racy for any thread
// other than the one calling it about itself — same caveat as the
// source's lock_held_by_current_thread.
func (l *Lock) HeldByCurrentThread(t *sched.Thread) bool {
	return l.holder == t
}
