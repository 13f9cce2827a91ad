package synch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dijkstracula/go-synch/sched"
)

// Scenario 5: condition-variable wakeup is priority-ordered, not FIFO.
// W1 (10), W2 (30), and W3 (20) each take L and wait on C; a fourth
// thread takes L and signals three times. Expected wake order is W2,
// W3, W1 regardless of the order they called Wait in.
func TestConditionVariableSignalWakesHighestPriorityFirst(t *testing.T) {
	s, main := sched.NewScheduler(false)
	l := NewLock(s)
	c := NewConditionVariable(s)

	var mu sync.Mutex
	var order []string

	spawnWaiter := func(name string, priority int) chan struct{} {
		th := s.Spawn(name, priority)
		done := make(chan struct{})
		go func() {
			s.AwaitTurn(th)
			l.Acquire(th)
			c.Wait(th, l)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			l.Release(th)
			s.Finish(th)
			close(done)
		}()
		return done
	}

	d1 := spawnWaiter("W1", 10)
	d2 := spawnWaiter("W2", 30)
	d3 := spawnWaiter("W3", 20)

	// Hands off to the highest-priority waiter first; each one acquires
	// L, releases it inside Wait, and blocks on its own token in turn,
	// chaining through all three before the CPU goes idle again.
	s.Finish(main)

	// The signaller's own priority doesn't matter to the scenario, but it
	// must be lower than every waiter's so that spawning it can never
	// jump ahead of the W1/W2/W3 chain above, however the two happen to
	// interleave in real time.
	sig := s.Spawn("signaller", 1)
	sigDone := make(chan struct{})
	go func() {
		s.AwaitTurn(sig)
		l.Acquire(sig)
		c.Signal(sig, l)
		c.Signal(sig, l)
		c.Signal(sig, l)
		l.Release(sig)
		s.Finish(sig)
		close(sigDone)
	}()

	<-sigDone
	<-d1
	<-d2
	<-d3

	assert.Equal(t, []string{"W2", "W3", "W1"}, order)
}

func TestConditionVariableSignalOnEmptyWaitSetIsNoop(t *testing.T) {
	s, main := sched.NewScheduler(false)
	l := NewLock(s)
	c := NewConditionVariable(s)

	l.Acquire(main)
	assert.NotPanics(t, func() { c.Signal(main, l) })
	l.Release(main)
}

func TestConditionVariableBroadcastWakesEveryone(t *testing.T) {
	s, main := sched.NewScheduler(false)
	l := NewLock(s)
	c := NewConditionVariable(s)

	var mu sync.Mutex
	var order []string

	spawnWaiter := func(name string, priority int) chan struct{} {
		th := s.Spawn(name, priority)
		done := make(chan struct{})
		go func() {
			s.AwaitTurn(th)
			l.Acquire(th)
			c.Wait(th, l)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			l.Release(th)
			s.Finish(th)
			close(done)
		}()
		return done
	}

	d1 := spawnWaiter("LOW", 10)
	d2 := spawnWaiter("HIGH", 40)

	s.Finish(main)

	sig := s.Spawn("signaller", 1)
	sigDone := make(chan struct{})
	go func() {
		s.AwaitTurn(sig)
		l.Acquire(sig)
		c.Broadcast(sig, l)
		l.Release(sig)
		s.Finish(sig)
		close(sigDone)
	}()

	<-sigDone
	<-d1
	<-d2

	assert.Equal(t, []string{"HIGH", "LOW"}, order)
}

func TestConditionVariableWaitWithoutHoldingLockAborts(t *testing.T) {
	s, main := sched.NewScheduler(false)
	l := NewLock(s)
	c := NewConditionVariable(s)

	assert.Panics(t, func() { c.Wait(main, l) })
}
