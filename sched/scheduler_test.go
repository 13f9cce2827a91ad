package sched_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dijkstracula/go-synch/sched"
)

func TestSpawnOrdersByPriorityNotCreationOrder(t *testing.T) {
	s, main := sched.NewScheduler(false)

	s.Spawn("low", 10)
	s.Spawn("high", 40)
	s.Spawn("mid", 20)

	s.Finish(main)
	require.Equal(t, "high", s.Current().Name)

	s.Finish(s.Current())
	require.Equal(t, "mid", s.Current().Name)

	s.Finish(s.Current())
	require.Equal(t, "low", s.Current().Name)

	s.Finish(s.Current())
	assert.Nil(t, s.Current())
}

// Spawn promotes a new thread immediately when the CPU is idle, rather
// than waiting for some other transition to notice it.
func TestSpawnPromotesWhenCPUIsIdle(t *testing.T) {
	s, main := sched.NewScheduler(false)
	s.Finish(main)
	assert.Nil(t, s.Current())

	later := s.Spawn("later", 5)
	assert.Equal(t, later, s.Current())
}

func TestBlockParksUntilUnblocked(t *testing.T) {
	s, main := sched.NewScheduler(false)
	a := s.Spawn("A", main.Priority)

	resumed := make(chan struct{})
	go func() {
		s.AwaitTurn(a)
		restore := s.Disable()
		s.Block(a)
		restore()
		s.Finish(a)
		close(resumed)
	}()

	// main's own turn only comes back around once A has blocked, so by
	// the time Yield returns, A is definitely parked.
	s.Yield(main)

	select {
	case <-resumed:
		t.Fatal("A resumed before Unblock was called")
	default:
	}
	assert.Equal(t, sched.StateBlocked, a.State())

	// Block's own promote() already handed the CPU straight back to main;
	// main has to give it up itself before Unblock can promote A, or A
	// merely becomes ready instead of running.
	s.Finish(main)

	restore := s.Disable()
	s.Unblock(a)
	restore()

	<-resumed
	assert.Equal(t, sched.StateExited, a.State())
}

// Preempt is a no-op unless the ready queue's head strictly outranks the
// calling thread; Yield hands off unconditionally.
func TestPreemptOnlyYieldsToStrictlyHigherPriority(t *testing.T) {
	s, main := sched.NewScheduler(false)
	s.Spawn("low", main.Priority-1)

	restore := s.Disable()
	s.Preempt(main)
	restore()
	assert.Equal(t, main, s.Current(), "a lower-priority ready thread must not preempt")

	high := s.Spawn("high", main.Priority+1)
	done := make(chan struct{})
	go func() {
		s.AwaitTurn(high)
		s.Finish(high)
		close(done)
	}()

	restore = s.Disable()
	s.Preempt(main)
	restore()

	<-done
	assert.Equal(t, main, s.Current(), "main must be rescheduled once the preempting thread finishes")
}

func TestYieldHandsOffRegardlessOfPriority(t *testing.T) {
	s, main := sched.NewScheduler(false)
	low := s.Spawn("low", main.Priority-1)

	// Yield only returns once main is scheduled again, so low records who
	// held the CPU while it ran and then hands the CPU back.
	var ranWhileYielded *sched.Thread
	go func() {
		s.AwaitTurn(low)
		ranWhileYielded = s.Current()
		s.Finish(low)
	}()

	s.Yield(main)
	assert.Equal(t, low, ranWhileYielded, "Yield must hand off even to a lower-priority thread")
}

func TestYieldIsNoopWithNothingReady(t *testing.T) {
	s, main := sched.NewScheduler(false)
	s.Yield(main)
	assert.Equal(t, main, s.Current())
}

func TestSimulateInterruptSetsAndClearsContext(t *testing.T) {
	s, _ := sched.NewScheduler(false)
	assert.False(t, s.InInterruptContext())

	var observed bool
	s.SimulateInterrupt(func() {
		observed = s.InInterruptContext()
	})

	assert.True(t, observed)
	assert.False(t, s.InInterruptContext())
}

func TestMLFQSGateDefaultsFromConstructor(t *testing.T) {
	s, _ := sched.NewScheduler(true)
	assert.True(t, s.MLFQSActive())

	s.SetMLFQSActive(false)
	assert.False(t, s.MLFQSActive())
}
