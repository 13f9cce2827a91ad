package synch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dijkstracula/go-synch/sched"
)

func TestSemaphoreInitAcceptsArbitraryValue(t *testing.T) {
	s, _ := sched.NewScheduler(false)
	sem := NewSemaphore(s, 7)
	assert.EqualValues(t, 7, sem.Value())
}

func TestSemaphoreTryDownNeverBlocks(t *testing.T) {
	s, _ := sched.NewScheduler(false)
	sem := NewSemaphore(s, 1)

	assert.True(t, sem.TryDown())
	assert.False(t, sem.TryDown(), "a second try-down on an exhausted semaphore must fail, not block")
	assert.EqualValues(t, 0, sem.Value())
}

func TestSemaphoreUpRestoresCount(t *testing.T) {
	s, main := sched.NewScheduler(false)
	sem := NewSemaphore(s, 0)

	sem.Up(main)
	assert.EqualValues(t, 1, sem.Value())
	assert.True(t, sem.TryDown())
}

// Scenario 1: two threads at equal priority contend for one lock
// protecting a counter; every acquire/increment/release cycle must be
// mutually exclusive.
func TestLockSimpleMutualExclusion(t *testing.T) {
	const iterations = 10000

	s, main := sched.NewScheduler(false)
	lock := NewLock(s)
	counter := 0

	a := s.Spawn("A", 31)
	b := s.Spawn("B", 31)

	var wg sync.WaitGroup
	wg.Add(2)

	worker := func(self *sched.Thread) {
		defer wg.Done()
		s.AwaitTurn(self)
		for i := 0; i < iterations; i++ {
			lock.Acquire(self)
			counter++
			lock.Release(self)
		}
		s.Finish(self)
	}

	go worker(a)
	go worker(b)

	s.Finish(main)
	wg.Wait()

	assert.Equal(t, 2*iterations, counter)
}

func TestLockDoubleAcquireAborts(t *testing.T) {
	s, main := sched.NewScheduler(false)
	lock := NewLock(s)

	lock.Acquire(main)
	assert.Panics(t, func() { lock.Acquire(main) })
}

func TestLockReleaseByNonHolderAborts(t *testing.T) {
	s, main := sched.NewScheduler(false)
	lock := NewLock(s)
	other := s.Spawn("other", main.Priority)

	lock.Acquire(main)
	assert.Panics(t, func() { lock.Release(other) })
}

// Scenario 6: preemption on up. low (priority 10) is about to call Up
// on an empty semaphore that high (priority 40) is blocked on; Up must
// hand the CPU to high before low's own next instruction runs.
func TestSemaphoreUpPreemptsToHigherPriorityWaiter(t *testing.T) {
	s, main := sched.NewScheduler(false)
	sem := NewSemaphore(s, 0)

	low := s.Spawn("low", 10)
	high := s.Spawn("high", 40)

	var ranAfterUp string
	highReady := make(chan struct{})
	highRanAfterDown := make(chan struct{})
	lowDone := make(chan struct{})
	highDone := make(chan struct{})

	go func() {
		s.AwaitTurn(high)
		close(highReady)
		sem.Down(high)
		close(highRanAfterDown)
		s.Finish(high)
		close(highDone)
	}()

	go func() {
		s.AwaitTurn(low)
		<-highReady
		sem.Up(low)
		select {
		case <-highRanAfterDown:
			ranAfterUp = "high"
		default:
			ranAfterUp = "low"
		}
		s.Finish(low)
		close(lowDone)
	}()

	s.Finish(main)
	<-lowDone
	<-highDone

	assert.Equal(t, "high", ranAfterUp, "Up must preempt to the higher-priority waiter before low's next instruction")
}

func TestSemaphoreDownFromInterruptContextAborts(t *testing.T) {
	s, main := sched.NewScheduler(false)
	sem := NewSemaphore(s, 1)

	require.NotPanics(t, func() {
		s.SimulateInterrupt(func() {
			assert.True(t, sem.TryDown(), "try-down is interrupt-safe")
		})
	})

	sem.Init(s, 1)
	assert.Panics(t, func() {
		s.SimulateInterrupt(func() { sem.Down(main) })
	})
}
