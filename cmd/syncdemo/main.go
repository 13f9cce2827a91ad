// Command syncdemo drives end-to-end synchronization scenarios for the
// go-synch core against the simulated scheduler in package sched, and
// logs each scenario's outcome.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	synch "github.com/dijkstracula/go-synch"
	"github.com/dijkstracula/go-synch/sched"
)

// envDefaults supplies SYNCDEMO_* defaults for whichever flags the
// caller doesn't pass explicitly.
type envDefaults struct {
	Scenario string `envconfig:"scenario" default:"mutual-exclusion"`
	Verbose  bool   `envconfig:"verbose" default:"false"`
	MLFQS    bool   `envconfig:"mlfqs" default:"false"`
}

type options struct {
	Scenario string `short:"s" long:"scenario" description:"scenario to run (see -s=list)"`
	Verbose  bool   `short:"v" long:"verbose" description:"enable debug logging"`
	MLFQS    bool   `long:"mlfqs" description:"run with the MLFQS gate active (donation disabled)"`
}

type scenario func(log *zap.SugaredLogger, mlfqs bool) error

var scenarios = map[string]scenario{
	"mutual-exclusion":  runMutualExclusion,
	"single-donation":   runSingleLevelDonation,
	"chained-donation":  runChainedDonation,
	"per-lock-rollback": runPerLockRollback,
	"cond-priority":     runConditionVariableOrder,
	"preemption-on-up":  runPreemptionOnUp,
}

func main() {
	var env envDefaults
	if err := envconfig.Process("SYNCDEMO", &env); err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrap(err, "syncdemo: reading environment"))
		os.Exit(1)
	}

	opts := options{Scenario: env.Scenario, Verbose: env.Verbose, MLFQS: env.MLFQS}
	if _, err := flags.Parse(&opts); err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, errors.Wrap(err, "syncdemo: parsing flags"))
		os.Exit(1)
	}

	run, ok := scenarios[opts.Scenario]
	if !ok {
		fmt.Fprintf(os.Stderr, "syncdemo: unknown scenario %q (known: %s)\n", opts.Scenario, knownScenarios())
		os.Exit(1)
	}

	zapCfg := zap.NewProductionConfig()
	if opts.Verbose {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zl, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrap(err, "syncdemo: building logger"))
		os.Exit(1)
	}
	defer zl.Sync() //nolint:errcheck
	logger := zl.Sugar()

	logger.Infow("running scenario", "name", opts.Scenario, "mlfqs", opts.MLFQS)
	if err := run(logger, opts.MLFQS); err != nil {
		logger.Errorw("scenario failed invariant check", "name", opts.Scenario, "error", err)
		fmt.Fprintln(os.Stderr, errors.Wrapf(err, "syncdemo: %s", opts.Scenario))
		os.Exit(1)
	}
	logger.Infow("scenario passed", "name", opts.Scenario)
}

func knownScenarios() string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	return fmt.Sprintf("%v", names)
}

func require(cond bool, format string, args ...interface{}) error {
	if !cond {
		return errors.Errorf(format, args...)
	}
	return nil
}

// filesysLock stands in for the single process-wide lock the original
// kernel's syscall layer (userprog/syscall.c) creates once at bring-up
// to serialize filesystem access. It has no filesystem behind it here —
// only the single shared Lock, which is what the spec's core is about.
var filesysLock *synch.Lock

// runMutualExclusion is Scenario 1: two equal-priority threads contend
// for one lock guarding a counter; every increment must be exclusive.
func runMutualExclusion(log *zap.SugaredLogger, mlfqs bool) error {
	const iterations = 2000

	s, main := sched.NewScheduler(mlfqs)
	s.SetLogger(log)
	filesysLock = synch.NewLock(s)
	counter := 0

	a := s.Spawn("A", 31)
	b := s.Spawn("B", 31)

	doneA := make(chan struct{})
	doneB := make(chan struct{})
	worker := func(self *sched.Thread, done chan struct{}) {
		s.AwaitTurn(self)
		for i := 0; i < iterations; i++ {
			filesysLock.Acquire(self)
			counter++
			filesysLock.Release(self)
		}
		log.Debugw("thread finished", "name", self.Name)
		s.Finish(self)
		close(done)
	}

	go worker(a, doneA)
	go worker(b, doneB)

	s.Finish(main)
	<-doneA
	<-doneB

	return require(counter == 2*iterations, "counter = %d, want %d", counter, 2*iterations)
}

// runSingleLevelDonation is Scenario 2: L (20) holds K; H (40) blocks
// acquiring it and donates, raising L to 40 until release.
func runSingleLevelDonation(log *zap.SugaredLogger, mlfqs bool) error {
	s, main := sched.NewScheduler(mlfqs)
	s.SetLogger(log)
	k := synch.NewLock(s)

	l := s.Spawn("L", 20)
	acquired := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan struct{})

	go func() {
		s.AwaitTurn(l)
		k.Acquire(l)
		close(acquired)
		<-proceed
		k.Release(l)
		log.Debugw("released K", "name", l.Name)
		s.Finish(l)
		close(done)
	}()

	s.Finish(main)
	<-acquired

	h := s.Spawn("H", 40)
	hDone := make(chan struct{})
	go func() {
		s.AwaitTurn(h)
		k.Acquire(h)
		log.Debugw("acquired K after donation", "name", h.Name)
		k.Release(h)
		s.Finish(h)
		close(hDone)
	}()

	s.Yield(l)
	if err := require(l.Priority == 40, "L.Priority = %d, want 40 after H's donation", l.Priority); err != nil {
		return err
	}

	close(proceed)
	<-done
	<-hDone

	return require(l.Priority == 20, "L.Priority = %d, want 20 after rollback", l.Priority)
}

// runChainedDonation is Scenario 3: A(10) holds K1; B(20) holds K2 and
// blocks on K1; C(30) blocks on K2. C's donation must propagate through
// B to A.
func runChainedDonation(log *zap.SugaredLogger, mlfqs bool) error {
	s, main := sched.NewScheduler(mlfqs)
	s.SetLogger(log)
	k1 := synch.NewLock(s)
	k2 := synch.NewLock(s)

	a := s.Spawn("A", 10)

	aAcquired := make(chan struct{})
	aProceed := make(chan struct{})
	aDone := make(chan struct{})
	go func() {
		s.AwaitTurn(a)
		k1.Acquire(a)
		close(aAcquired)
		<-aProceed
		k1.Release(a)
		s.Finish(a)
		close(aDone)
	}()

	s.Finish(main)
	<-aAcquired

	// B is spawned only now: spawning it alongside A would let
	// Finish(main)'s promote() hand the CPU straight to B (it outranks
	// A) before A has ever acquired K1.
	b := s.Spawn("B", 20)
	bDone := make(chan struct{})
	go func() {
		s.AwaitTurn(b)
		k2.Acquire(b)
		k1.Acquire(b)
		k1.Release(b)
		k2.Release(b)
		s.Finish(b)
		close(bDone)
	}()

	s.Yield(a)
	if err := require(a.Priority == 20, "A.Priority = %d, want 20 after B blocks", a.Priority); err != nil {
		return err
	}

	c := s.Spawn("C", 30)
	cDone := make(chan struct{})
	go func() {
		s.AwaitTurn(c)
		k2.Acquire(c)
		k2.Release(c)
		s.Finish(c)
		close(cDone)
	}()

	s.Yield(a)
	if err := require(a.Priority == 30, "A.Priority = %d, want 30 once C's donation propagates", a.Priority); err != nil {
		return err
	}
	log.Debugw("donation chain formed", "a", a.Priority, "b", b.Priority, "c", c.Priority)

	close(aProceed)
	<-aDone
	<-bDone
	<-cDone

	return require(a.Priority == 10, "A.Priority = %d, want 10 once every donor is gone", a.Priority)
}

// runPerLockRollback is Scenario 4: T holds K1 and K2; D1(50) waits on
// K1, D2(40) waits on K2. Releasing K1 must drop only D1's donation.
func runPerLockRollback(log *zap.SugaredLogger, mlfqs bool) error {
	s, main := sched.NewScheduler(mlfqs)
	s.SetLogger(log)
	k1 := synch.NewLock(s)
	k2 := synch.NewLock(s)

	tt := s.Spawn("T", 5)
	tAcquired := make(chan struct{})
	release1 := make(chan struct{})
	release2 := make(chan struct{})
	tDone := make(chan struct{})
	go func() {
		s.AwaitTurn(tt)
		k1.Acquire(tt)
		k2.Acquire(tt)
		close(tAcquired)
		<-release1
		k1.Release(tt)
		<-release2
		k2.Release(tt)
		s.Finish(tt)
		close(tDone)
	}()

	s.Finish(main)
	<-tAcquired

	d1 := s.Spawn("D1", 50)
	d1Done := make(chan struct{})
	go func() {
		s.AwaitTurn(d1)
		k1.Acquire(d1)
		k1.Release(d1)
		s.Finish(d1)
		close(d1Done)
	}()
	s.Yield(tt)

	d2 := s.Spawn("D2", 40)
	d2Done := make(chan struct{})
	go func() {
		s.AwaitTurn(d2)
		k2.Acquire(d2)
		k2.Release(d2)
		s.Finish(d2)
		close(d2Done)
	}()
	s.Yield(tt)

	close(release1)
	<-d1Done
	log.Debugw("released K1", "t.priority", tt.Priority)
	if err := require(tt.Priority == 40, "T.Priority = %d, want 40 after dropping D1", tt.Priority); err != nil {
		return err
	}

	close(release2)
	<-d2Done
	<-tDone

	return require(tt.Priority == 5, "T.Priority = %d, want 5 once both donors are gone", tt.Priority)
}

// runConditionVariableOrder is Scenario 5: waiters at priorities 10, 30,
// 20 must wake in descending priority order, not arrival order.
func runConditionVariableOrder(log *zap.SugaredLogger, mlfqs bool) error {
	s, main := sched.NewScheduler(mlfqs)
	s.SetLogger(log)
	l := synch.NewLock(s)
	c := synch.NewConditionVariable(s)

	var order []string
	spawnWaiter := func(name string, priority int) chan struct{} {
		th := s.Spawn(name, priority)
		done := make(chan struct{})
		go func() {
			s.AwaitTurn(th)
			l.Acquire(th)
			c.Wait(th, l)
			order = append(order, name)
			l.Release(th)
			s.Finish(th)
			close(done)
		}()
		return done
	}

	d1 := spawnWaiter("W1", 10)
	d2 := spawnWaiter("W2", 30)
	d3 := spawnWaiter("W3", 20)

	s.Finish(main)

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

	log.Debugw("wake order", "order", order)
	want := []string{"W2", "W3", "W1"}
	for i, name := range want {
		if i >= len(order) || order[i] != name {
			return errors.Errorf("wake order = %v, want %v", order, want)
		}
	}
	return nil
}

// runPreemptionOnUp is Scenario 6: low(10) holds a down-to-zero
// semaphore; high(40) blocks on Down. low's Up must hand the CPU to
// high before low's own next instruction runs.
func runPreemptionOnUp(log *zap.SugaredLogger, mlfqs bool) error {
	s, main := sched.NewScheduler(mlfqs)
	s.SetLogger(log)
	sem := synch.NewSemaphore(s, 0)

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
		log.Debugw("high resumed from Down")
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

	// Hands off to high first (priority 40 beats low's 10), which
	// immediately blocks on the empty semaphore, handing the CPU to low.
	s.Finish(main)

	<-lowDone
	<-highDone

	return require(ranAfterUp == "high", "ranAfterUp = %q, want %q: Up must preempt to the higher-priority waiter before low's next instruction", ranAfterUp, "high")
}
