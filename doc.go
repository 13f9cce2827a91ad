// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package synch implements the synchronization primitives of a small
// teaching kernel: a counting semaphore, a strict mutual-exclusion lock
// with transitive priority donation, and a Mesa-style condition variable
// built on top of both.
//
// These three are stacked bottom-up and each depends only on the layer
// below it:
//
//	Semaphore  - a nonnegative counter with a priority-ordered wait set.
//	Lock       - binary ownership atop a Semaphore; tracks its holder and
//	             donates priority transitively to avoid priority inversion.
//	Condition  - wait/signal atop per-waiter semaphores; signal always
//	             wakes the highest-priority waiter.
//
// ## Priority donation
//
// A thread blocked acquiring a Lock donates its priority to the lock's
// current holder, and transitively to whatever *that* thread is itself
// waiting on, so a low-priority holder is never left running at a lower
// priority than a thread it is blocking. The donation is undone,
// per-lock, on release: only the donors that were waiting on the
// released lock lose their edge, so a thread holding several locks keeps
// whatever priority its other donors still warrant.
//
// Donation is a no-op whenever the host scheduler's MLFQS mode is active
// (sched.Scheduler.MLFQSActive); that scheduler recomputes priorities on
// its own and the two strategies are not meant to be combined.
//
// ## Concurrency model
//
// There is no lock-free code here and no atomic instructions are
// required: every operation executes inside a scheduler.Disable()
// section, which is this package's only mutual-exclusion primitive — the
// same way the kernel this is modeled on uses interrupt masking as its
// sole critical-section mechanism on a uniprocessor. See package sched
// for what stands in for the scheduler, interrupts, and the running
// thread.
package synch
