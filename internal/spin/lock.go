// Package spin provides the short-held locks used on the tick and interrupt
// paths. Holders never block while holding one; waiters spin and yield the
// processor instead of parking.
package spin

import (
	"runtime"
	"sync/atomic"
)

// yieldAfter is the number of failed attempts before a waiter yields.
const yieldAfter = 64

// Lock is a test-and-test-and-set spin lock. The zero value is unlocked.
type Lock struct {
	state atomic.Uint32
}

func (l *Lock) Lock() {
	for spins := 0; ; spins++ {
		if l.state.Load() == 0 && l.state.CompareAndSwap(0, 1) {
			return
		}
		if spins >= yieldAfter {
			runtime.Gosched()
			spins = 0
		}
	}
}

// TryLock acquires the lock only if it is free right now.
func (l *Lock) TryLock() bool {
	return l.state.Load() == 0 && l.state.CompareAndSwap(0, 1)
}

func (l *Lock) Unlock() {
	if l.state.Swap(0) == 0 {
		panic("spin: unlock of unlocked lock")
	}
}

// Locked reports whether the lock is currently held by anyone.
func (l *Lock) Locked() bool {
	return l.state.Load() != 0
}
