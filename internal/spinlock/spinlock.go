// Package spinlock implements a small test-and-set lock for very short
// critical sections.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

// spinLimit is the number of busy attempts made before yielding the
// processor between attempts.
const spinLimit = 100

// Lock is a spin lock. The zero value is unlocked. It must not be copied
// after first use.
type Lock struct {
	_     noCopy
	state atomic.Uint32
}

// Lock acquires the lock, spinning and then yielding until it succeeds.
func (x *Lock) Lock() {
	for i := 0; ; i++ {
		if x.TryLock() {
			return
		}
		if i >= spinLimit {
			runtime.Gosched()
		}
	}
}

// TryLock acquires the lock if it is free, and reports whether it did.
func (x *Lock) TryLock() bool {
	return x.state.Load() == 0 && x.state.CompareAndSwap(0, 1)
}

// Unlock releases the lock. Unlocking an unlocked lock panics.
func (x *Lock) Unlock() {
	if !x.state.CompareAndSwap(1, 0) {
		panic("spinlock: unlock of unlocked lock")
	}
}

// noCopy trips go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
