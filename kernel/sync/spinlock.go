// Package sync provides the locking primitives used by the kernel and its
// interrupt handlers. There is a single CPU, so none of them ever wait: a
// lock that is already held can only be held by the context that was
// interrupted, and waiting for it would never end.
package sync

import "sync/atomic"

// Spinlock is an atomic exclusive-access flag.
type Spinlock struct {
	state uint32
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// IsHeld returns true if the lock is currently held.
func (l *Spinlock) IsHeld() bool {
	return atomic.LoadUint32(&l.state) != 0
}

// Release relinquishes a held lock. Calling Release while the lock is free has
// no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
