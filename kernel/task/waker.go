package task

import "kestrel/kernel/sync"

type wakerSlot struct {
	waker Waker
	set   bool
}

// AtomicWaker holds the waker of a single consumer so a producer running in
// an interrupt handler can wake it.
type AtomicWaker struct {
	slot sync.IRQLock[wakerSlot]
}

// Register replaces the stored waker.
func (a *AtomicWaker) Register(w Waker) {
	g := a.slot.Acquire()
	*g.Value() = wakerSlot{waker: w, set: true}
	g.Release()
}

// Take removes and returns the stored waker.
func (a *AtomicWaker) Take() (Waker, bool) {
	g := a.slot.Acquire()
	s := g.Value()
	w, ok := s.waker, s.set
	*s = wakerSlot{}
	g.Release()
	return w, ok
}

// Wake wakes and clears the stored waker, if any.
func (a *AtomicWaker) Wake() {
	if w, ok := a.Take(); ok {
		w.Wake()
	}
}
