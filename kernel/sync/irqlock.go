package sync

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
)

var (
	interruptOps = InterruptOps{
		Enabled: cpu.InterruptsEnabled,
		Disable: cpu.DisableInterrupts,
		Enable:  cpu.EnableInterrupts,
	}

	// ErrReentrantLock is raised when an IRQLock is acquired by the context
	// that already holds it.
	ErrReentrantLock = &kernel.Error{Module: "sync", Message: "IRQLock locked twice (reentrant acquisition)"}
)

// InterruptOps is the set of CPU operations IRQLock uses to control the
// interrupt flag.
type InterruptOps struct {
	Enabled func() bool
	Disable func()
	Enable  func()
}

// SwapInterruptOps installs ops and returns the previously installed set.
// Code running in user mode, where cli and sti fault, replaces the privileged
// instructions with SoftInterruptOps:
//
//	defer sync.SwapInterruptOps(sync.SwapInterruptOps(sync.SoftInterruptOps(true)))
func SwapInterruptOps(ops InterruptOps) InterruptOps {
	prev := interruptOps
	interruptOps = ops
	return prev
}

// SoftInterruptOps returns an InterruptOps that tracks the interrupt flag in
// memory, starting out in the supplied state.
func SoftInterruptOps(enabled bool) InterruptOps {
	flag := enabled
	return InterruptOps{
		Enabled: func() bool { return flag },
		Disable: func() { flag = false },
		Enable:  func() { flag = true },
	}
}

// IRQLock guards a value that is shared between normal execution and
// interrupt handlers. Acquiring the lock disables interrupts for the duration
// of the critical section so a handler can never observe the value half
// updated, and can never deadlock against the code it interrupted.
//
// A second acquisition while a guard is alive is a fatal error; it can only
// originate from the holder itself (for example a handler touching a value the
// interrupted code was holding with interrupts still enabled) and waiting for
// it would hang the system.
//
// The zero value is an unlocked IRQLock wrapping the zero value of T.
type IRQLock[T any] struct {
	flag  Spinlock
	value T
}

// NewIRQLock returns an IRQLock wrapping val.
func NewIRQLock[T any](val T) IRQLock[T] {
	return IRQLock[T]{value: val}
}

// Guard grants exclusive access to the value wrapped by an IRQLock. It must
// be released exactly once.
type Guard[T any] struct {
	lock *IRQLock[T]

	// interruptsWereEnabled records the interrupt flag at acquisition time.
	interruptsWereEnabled bool
}

// Acquire disables interrupts and takes the lock. Calling Acquire on a lock
// that is already held panics with ErrReentrantLock.
func (l *IRQLock[T]) Acquire() Guard[T] {
	enabled := interruptOps.Enabled()
	interruptOps.Disable()

	if !l.flag.TryToAcquire() {
		panic(ErrReentrantLock)
	}

	return Guard[T]{lock: l, interruptsWereEnabled: enabled}
}

// IsHeld reports whether a guard for this lock is currently alive. It never
// blocks and never changes the interrupt state.
func (l *IRQLock[T]) IsHeld() bool {
	return l.flag.IsHeld()
}

// Value returns a pointer to the guarded value. The pointer must not be used
// after the guard is released.
func (g Guard[T]) Value() *T {
	return &g.lock.value
}

// Release unlocks the IRQLock and re-enables interrupts if, and only if, they
// were enabled when the lock was acquired.
func (g Guard[T]) Release() {
	g.lock.flag.Release()
	if g.interruptsWereEnabled {
		interruptOps.Enable()
	}
}
