// Package task implements a single-threaded cooperative executor. Tasks are
// polled until they report Done; a task that reports Pending is parked until
// something calls the Waker it was handed, typically an interrupt handler.
package task

import "sync/atomic"

// ID identifies a task. IDs increase monotonically and are never reused.
type ID uint64

var lastID uint64

func nextID() ID {
	return ID(atomic.AddUint64(&lastID, 1))
}

// Status is the result of polling a task.
type Status uint8

const (
	// Pending means the task cannot make progress until it is woken.
	Pending Status = iota

	// Done means the task has completed and must not be polled again.
	Done
)

// Pollable is a unit of work driven by the executor. Poll must not block;
// before returning Pending it must arrange for ctx.Waker() to be called
// when it can make progress.
type Pollable interface {
	Poll(ctx *Context) Status
}

// PollFunc adapts a function to the Pollable interface.
type PollFunc func(ctx *Context) Status

// Poll calls fn.
func (fn PollFunc) Poll(ctx *Context) Status {
	return fn(ctx)
}

// Context is passed to Poll.
type Context struct {
	waker Waker
}

// Waker returns the waker of the task being polled.
func (c *Context) Waker() Waker {
	return c.waker
}

// Waker marks a parked task as ready. Wakers are plain values that can be
// copied and kept; waking a task that already completed does nothing.
type Waker struct {
	exec *Executor
	slot uint8
	id   ID
}

// Wake queues the task for polling unless it is already queued. It never
// blocks or allocates and may be called from interrupt handlers.
func (w Waker) Wake() {
	if w.exec != nil {
		w.exec.wake(w.slot, w.id)
	}
}
