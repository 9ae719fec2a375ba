package task

import (
	"sync/atomic"

	"kestrel/kernel"
	"kestrel/kernel/sync"
)

// MaxQueueCapacity is the largest capacity accepted by WakeQueue.Init.
const MaxQueueCapacity = 256

var errQueueCapacity = &kernel.Error{Module: "task", Message: "wake queue capacity must be between 1 and 256"}

type byteRing struct {
	buf      [MaxQueueCapacity]byte
	head     int
	count    int
	capacity int
}

func (r *byteRing) pop() (byte, bool) {
	if r.count == 0 {
		return 0, false
	}

	b := r.buf[r.head]
	r.head = (r.head + 1) % r.capacity
	r.count--
	return b, true
}

// WakeQueue is a bounded byte FIFO filled by an interrupt handler and drained
// by a single task. When full, new bytes are dropped and counted; queued
// bytes are never overwritten.
type WakeQueue struct {
	ring    sync.IRQLock[byteRing]
	waker   AtomicWaker
	dropped uint64
}

// Init sets the queue capacity. Bytes pushed before Init are dropped.
func (q *WakeQueue) Init(capacity int) *kernel.Error {
	if capacity < 1 || capacity > MaxQueueCapacity {
		return errQueueCapacity
	}

	g := q.ring.Acquire()
	*g.Value() = byteRing{capacity: capacity}
	g.Release()
	return nil
}

// Push appends b and wakes the consumer. It returns false if the queue is
// full and b was dropped. Push never blocks or allocates.
func (q *WakeQueue) Push(b byte) bool {
	g := q.ring.Acquire()
	r := g.Value()
	if r.count == r.capacity {
		g.Release()
		atomic.AddUint64(&q.dropped, 1)
		return false
	}

	r.buf[(r.head+r.count)%r.capacity] = b
	r.count++
	g.Release()

	q.waker.Wake()
	return true
}

// PollNext returns the next byte. If the queue is empty it registers the
// waker of ctx and returns false; the queue is checked again after
// registering so a byte pushed in between is not missed.
func (q *WakeQueue) PollNext(ctx *Context) (byte, bool) {
	if b, ok := q.tryPop(); ok {
		return b, true
	}

	q.waker.Register(ctx.Waker())

	if b, ok := q.tryPop(); ok {
		q.waker.Take()
		return b, true
	}

	return 0, false
}

// Dropped returns the number of bytes dropped because the queue was full.
func (q *WakeQueue) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}

// Len returns the number of queued bytes.
func (q *WakeQueue) Len() int {
	g := q.ring.Acquire()
	defer g.Release()
	return g.Value().count
}

func (q *WakeQueue) tryPop() (byte, bool) {
	g := q.ring.Acquire()
	b, ok := g.Value().pop()
	g.Release()
	return b, ok
}
