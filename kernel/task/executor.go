package task

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/sync"
)

// MaxTasks is the number of tasks an executor can hold at once.
const MaxTasks = 64

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	disableInterruptsFn       = cpu.DisableInterrupts
	enableInterruptsFn        = cpu.EnableInterrupts
	enableInterruptsAndHaltFn = cpu.EnableInterruptsAndHalt

	errTooManyTasks = &kernel.Error{Module: "task", Message: "executor task table is full"}
)

// runQueue is the executor state shared with wakers. ids holds the task
// occupying each slot (0 when free) and ready is a FIFO of slots, each of
// which appears at most once.
type runQueue struct {
	ids    [MaxTasks]ID
	queued [MaxTasks]bool
	ready  [MaxTasks]uint8
	head   int
	count  int
}

func (q *runQueue) push(slot uint8) {
	q.ready[(q.head+q.count)%MaxTasks] = slot
	q.count++
	q.queued[slot] = true
}

func (q *runQueue) pop() (uint8, bool) {
	if q.count == 0 {
		return 0, false
	}

	slot := q.ready[q.head]
	q.head = (q.head + 1) % MaxTasks
	q.count--
	q.queued[slot] = false
	return slot, true
}

// remove drops slot from the ready FIFO keeping the order of the rest.
func (q *runQueue) remove(slot uint8) {
	if !q.queued[slot] {
		return
	}

	kept := 0
	for i := 0; i < q.count; i++ {
		entry := q.ready[(q.head+i)%MaxTasks]
		if entry != slot {
			q.ready[(q.head+kept)%MaxTasks] = entry
			kept++
		}
	}
	q.count = kept
	q.queued[slot] = false
}

// Executor runs tasks in the order they became ready. The zero value is
// ready to use.
type Executor struct {
	// tasks and wakers are only touched from the executor loop.
	tasks  [MaxTasks]Pollable
	wakers [MaxTasks]Waker

	queue sync.IRQLock[runQueue]
}

// Spawn adds work to the executor and queues it for its first poll.
func (e *Executor) Spawn(work Pollable) (ID, *kernel.Error) {
	g := e.queue.Acquire()
	defer g.Release()

	q := g.Value()
	for slot := 0; slot < MaxTasks; slot++ {
		if q.ids[slot] != 0 {
			continue
		}

		id := nextID()
		q.ids[slot] = id
		e.tasks[slot] = work
		e.wakers[slot] = Waker{exec: e, slot: uint8(slot), id: id}
		q.push(uint8(slot))
		return id, nil
	}

	return 0, errTooManyTasks
}

// RunReady polls ready tasks until none is left. A task woken while it is
// being polled is queued behind the tasks that were already ready.
func (e *Executor) RunReady() {
	for {
		g := e.queue.Acquire()
		slot, ok := g.Value().pop()
		g.Release()

		if !ok {
			return
		}

		ctx := Context{waker: e.wakers[slot]}
		if e.tasks[slot].Poll(&ctx) != Done {
			continue
		}

		g = e.queue.Acquire()
		q := g.Value()
		q.remove(slot)
		q.ids[slot] = 0
		g.Release()

		e.tasks[slot] = nil
		e.wakers[slot] = Waker{}
	}
}

// Run polls tasks forever, halting the CPU whenever no task is ready.
func (e *Executor) Run() {
	for {
		e.RunReady()
		e.sleepIfIdle()
	}
}

// sleepIfIdle halts until the next interrupt if no task is ready. The check
// runs with interrupts disabled and sti;hlt re-enables them atomically with
// the halt, so a wake-up between the check and the halt is not lost.
func (e *Executor) sleepIfIdle() {
	disableInterruptsFn()

	g := e.queue.Acquire()
	idle := g.Value().count == 0
	g.Release()

	if idle {
		enableInterruptsAndHaltFn()
		return
	}

	enableInterruptsFn()
}

// TaskCount returns the number of tasks that have not completed.
func (e *Executor) TaskCount() int {
	g := e.queue.Acquire()
	defer g.Release()

	var n int
	for _, id := range g.Value().ids {
		if id != 0 {
			n++
		}
	}
	return n
}

func (e *Executor) wake(slot uint8, id ID) {
	g := e.queue.Acquire()
	if q := g.Value(); q.ids[slot] == id && !q.queued[slot] {
		q.push(slot)
	}
	g.Release()
}
