package task

import (
	"fmt"
	"testing"

	"kestrel/kernel/sync"
)

// recordingTask completes after it has been polled pollsUntilDone times and
// records each poll into log.
type recordingTask struct {
	name           string
	log            *[]string
	pollsUntilDone int
	polls          int
	waker          Waker
}

func (rt *recordingTask) Poll(ctx *Context) Status {
	rt.polls++
	rt.waker = ctx.Waker()
	*rt.log = append(*rt.log, rt.name)
	if rt.pollsUntilDone != 0 && rt.polls >= rt.pollsUntilDone {
		return Done
	}
	return Pending
}

func TestExecutorFIFOOrder(t *testing.T) {
	defer sync.SwapInterruptOps(sync.SwapInterruptOps(sync.SoftInterruptOps(true)))

	var (
		exec Executor
		log  []string
	)

	a := &recordingTask{name: "A", log: &log}
	b := &recordingTask{name: "B", log: &log}
	c := &recordingTask{name: "C", log: &log, pollsUntilDone: 2}

	for _, rt := range []*recordingTask{a, b, c} {
		if _, err := exec.Spawn(rt); err != nil {
			t.Fatal(err)
		}
	}

	exec.RunReady()
	if got, exp := fmt.Sprint(log), "[A B C]"; got != exp {
		t.Fatalf("expected first pass to poll tasks in spawn order %s; got %s", exp, got)
	}

	// Duplicate wakes coalesce and keep the position of the first one.
	log = log[:0]
	c.waker.Wake()
	a.waker.Wake()
	c.waker.Wake()
	b.waker.Wake()
	a.waker.Wake()

	exec.RunReady()
	if got, exp := fmt.Sprint(log), "[C A B]"; got != exp {
		t.Fatalf("expected tasks to be polled in wake order %s; got %s", exp, got)
	}

	// C has completed; stale wakers must not resurrect it.
	log = log[:0]
	c.waker.Wake()
	b.waker.Wake()
	exec.RunReady()
	if got, exp := fmt.Sprint(log), "[B]"; got != exp {
		t.Fatalf("expected only B to be polled; got %s", got)
	}

	if c.polls != 2 {
		t.Fatalf("expected completed task to be polled exactly 2 times; got %d", c.polls)
	}

	if got := exec.TaskCount(); got != 2 {
		t.Fatalf("expected 2 live tasks; got %d", got)
	}
}

func TestExecutorSelfWake(t *testing.T) {
	defer sync.SwapInterruptOps(sync.SwapInterruptOps(sync.SoftInterruptOps(true)))

	t.Run("wake and pend", func(t *testing.T) {
		var (
			exec  Executor
			log   []string
			polls int
		)

		exec.Spawn(PollFunc(func(ctx *Context) Status {
			polls++
			log = append(log, "yield")
			if polls == 1 {
				ctx.Waker().Wake()
				return Pending
			}
			return Done
		}))
		other := &recordingTask{name: "other", log: &log, pollsUntilDone: 1}
		exec.Spawn(other)

		exec.RunReady()
		if got, exp := fmt.Sprint(log), "[yield other yield]"; got != exp {
			t.Fatalf("expected self-woken task to be queued behind ready tasks %s; got %s", exp, got)
		}
	})

	t.Run("wake and complete", func(t *testing.T) {
		var (
			exec  Executor
			polls int
		)

		exec.Spawn(PollFunc(func(ctx *Context) Status {
			polls++
			ctx.Waker().Wake()
			return Done
		}))

		exec.RunReady()
		exec.RunReady()
		if polls != 1 {
			t.Fatalf("expected completed task to be polled once; got %d", polls)
		}

		if got := exec.TaskCount(); got != 0 {
			t.Fatalf("expected no live tasks; got %d", got)
		}
	})
}

func TestExecutorSlotReuse(t *testing.T) {
	defer sync.SwapInterruptOps(sync.SwapInterruptOps(sync.SoftInterruptOps(true)))

	var (
		exec Executor
		log  []string
	)

	tasks := make([]*recordingTask, MaxTasks)
	for i := range tasks {
		tasks[i] = &recordingTask{name: fmt.Sprint(i), log: &log, pollsUntilDone: 2}
		if _, err := exec.Spawn(tasks[i]); err != nil {
			t.Fatalf("[task %d] unexpected error: %v", i, err)
		}
	}

	if _, err := exec.Spawn(&recordingTask{log: &log}); err != errTooManyTasks {
		t.Fatalf("expected errTooManyTasks; got %v", err)
	}

	exec.RunReady()
	stale := tasks[0].waker
	stale.Wake()
	exec.RunReady()
	if tasks[0].polls != 2 {
		t.Fatalf("expected task 0 to complete; got %d polls", tasks[0].polls)
	}

	// The freed slot is handed to a new task; the old waker must not reach it.
	reused := &recordingTask{name: "reused", log: &log}
	id, err := exec.Spawn(reused)
	if err != nil {
		t.Fatal(err)
	}
	if id <= stale.id {
		t.Fatalf("expected task IDs to increase; got %d after %d", id, stale.id)
	}

	exec.RunReady()
	stale.Wake()
	exec.RunReady()
	if reused.polls != 1 {
		t.Fatalf("expected stale waker to be ignored; reused task polled %d times", reused.polls)
	}
}

func TestSleepIfIdle(t *testing.T) {
	defer sync.SwapInterruptOps(sync.SwapInterruptOps(sync.SoftInterruptOps(true)))
	defer func(disable, enable, halt func()) {
		disableInterruptsFn = disable
		enableInterruptsFn = enable
		enableInterruptsAndHaltFn = halt
	}(disableInterruptsFn, enableInterruptsFn, enableInterruptsAndHaltFn)

	var calls []string
	disableInterruptsFn = func() { calls = append(calls, "cli") }
	enableInterruptsFn = func() { calls = append(calls, "sti") }
	enableInterruptsAndHaltFn = func() { calls = append(calls, "sti;hlt") }

	var exec Executor
	exec.sleepIfIdle()
	if got, exp := fmt.Sprint(calls), "[cli sti;hlt]"; got != exp {
		t.Fatalf("expected idle executor to halt %s; got %s", exp, got)
	}

	calls = calls[:0]
	exec.Spawn(PollFunc(func(*Context) Status { return Done }))
	exec.sleepIfIdle()
	if got, exp := fmt.Sprint(calls), "[cli sti]"; got != exp {
		t.Fatalf("expected busy executor not to halt %s; got %s", exp, got)
	}
}

func TestZeroWaker(t *testing.T) {
	// Waking a zero Waker must be a no-op.
	Waker{}.Wake()
}
