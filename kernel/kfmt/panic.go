package kfmt

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
)

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	cpuHaltFn              = cpu.Halt
	cpuDisableInterruptsFn = cpu.DisableInterrupts

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}

	// panicking is set by the first call to Panic. A fault raised while the
	// report is printed halts without printing again.
	panicking bool
)

// Panic disables interrupts, reports e to the output sink and halts the CPU.
// Calls to Panic never return.
//
// Panic is the redirection target for runtime.gopanic, so panic(err) with a
// *kernel.Error is fatal everywhere in the kernel and the loader.
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	cpuDisableInterruptsFn()
	if panicking {
		cpuHaltFn()
		return
	}
	panicking = true

	err := errRuntimePanic
	errRuntimePanic.Message = "unknown cause"
	switch t := e.(type) {
	case *kernel.Error:
		if t != nil {
			err = t
		}
	case string:
		errRuntimePanic.Message = t
	case error:
		errRuntimePanic.Message = t.Error()
	}

	Printf("\n*** kernel panic ***\n")
	Printf("[%s] %s\n", err.Module, err.Message)
	Printf("system halted\n")

	cpuHaltFn()
}

// panicString is the redirection target for runtime.throw.
//
//go:redirect-from runtime.throw
func panicString(msg string) {
	Panic(msg)
}
