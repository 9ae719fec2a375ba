package gate

import (
	"kestrel/kernel"
	"kestrel/kernel/diag"
	"kestrel/kernel/kfmt"
)

var (
	// parkFn is mocked by tests.
	parkFn = parkForDebugger

	errDoubleFault = &kernel.Error{Module: "gate", Message: "double fault"}

	dumpPrefix = []byte("    ")
)

// DumpRegisters writes the register frame to the diagnostic output, one
// indented line per register pair.
func DumpRegisters(regs *Registers) {
	w := kfmt.PrefixWriter{Sink: diag.Writer(), Prefix: dumpPrefix}
	regs.DumpTo(&w)
}

// doubleFaultHandler runs on the IST stack. A double fault is never
// recoverable.
func doubleFaultHandler(regs *Registers) {
	diag.Errorf("double fault (error code 0x%x)", regs.Info)
	DumpRegisters(regs)
	panic(errDoubleFault)
}

// breakpointHandler parks the CPU so a debugger can attach and inspect the
// state at the INT3.
func breakpointHandler(regs *Registers) {
	diag.Infof("breakpoint at 0x%16x; waiting for debugger", regs.RIP)
	parkFn()
}

func parkForDebugger() {
	for {
	}
}

// unhandledInterrupt is the default handler until a subsystem replaces it.
func unhandledInterrupt(regs *Registers) {
	diag.Warnf("unhandled interrupt %d (error code 0x%x)", uint8(regs.Vector), regs.Info)
	DumpRegisters(regs)
}
