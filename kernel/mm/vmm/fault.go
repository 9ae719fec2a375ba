package vmm

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/diag"
	"kestrel/kernel/gate"
)

// Page fault error code bits.
const (
	pfProtection = 1 << iota
	pfWrite
	pfUser
	pfReservedBit
	pfInstructionFetch
)

var (
	// readCR2Fn and handleInterruptFn are used by tests to override the
	// hardware accessors.
	readCR2Fn         = cpu.ReadCR2
	handleInterruptFn = gate.HandleInterrupt

	errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "page/gpf fault"}
)

// Init installs the page fault and general protection fault handlers. The
// kernel has no demand paging so both faults halt the system.
func Init() {
	handleInterruptFn(gate.PageFaultException, 0, pageFaultHandler)
	handleInterruptFn(gate.GPFException, 0, generalProtectionFaultHandler)
}

func pageFaultHandler(regs *gate.Registers) {
	faultAddress := uintptr(readCR2Fn())

	diag.Errorf("page fault while accessing address: 0x%16x", faultAddress)
	diag.Errorf("reason: %s (error code 0x%x)", pageFaultReason(regs.Info), regs.Info)
	gate.DumpRegisters(regs)

	panic(errUnrecoverableFault)
}

func pageFaultReason(errorCode uint64) string {
	switch {
	case errorCode&pfReservedBit != 0:
		return "page table has reserved bit set"
	case errorCode&pfInstructionFetch != 0 && errorCode&pfProtection != 0:
		return "instruction fetch from no-execute page"
	case errorCode&pfInstructionFetch != 0:
		return "instruction fetch from non-present page"
	case errorCode&pfUser != 0:
		return "page-fault in user-mode"
	}

	switch errorCode & (pfProtection | pfWrite) {
	case 0:
		return "read from non-present page"
	case pfProtection:
		return "page protection violation (read)"
	case pfWrite:
		return "write to non-present page"
	default:
		return "page protection violation (write)"
	}
}

func generalProtectionFaultHandler(regs *gate.Registers) {
	diag.Errorf("general protection fault (selector error code 0x%x)", regs.Info)
	gate.DumpRegisters(regs)

	panic(errUnrecoverableFault)
}
