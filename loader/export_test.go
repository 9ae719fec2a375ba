package loader

import (
	"kestrel/kernel/cpu"
	"kestrel/kernel/mm/vmm"
)

func restoreCPUFns() {
	disableInterruptsFn = cpu.DisableInterrupts
	hasNoExecuteFn = cpu.HasNoExecute
	enableNoExecuteFn = cpu.EnableNoExecute
	hasHugePages1GFn = cpu.HasHugePages1G
	activePDTFn = cpu.ActivePDT
	disableWriteProtectFn = cpu.DisableWriteProtect
	writeCR0Fn = cpu.WriteCR0
	activateFn = (*vmm.AddressSpace).Activate
	transferFn = jumpToKernel
}
