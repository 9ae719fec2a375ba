// Package kmain contains the kernel entry point that the loader transfers
// control to.
package kmain

import (
	"io"

	"kestrel/bootinfo"
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/device/ps2"
	"kestrel/kernel/device/serial"
	"kestrel/kernel/device/video/fb"
	"kestrel/kernel/diag"
	"kestrel/kernel/gate"
	"kestrel/kernel/goruntime"
	"kestrel/kernel/irq"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mm"
	"kestrel/kernel/mm/vmm"
	"kestrel/kernel/sync"
	"kestrel/kernel/task"

	"tinygo.org/x/drivers"
)

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	initSerialFn       = serial.Port(serial.COM1).Init
	goruntimeInitFn    = goruntime.Init
	gateInitFn         = gate.Init
	vmmInitFn          = vmm.Init
	irqInitFn          = irq.Init
	ps2InitFn          = ps2.Init
	enableInterruptsFn = cpu.EnableInterrupts
	runExecutorFn      = (*task.Executor).Run

	serialLine io.Writer = serial.Port(serial.COM1)

	// logLevel is the verbosity of the diagnostic log. Raise it to
	// diag.LevelDebug to see raw scancodes and the memory map regions.
	logLevel = diag.LevelInfo

	// bootArgs keeps the kernel's own copy of the loader handoff.
	bootArgs sync.Cell[bootinfo.KernelArgs]
	console  sync.Cell[*fb.Console]

	executor task.Executor

	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
)

// Kmain is the kernel entry point. The loader calls it on the kernel stack,
// inside the address space it built, with interrupts disabled and firmware
// boot services gone. args points into loader memory and is copied before
// anything else runs.
//
// Kmain is not expected to return.
//
//go:noinline
func Kmain(args *bootinfo.KernelArgs) {
	bootArgs.Set(*args)
	args = bootArgs.Get()

	initSerialFn()
	diag.SetSerial(serialLine)
	diag.SetLevel(logLevel)
	kfmt.SetOutputSink(diag.Writer())
	diag.Infof("kestrel: kernel entry, runtime services at 0x%16x", args.RuntimeServices)

	// Nothing above this point may allocate.
	if err := goruntimeInitFn(&args.MemoryMap); err != nil {
		panic(err)
	}

	gateInitFn()
	vmmInitFn()
	irqInitFn()
	if err := ps2InitFn(); err != nil {
		panic(err)
	}

	strip := attachConsole(&args.Framebuffer)
	reportCPUFeatures()
	reportMemory(&args.MemoryMap)

	if _, err := executor.Spawn(ps2.NewKeypressTask(&ps2.Scancodes, strip)); err != nil {
		panic(err)
	}

	enableInterruptsFn()
	runExecutorFn(&executor)

	panic(errKmainReturned)
}

// attachConsole mirrors the log to a console on the framebuffer and returns
// the framebuffer, or nil if it cannot be used.
func attachConsole(info *bootinfo.FramebufferInfo) drivers.Displayer {
	frame, err := fb.New(*info)
	if err != nil {
		diag.Warnf("framebuffer unavailable: %s", err.Message)
		return nil
	}

	console.Set(fb.NewConsole(frame, fb.DefaultBackground))
	diag.AttachConsole(*console.Get())
	diag.Infof("framebuffer: %dx%d at 0x%16x", info.Width, info.Height, info.Base)
	return frame
}

func reportCPUFeatures() {
	for _, f := range cpu.Features() {
		diag.Infof("cpu feature %s: %t", f.Name, f.Present)
	}
}

func reportMemory(m *bootinfo.MemoryMap) {
	usable := m.PageTotal(bootinfo.MemoryType.Usable)
	diag.Infof("memory: %d MiB usable in %d regions", (usable*uint64(mm.PageSize))>>20, m.Len)

	m.Visit(func(desc *bootinfo.MemoryDescriptor) bool {
		diag.Debugf("  [0x%16x - 0x%16x] %s", desc.PhysStart, desc.End(), desc.Type.String())
		return true
	})
}
