// Package goruntime backs the Go runtime memory allocator with kernel memory.
// The runtime functions that would normally ask the host OS for memory are
// redirected to the functions in this file; Init then runs the parts of the
// runtime bootstrap that the rt0 code skipped.
package goruntime

import (
	"unsafe"

	"kestrel/bootinfo"
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/irq"
	"kestrel/kernel/mm"
	"kestrel/kernel/mm/pmm"
	"kestrel/kernel/mm/vmm"
)

const (
	// HeapBase and HeapLimit bound the virtual range handed to the Go
	// allocator.
	HeapBase  = uintptr(0xffffc00000000000)
	HeapLimit = uintptr(0xffffc80000000000)

	// nsPerTick is the timer period for irq.PITDivisor, rounded.
	nsPerTick = 5000000

	heapPageFlags = vmm.FlagPresent | vmm.FlagRW | vmm.FlagNoExecute
)

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	mapFn           = mapHeapPage
	frameAllocFn    = allocFrame
	memsetFn        = kernel.Memset
	activePDTFn     = cpu.ActivePDT
	ticksFn         = irq.Ticks
	mallocInitFn    = mallocInit
	algInitFn       = algInit
	modulesInitFn   = modulesInit
	typeLinksInitFn = typeLinksInit
	itabsInitFn     = itabsInit

	// kernelSpace is the address space the loader built, edited through
	// the physical memory window.
	kernelSpace vmm.AddressSpace

	nextHeapAddr = HeapBase

	// A seed for the pseudo-random number generator used by readRandom
	prngSeed = 0xdeadc0de

	errHeapExhausted = &kernel.Error{Module: "goruntime", Message: "kernel heap address range exhausted"}
)

//go:linkname algInit runtime.alginit
func algInit()

//go:linkname modulesInit runtime.modulesinit
func modulesInit()

//go:linkname typeLinksInit runtime.typelinksinit
func typeLinksInit()

//go:linkname itabsInit runtime.itabsinit
func itabsInit()

//go:linkname mallocInit runtime.mallocinit
func mallocInit()

// bootFrames feeds page table allocations from the boot memory allocator.
type bootFrames struct{}

func (bootFrames) AllocFrame() (mm.Frame, *kernel.Error) {
	return frameAllocFn()
}

func allocFrame() (mm.Frame, *kernel.Error) {
	return pmm.BootMem.AllocFrame()
}

func mapHeapPage(virtAddr, physAddr uintptr) *kernel.Error {
	return kernelSpace.Map(virtAddr, physAddr, mm.Size4KiB, heapPageFlags)
}

func pageAlign(size uintptr) uintptr {
	return (size + mm.PageSize - 1) &^ (mm.PageSize - 1)
}

// reserveRegion carves size bytes, rounded up to a page, out of the heap
// range. Address space is never given back.
func reserveRegion(size uintptr) (uintptr, *kernel.Error) {
	size = pageAlign(size)
	if size > HeapLimit-nextHeapAddr {
		return 0, errHeapExhausted
	}

	addr := nextHeapAddr
	nextHeapAddr += size
	return addr, nil
}

// mapRegion backs every page of [addr, addr+size) with a zeroed frame.
func mapRegion(addr, size uintptr) *kernel.Error {
	for page := mm.PageFromAddress(addr); page.Address() < addr+size; page++ {
		frame, err := frameAllocFn()
		if err != nil {
			return err
		}

		memsetFn(bootinfo.PhysMapOffset+frame.Address(), 0, mm.PageSize)
		if err = mapFn(page.Address(), frame.Address()); err != nil {
			return err
		}
	}

	return nil
}

// sysReserveOS reserves address space without backing it. The address hint
// is ignored; the runtime copes with reservations that land elsewhere.
//
//go:redirect-from runtime.sysReserveOS
//go:nosplit
func sysReserveOS(_ unsafe.Pointer, size uintptr) unsafe.Pointer {
	addr, err := reserveRegion(size)
	if err != nil {
		return nil
	}

	return unsafe.Pointer(addr)
}

// sysMapOS backs a region previously returned by sysReserveOS. There is no
// demand paging so frames are allocated up front.
//
//go:redirect-from runtime.sysMapOS
//go:nosplit
func sysMapOS(virtAddr unsafe.Pointer, size uintptr) {
	if err := mapRegion(uintptr(virtAddr), pageAlign(size)); err != nil {
		panic(err)
	}
}

// sysAllocOS reserves and backs a new region.
//
//go:redirect-from runtime.sysAllocOS
//go:nosplit
func sysAllocOS(size uintptr) unsafe.Pointer {
	addr, err := reserveRegion(size)
	if err != nil {
		return nil
	}

	if err = mapRegion(addr, pageAlign(size)); err != nil {
		return nil
	}

	return unsafe.Pointer(addr)
}

// sysHintOS replaces the runtime hooks that return memory or change its
// paging hints. Memory is never reclaimed.
//
//go:redirect-from runtime.sysFreeOS
//go:redirect-from runtime.sysUnusedOS
//go:redirect-from runtime.sysUsedOS
//go:redirect-from runtime.sysHugePageOS
//go:redirect-from runtime.sysNoHugePageOS
//go:nosplit
func sysHintOS(_ unsafe.Pointer, _ uintptr) {
	for i := 0; i < 1; i++ {
	}
}

// nanotime1 derives a monotonic clock from the timer tick count.
//
//go:redirect-from runtime.nanotime1
//go:nosplit
func nanotime1() int64 {
	return int64(ticksFn()) * nsPerTick
}

// readRandom fills r from a prng as there is no entropy source.
//
//go:redirect-from runtime.readRandom
func readRandom(r []byte) int {
	for i := 0; i < len(r); i++ {
		prngSeed = (prngSeed * 58321) + 11113
		r[i] = byte((prngSeed >> 16) & 255)
	}
	return len(r)
}

// Init enables heap allocation, maps, and interface conversions backed by
// frames from the free regions of m. It must run before any code that
// allocates.
func Init(m *bootinfo.MemoryMap) *kernel.Error {
	pmm.BootMem.Init(m)
	kernelSpace.Init(mm.FrameFromAddress(activePDTFn()), vmm.OffsetResolver(bootinfo.PhysMapOffset), bootFrames{})

	mallocInitFn()
	algInitFn()       // setup hash implementation for map keys
	modulesInitFn()   // provides activeModules
	typeLinksInitFn() // uses maps, activeModules
	itabsInitFn()     // uses activeModules

	return nil
}

func init() {
	// Dummy calls so the compiler does not optimize away the functions in
	// this file.
	zeroPtr := unsafe.Pointer(uintptr(0))

	sysReserveOS(zeroPtr, 0)
	sysMapOS(zeroPtr, 0)
	sysAllocOS(0)
	sysHintOS(zeroPtr, 0)
	readRandom(nil)
	nanotime1()
}
