package gate

import (
	"unsafe"

	"kestrel/kernel/cpu"
)

// Segment selectors. The user descriptors are installed but nothing runs in
// ring 3 yet.
const (
	KernelCodeSelector = uint16(1 << 3)
	KernelDataSelector = uint16(2 << 3)
	UserCodeSelector   = uint16(3<<3 | 3)
	UserDataSelector   = uint16(4<<3 | 3)
	TSSSelector        = uint16(5 << 3)

	// DoubleFaultIST is the interrupt stack table slot used by the double
	// fault handler.
	DoubleFaultIST = uint8(1)

	gdtEntries = 7
	idtEntries = 256

	doubleFaultStackSize = 5 * 4096
)

// Segment descriptor bits.
const (
	segAccessed   = uint64(1) << 40
	segWritable   = uint64(1) << 41
	segExecutable = uint64(1) << 43
	segCodeData   = uint64(1) << 44
	segDPL3       = uint64(3) << 45
	segPresent    = uint64(1) << 47
	segLongMode   = uint64(1) << 53
	segSize32     = uint64(1) << 54
	segGranular   = uint64(1) << 55
	segMaxLimit   = uint64(0xffff) | uint64(0xf)<<48

	segCommon = segCodeData | segPresent | segWritable | segAccessed | segMaxLimit | segGranular

	kernelCodeDescriptor = segCommon | segExecutable | segLongMode
	kernelDataDescriptor = segCommon | segSize32
	userCodeDescriptor   = kernelCodeDescriptor | segDPL3
	userDataDescriptor   = kernelDataDescriptor | segDPL3

	// available 64-bit TSS
	tssType = uint64(0x9) << 40

	// present, DPL 0, 64-bit interrupt gate (interrupts stay disabled
	// while the handler runs)
	interruptGateAttrs = uint64(0x8e)
)

// taskStateSegment is the 104-byte amd64 TSS. It is modelled as 32-bit words
// because the 64-bit fields inside it are only 4-byte aligned.
type taskStateSegment [26]uint32

// setIST stores the stack top for interrupt stack table slot index (1-7).
func (t *taskStateSegment) setIST(index uint8, stackTop uintptr) {
	t[7+2*index] = uint32(stackTop)
	t[7+2*index+1] = uint32(stackTop >> 32)
}

// ist returns the stack top stored in interrupt stack table slot index.
func (t *taskStateSegment) ist(index uint8) uintptr {
	return uintptr(t[7+2*index]) | uintptr(t[7+2*index+1])<<32
}

// disableIOMap points the I/O permission bitmap past the end of the segment
// which denies port access from rings other than 0.
func (t *taskStateSegment) disableIOMap() {
	t[25] = uint32(unsafe.Sizeof(*t)) << 16
}

// interruptGate is a 16-byte IDT entry.
type interruptGate [2]uint64

func newInterruptGate(handlerAddr uintptr, ist uint8) interruptGate {
	addr := uint64(handlerAddr)
	return interruptGate{
		(addr & 0xffff) |
			uint64(KernelCodeSelector)<<16 |
			uint64(ist&0x7)<<32 |
			interruptGateAttrs<<40 |
			(addr>>16&0xffff)<<48,
		addr >> 32,
	}
}

// handlerAddr decodes the handler address stored in the gate.
func (g interruptGate) handlerAddr() uintptr {
	return uintptr(g[0]&0xffff | (g[0]>>48&0xffff)<<16 | g[1]<<32)
}

// descriptorTablePointer is the 10-byte operand of LGDT and LIDT.
type descriptorTablePointer struct {
	limit uint16
	base  [4]uint16
}

func newDescriptorTablePointer(base, size uintptr) descriptorTablePointer {
	return descriptorTablePointer{
		limit: uint16(size - 1),
		base:  [4]uint16{uint16(base), uint16(base >> 16), uint16(base >> 32), uint16(base >> 48)},
	}
}

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	loadGDTFn        = cpu.LoadGDT
	loadIDTFn        = cpu.LoadIDT
	loadTRFn         = cpu.LoadTR
	reloadSegmentsFn = cpu.ReloadSegments

	gdt    [gdtEntries]uint64
	idt    [idtEntries]interruptGate
	tss    taskStateSegment
	gdtPtr descriptorTablePointer
	idtPtr descriptorTablePointer

	doubleFaultStack [doubleFaultStackSize]byte
)

// tssDescriptor encodes the 16-byte system descriptor for the TSS at base.
func tssDescriptor(base uintptr, limit uint32) (uint64, uint64) {
	b := uint64(base)
	low := uint64(limit&0xffff) |
		(b&0xffffff)<<16 |
		tssType |
		segPresent |
		uint64(limit>>16&0xf)<<48 |
		(b>>24&0xff)<<56
	return low, b >> 32
}

// installGDT populates the GDT and the TSS, loads both and reloads the
// segment registers.
func installGDT() {
	stackTop := (uintptr(unsafe.Pointer(&doubleFaultStack[0])) + doubleFaultStackSize) &^ 15
	tss.setIST(DoubleFaultIST, stackTop)
	tss.disableIOMap()

	gdt[0] = 0
	gdt[KernelCodeSelector>>3] = kernelCodeDescriptor
	gdt[KernelDataSelector>>3] = kernelDataDescriptor
	gdt[UserCodeSelector>>3] = userCodeDescriptor
	gdt[UserDataSelector>>3] = userDataDescriptor
	gdt[TSSSelector>>3], gdt[TSSSelector>>3+1] = tssDescriptor(
		uintptr(unsafe.Pointer(&tss)),
		uint32(unsafe.Sizeof(tss)-1),
	)

	gdtPtr = newDescriptorTablePointer(uintptr(unsafe.Pointer(&gdt)), unsafe.Sizeof(gdt))
	loadGDTFn(uintptr(unsafe.Pointer(&gdtPtr)))
	reloadSegmentsFn(KernelCodeSelector, KernelDataSelector)
	loadTRFn(TSSSelector)
}

// installIDT points every IDT entry at its entry stub and loads the table.
// Vectors without a registered handler reach the default handler.
func installIDT() {
	for vector := 0; vector < idtEntries; vector++ {
		idt[vector] = newInterruptGate(gateEntryAddrFn(uint8(vector)), 0)
	}

	idtPtr = newDescriptorTablePointer(uintptr(unsafe.Pointer(&idt)), unsafe.Sizeof(idt))
	loadIDTFn(uintptr(unsafe.Pointer(&idtPtr)))
}
