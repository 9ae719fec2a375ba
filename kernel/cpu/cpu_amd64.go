package cpu

var (
	cpuidFn = ID
)

const (
	// MSR holding the extended feature enable bits.
	msrEFER = 0xC0000080

	// eferNXE enables the no-execute page-table bit.
	eferNXE = 1 << 11

	// cr0WP makes read-only pages read-only for ring 0 as well.
	cr0WP = 1 << 16
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// InterruptsEnabled reports whether the interrupt flag is currently set.
func InterruptsEnabled() bool

// Halt disables interrupts and stops instruction execution. It never returns.
func Halt()

// EnableInterruptsAndHalt enables interrupts and halts until the next one
// arrives. The two instructions execute back to back so an interrupt that
// becomes pending in between still wakes the CPU.
func EnableInterruptsAndHalt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR0 returns the value stored in the CR0 register.
func ReadCR0() uint64

// WriteCR0 stores val in the CR0 register.
func WriteCR0(val uint64)

// ReadCR2 returns the value stored in the CR2 register.
func ReadCR2() uint64

// ReadMSR returns the value of a model specific register.
func ReadMSR(msr uint32) uint64

// WriteMSR stores val in a model specific register.
func WriteMSR(msr uint32, val uint64)

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// LoadGDT loads the descriptor table pointer stored at descAddr into GDTR.
func LoadGDT(descAddr uintptr)

// LoadIDT loads the descriptor table pointer stored at descAddr into IDTR.
func LoadIDT(descAddr uintptr)

// LoadTR loads the task register with the supplied TSS selector.
func LoadTR(selector uint16)

// ReloadSegments reloads CS with codeSel (via a far return) and the DS, ES
// and SS registers with dataSel. FS and GS are left untouched as the runtime
// keeps its thread-local state there.
func ReloadSegments(codeSel, dataSel uint16)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}

// HasNoExecute returns true if the CPU supports the no-execute page bit.
func HasNoExecute() bool {
	if maxExt, _, _, _ := cpuidFn(0x80000000); maxExt < 0x80000001 {
		return false
	}
	_, _, _, edx := cpuidFn(0x80000001)
	return edx&(1<<20) != 0
}

// HasHugePages1G returns true if the CPU can map 1 GiB pages.
func HasHugePages1G() bool {
	if maxExt, _, _, _ := cpuidFn(0x80000000); maxExt < 0x80000001 {
		return false
	}
	_, _, _, edx := cpuidFn(0x80000001)
	return edx&(1<<26) != 0
}

// EnableNoExecute sets EFER.NXE. Page-table entries carrying the no-execute
// bit fault as reserved-bit violations until this is done.
func EnableNoExecute() {
	WriteMSR(msrEFER, ReadMSR(msrEFER)|eferNXE)
}

// DisableWriteProtect clears CR0.WP and returns the previous CR0 value so it
// can later be handed to WriteCR0.
func DisableWriteProtect() uint64 {
	cr0 := ReadCR0()
	WriteCR0(cr0 &^ cr0WP)
	return cr0
}

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortWriteWord writes a uint16 value to the requested port.
func PortWriteWord(port uint16, val uint16)

// PortWriteDword writes a uint32 value to the requested port.
func PortWriteDword(port uint16, val uint32)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8

// PortReadWord reads a uint16 value from the requested port.
func PortReadWord(port uint16) uint16

// PortReadDword reads a uint32 value from the requested port.
func PortReadDword(port uint16) uint32
