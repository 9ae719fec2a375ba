// Package gate owns the x86_64 descriptor tables and routes every interrupt,
// exception and hardware IRQ to a Go handler.
package gate

import (
	"io"

	"kestrel/kernel/kfmt"
)

// Registers contains a snapshot of all register values when an exception or
// interrupt occurs. Its layout mirrors the stack built by the entry stubs.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// Vector is the interrupt number that was raised.
	Vector uint64

	// Info contains the error code pushed by the CPU for exceptions that
	// define one, and 0 otherwise.
	Info uint64

	// The return frame used by IRETQ
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Fprintf(w, "VEC = %16x ERR = %16x\n", r.Vector, r.Info)
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", r.RIP, r.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", r.RSP, r.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", r.RFlags)
}

// InterruptNumber describes an x86 interrupt/exception/trap slot.
type InterruptNumber uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = InterruptNumber(0)

	// Breakpoint is raised by the INT3 instruction.
	Breakpoint = InterruptNumber(3)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = InterruptNumber(6)

	// DoubleFault occurs when an unhandled exception occurs or when an
	// exception occurs within a running exception handler.
	DoubleFault = InterruptNumber(8)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page directory table (PDT) or one
	// of its entries is not present or when a privilege and/or RW
	// protection check fails.
	PageFaultException = InterruptNumber(14)
)

// Handler services an interrupt. Handlers run with interrupts disabled and
// must neither block nor allocate.
type Handler func(*Registers)

var (
	// gateEntryAddrFn and the descriptor loaders are mocked by tests.
	gateEntryAddrFn = gateEntryAddr

	handlers       [idtEntries]Handler
	defaultHandler Handler = unhandledInterrupt
)

// Init builds and loads the GDT (with its TSS) and an IDT whose entries all
// route to dispatchInterrupt, then installs the breakpoint and double-fault
// handlers. The double-fault handler runs on the dedicated IST stack so it
// can still report a kernel stack overflow.
func Init() {
	installGDT()
	installIDT()

	HandleInterrupt(DoubleFault, DoubleFaultIST, doubleFaultHandler)
	HandleInterrupt(Breakpoint, 0, breakpointHandler)
}

// HandleInterrupt ensures that the provided handler will be invoked when a
// particular interrupt number occurs. The value of the istOffset argument
// specifies the offset in the interrupt stack table (if 0 then IST is not
// used).
func HandleInterrupt(intNumber InterruptNumber, istOffset uint8, handler Handler) {
	handlers[intNumber] = handler
	idt[intNumber] = newInterruptGate(gateEntryAddrFn(uint8(intNumber)), istOffset)
}

// SetDefaultHandler sets the handler for every vector without a dedicated one.
func SetDefaultHandler(handler Handler) {
	defaultHandler = handler
}

// dispatchInterrupt is invoked by the entry stubs with a pointer to the
// saved register frame.
func dispatchInterrupt(regs *Registers) {
	if handler := handlers[uint8(regs.Vector)]; handler != nil {
		handler(regs)
		return
	}

	defaultHandler(regs)
}

// gateEntryAddr returns the address of the entry stub for vector.
func gateEntryAddr(vector uint8) uintptr

// gateCommon is the shared tail of the entry stubs; see gate_amd64.s.
func gateCommon()
