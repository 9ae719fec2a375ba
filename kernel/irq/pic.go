// Package irq drives the legacy 8259 interrupt controllers and the 8253/8254
// interval timer, and acknowledges hardware interrupts.
package irq

import (
	"kestrel/kernel/cpu"
	"kestrel/kernel/gate"
	"kestrel/kernel/sync"
)

const (
	// PICOffset is the first vector used by the remapped master PIC. The
	// slave PIC follows it.
	PICOffset = 32

	// TimerVector and KeyboardVector are the vectors of IRQ 0 and IRQ 1.
	TimerVector    = gate.InterruptNumber(PICOffset)
	KeyboardVector = gate.InterruptNumber(PICOffset + 1)
)

const (
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xa0
	picSlaveData     = 0xa1

	// unused port; writing to it gives the PIC time to settle
	ioWaitPort = 0x80

	icw1Init = 0x10
	icw1ICW4 = 0x01
	icw4Mode = 0x01 // 8086 mode

	// the slave is wired to IRQ 2 of the master
	slaveOnIRQ2  = 0x04
	slaveCascade = 0x02

	cmdEndOfInterrupt = 0x20

	// Only the timer and the keyboard lines are unmasked.
	masterMask = 0xfc
	slaveMask  = 0xff
)

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte

	// PICs guards the controller pair shared by every interrupt handler.
	PICs = sync.NewIRQLock(NewChainedPICs(PICOffset, PICOffset+8))
)

type pic struct {
	offset  uint8
	command uint16
	data    uint16
}

func (p *pic) handlesInterrupt(vector uint8) bool {
	return vector >= p.offset && vector < p.offset+8
}

func (p *pic) endOfInterrupt() {
	portWriteByteFn(p.command, cmdEndOfInterrupt)
}

// ChainedPICs is the master/slave 8259 pair found on PC compatibles.
type ChainedPICs struct {
	master pic
	slave  pic
}

// NewChainedPICs returns a pair whose interrupts start at the given vectors.
func NewChainedPICs(masterOffset, slaveOffset uint8) ChainedPICs {
	return ChainedPICs{
		master: pic{offset: masterOffset, command: picMasterCommand, data: picMasterData},
		slave:  pic{offset: slaveOffset, command: picSlaveCommand, data: picSlaveData},
	}
}

// Initialize remaps both controllers to their vector offsets, keeping the
// masks they had before.
func (c *ChainedPICs) Initialize() {
	masterSaved, slaveSaved := c.ReadMasks()

	ioWait := func() { portWriteByteFn(ioWaitPort, 0) }

	portWriteByteFn(c.master.command, icw1Init|icw1ICW4)
	ioWait()
	portWriteByteFn(c.slave.command, icw1Init|icw1ICW4)
	ioWait()

	portWriteByteFn(c.master.data, c.master.offset)
	ioWait()
	portWriteByteFn(c.slave.data, c.slave.offset)
	ioWait()

	portWriteByteFn(c.master.data, slaveOnIRQ2)
	ioWait()
	portWriteByteFn(c.slave.data, slaveCascade)
	ioWait()

	portWriteByteFn(c.master.data, icw4Mode)
	ioWait()
	portWriteByteFn(c.slave.data, icw4Mode)
	ioWait()

	c.WriteMasks(masterSaved, slaveSaved)
}

// ReadMasks returns the interrupt masks of both controllers. A set bit
// disables the line.
func (c *ChainedPICs) ReadMasks() (uint8, uint8) {
	return portReadByteFn(c.master.data), portReadByteFn(c.slave.data)
}

// WriteMasks sets the interrupt masks of both controllers.
func (c *ChainedPICs) WriteMasks(master, slave uint8) {
	portWriteByteFn(c.master.data, master)
	portWriteByteFn(c.slave.data, slave)
}

// HandlesInterrupt returns true if vector belongs to one of the controllers.
func (c *ChainedPICs) HandlesInterrupt(vector uint8) bool {
	return c.master.handlesInterrupt(vector) || c.slave.handlesInterrupt(vector)
}

// NotifyEndOfInterrupt acknowledges vector. Interrupts from the slave must be
// acknowledged on both controllers; vectors not owned by either are ignored.
func (c *ChainedPICs) NotifyEndOfInterrupt(vector uint8) {
	if !c.HandlesInterrupt(vector) {
		return
	}

	if c.slave.handlesInterrupt(vector) {
		c.slave.endOfInterrupt()
	}
	c.master.endOfInterrupt()
}

// EndOfInterrupt acknowledges vector on the shared controller pair.
func EndOfInterrupt(vector gate.InterruptNumber) {
	g := PICs.Acquire()
	g.Value().NotifyEndOfInterrupt(uint8(vector))
	g.Release()
}
