package irq

import (
	"sync/atomic"

	"kestrel/kernel/diag"
	"kestrel/kernel/gate"
)

const (
	// PITDivisor sets the timer to fire about 200 times per second
	// (1193182 Hz / 5966).
	PITDivisor = 5966

	// TicksPerReport is the number of ticks between two timer log lines.
	TicksPerReport = 200

	pitChannel0 = 0x40
	pitCommand  = 0x43

	// channel 0, lobyte/hibyte access, rate generator, binary
	pitMode = 0x34
)

var (
	handleInterruptFn   = gate.HandleInterrupt
	setDefaultHandlerFn = gate.SetDefaultHandler

	ticks uint64
)

// Init remaps the PICs, unmasks the timer and keyboard lines, programs the
// timer and installs the timer and default handlers. Interrupts must still be
// disabled.
func Init() {
	g := PICs.Acquire()
	pics := g.Value()
	pics.Initialize()
	pics.WriteMasks(masterMask, slaveMask)
	g.Release()

	programTimer(PITDivisor)

	handleInterruptFn(TimerVector, 0, timerHandler)
	setDefaultHandlerFn(genericHandler)
}

// Ticks returns the number of timer interrupts since Init.
func Ticks() uint64 {
	return atomic.LoadUint64(&ticks)
}

func programTimer(divisor uint16) {
	portWriteByteFn(pitCommand, pitMode)
	portWriteByteFn(pitChannel0, uint8(divisor))
	portWriteByteFn(pitChannel0, uint8(divisor>>8))
}

func timerHandler(_ *gate.Registers) {
	if n := atomic.AddUint64(&ticks, 1); n%TicksPerReport == 0 {
		diag.Infof("timer: %d seconds", n/TicksPerReport)
	}

	EndOfInterrupt(TimerVector)
}

// genericHandler handles every vector without a dedicated handler. Stray
// interrupts are harmless so they are logged and acknowledged.
func genericHandler(regs *gate.Registers) {
	diag.Warnf("unhandled interrupt %d (error code 0x%x)", uint8(regs.Vector), regs.Info)
	gate.DumpRegisters(regs)

	EndOfInterrupt(gate.InterruptNumber(regs.Vector))
}
