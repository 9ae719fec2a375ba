// Package serial drives a 16550-compatible UART as a write-only diagnostic
// line.
package serial

import (
	"kestrel/kernel/cpu"
)

const (
	// COM1 is the I/O base of the first serial port.
	COM1 = 0x3f8

	// BaudRate is the line speed programmed by Init.
	BaudRate = 38400

	uartClock = 115200
)

// register offsets from the port base
const (
	regData        = 0 // THR/RBR, or divisor low byte when DLAB is set
	regIntEnable   = 1 // IER, or divisor high byte when DLAB is set
	regFIFOControl = 2
	regLineControl = 3
	regModemCtrl   = 4
	regLineStatus  = 5
)

const (
	lcrDLAB     = 0x80
	lcr8N1      = 0x03
	fcrEnable   = 0xc7 // enable, clear both FIFOs, 14 byte threshold
	mcrDTRRTS   = 0x0b // DTR, RTS and OUT2
	lsrTHREmpty = 0x20
)

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte
)

// Port is a UART identified by its I/O base.
type Port uint16

// Init programs the port for BaudRate, 8 data bits, no parity and one stop
// bit with FIFOs enabled and interrupts disabled.
func (p Port) Init() {
	divisor := uint16(uartClock / BaudRate)

	p.out(regIntEnable, 0)
	p.out(regLineControl, lcrDLAB)
	p.out(regData, uint8(divisor))
	p.out(regIntEnable, uint8(divisor>>8))
	p.out(regLineControl, lcr8N1)
	p.out(regFIFOControl, fcrEnable)
	p.out(regModemCtrl, mcrDTRRTS)
}

// WriteByte sends b once the transmit holding register is empty. A '\n' is
// sent as "\r\n".
func (p Port) WriteByte(b byte) error {
	if b == '\n' {
		p.send('\r')
	}
	p.send(b)
	return nil
}

// Write implements io.Writer.
func (p Port) Write(data []byte) (int, error) {
	for _, b := range data {
		p.WriteByte(b)
	}
	return len(data), nil
}

func (p Port) send(b byte) {
	for portReadByteFn(uint16(p)+regLineStatus)&lsrTHREmpty == 0 {
	}
	p.out(regData, b)
}

func (p Port) out(reg uint16, val uint8) {
	portWriteByteFn(uint16(p)+reg, val)
}
