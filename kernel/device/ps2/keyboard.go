// Package ps2 services the PS/2 keyboard line. The interrupt handler only
// moves raw scancodes from the controller into a wake queue; decoding happens
// in a task.
package ps2

import (
	"image/color"

	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/diag"
	"kestrel/kernel/gate"
	"kestrel/kernel/irq"
	"kestrel/kernel/task"

	"tinygo.org/x/drivers"
)

const (
	// ScancodeQueueCapacity is the number of scancodes buffered between the
	// interrupt handler and the keypress task.
	ScancodeQueueCapacity = 100

	dataPort = 0x60

	// scancode set 1
	releaseBit     = 0x80
	extendedPrefix = 0xe0
)

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	portReadByteFn    = cpu.PortReadByte
	endOfInterruptFn  = irq.EndOfInterrupt
	handleInterruptFn = gate.HandleInterrupt

	// Scancodes receives every byte read from the keyboard controller.
	Scancodes task.WakeQueue

	stripColor = color.RGBA{R: 0x00, G: 0xff, B: 0x80, A: 0xff}
)

// Init sets up the scancode queue and installs the keyboard handler.
func Init() *kernel.Error {
	if err := Scancodes.Init(ScancodeQueueCapacity); err != nil {
		return err
	}

	handleInterruptFn(irq.KeyboardVector, 0, keyboardHandler)
	return nil
}

func keyboardHandler(_ *gate.Registers) {
	scancode := portReadByteFn(dataPort)
	if !Scancodes.Push(scancode) {
		diag.Warnf("scancode queue full; dropped 0x%2x (%d dropped so far)", scancode, Scancodes.Dropped())
	}

	endOfInterruptFn(irq.KeyboardVector)
}

// KeypressTask consumes scancodes. It logs each one and counts key presses;
// when a display is attached the count is drawn as a strip of lit pixels
// along its top row, saturating at the display width.
type KeypressTask struct {
	queue   *task.WakeQueue
	strip   drivers.Displayer
	presses int
}

// NewKeypressTask returns a task draining queue. strip may be nil.
func NewKeypressTask(queue *task.WakeQueue, strip drivers.Displayer) *KeypressTask {
	return &KeypressTask{queue: queue, strip: strip}
}

// Presses returns the number of key presses seen so far.
func (k *KeypressTask) Presses() int {
	return k.presses
}

// Poll drains the queue. It never completes.
func (k *KeypressTask) Poll(ctx *task.Context) task.Status {
	for {
		scancode, ok := k.queue.PollNext(ctx)
		if !ok {
			return task.Pending
		}

		k.handle(scancode)
	}
}

func (k *KeypressTask) handle(scancode byte) {
	diag.Debugf("scancode 0x%2x", scancode)

	if scancode == extendedPrefix || scancode&releaseBit != 0 {
		return
	}

	k.presses++
	if k.strip == nil {
		return
	}

	// The console scrolls the whole framebuffer so the strip is redrawn in
	// full every time.
	width, _ := k.strip.Size()
	lit := k.presses
	if lit > int(width) {
		lit = int(width)
	}

	for x := 0; x < lit; x++ {
		k.strip.SetPixel(int16(x), 0, stripColor)
	}
	k.strip.Display()
}
