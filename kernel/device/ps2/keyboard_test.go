package ps2

import (
	"bytes"
	"image/color"
	"strings"
	"testing"

	"kestrel/kernel/cpu"
	"kestrel/kernel/diag"
	"kestrel/kernel/gate"
	"kestrel/kernel/irq"
	"kestrel/kernel/sync"
	"kestrel/kernel/task"
)

type pixel struct {
	x, y int16
}

type fakeStrip struct {
	width  int16
	lit    map[pixel]color.RGBA
	frames int
}

func (s *fakeStrip) Size() (int16, int16) { return s.width, 1 }

func (s *fakeStrip) SetPixel(x, y int16, c color.RGBA) {
	if s.lit == nil {
		s.lit = make(map[pixel]color.RGBA)
	}
	s.lit[pixel{x, y}] = c
}

func (s *fakeStrip) Display() error {
	s.frames++
	return nil
}

// setupKeyboardTest feeds the handler from input and records EOIs.
func setupKeyboardTest(t *testing.T, input []byte) (eois *[]gate.InterruptNumber, log *bytes.Buffer) {
	var acked []gate.InterruptNumber
	buf := new(bytes.Buffer)

	portReadByteFn = func(port uint16) uint8 {
		if port != dataPort {
			t.Errorf("unexpected read from port 0x%x", port)
		}
		b := input[0]
		input = input[1:]
		return b
	}
	endOfInterruptFn = func(vector gate.InterruptNumber) {
		acked = append(acked, vector)
	}

	prevOps := sync.SwapInterruptOps(sync.SoftInterruptOps(false))
	diag.SetSerial(buf)
	diag.SetLevel(diag.LevelDebug)
	Scancodes = task.WakeQueue{}

	t.Cleanup(func() {
		portReadByteFn = cpu.PortReadByte
		endOfInterruptFn = irq.EndOfInterrupt
		handleInterruptFn = gate.HandleInterrupt
		diag.SetSerial(nil)
		diag.SetLevel(diag.LevelInfo)
		sync.SwapInterruptOps(prevOps)
	})

	return &acked, buf
}

func TestInit(t *testing.T) {
	setupKeyboardTest(t, nil)

	var installed gate.InterruptNumber
	handleInterruptFn = func(vector gate.InterruptNumber, ist uint8, _ gate.Handler) {
		installed = vector
		if ist != 0 {
			t.Errorf("expected keyboard handler not to use an IST stack; got %d", ist)
		}
	}

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	if installed != irq.KeyboardVector {
		t.Fatalf("expected handler for vector %d; got %d", irq.KeyboardVector, installed)
	}

	// The queue capacity is ScancodeQueueCapacity.
	for i := 0; i < ScancodeQueueCapacity; i++ {
		if !Scancodes.Push(byte(i)) {
			t.Fatalf("push %d failed", i)
		}
	}
	if Scancodes.Push(0) {
		t.Fatal("expected push beyond capacity to fail")
	}
}

func TestKeypressScenario(t *testing.T) {
	eois, log := setupKeyboardTest(t, []byte{0x1e, 0x9e})
	if err := Scancodes.Init(ScancodeQueueCapacity); err != nil {
		t.Fatal(err)
	}

	var (
		exec  task.Executor
		strip = &fakeStrip{width: 16}
		kp    = NewKeypressTask(&Scancodes, strip)
	)

	if _, err := exec.Spawn(kp); err != nil {
		t.Fatal(err)
	}
	exec.RunReady()

	keyboardHandler(nil)
	keyboardHandler(nil)
	exec.RunReady()

	if len(*eois) != 2 || (*eois)[0] != irq.KeyboardVector || (*eois)[1] != irq.KeyboardVector {
		t.Fatalf("expected one EOI per interrupt; got %v", *eois)
	}

	if exp := "[D] scancode 0x1e\n[D] scancode 0x9e\n"; log.String() != exp {
		t.Fatalf("expected log:\n%q\ngot:\n%q", exp, log.String())
	}

	if got := kp.Presses(); got != 1 {
		t.Fatalf("expected 1 key press; got %d", got)
	}

	if got, exp := strip.lit[pixel{0, 0}], stripColor; got != exp || len(strip.lit) != 1 || strip.frames != 1 {
		t.Fatalf("expected a single lit pixel at (0, 0); got %v", strip.lit)
	}

	if Scancodes.Len() != 0 {
		t.Fatalf("expected scancode queue to be drained; %d left", Scancodes.Len())
	}
}

func TestKeyboardOverflow(t *testing.T) {
	input := bytes.Repeat([]byte{0x1e}, 3)
	eois, log := setupKeyboardTest(t, input)
	if err := Scancodes.Init(2); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		keyboardHandler(nil)
	}

	if len(*eois) != 3 {
		t.Fatalf("expected every interrupt to be acknowledged; got %d EOIs", len(*eois))
	}

	if Scancodes.Dropped() != 1 {
		t.Fatalf("expected 1 dropped scancode; got %d", Scancodes.Dropped())
	}

	if exp := "[W] scancode queue full; dropped 0x1e (1 dropped so far)"; !strings.Contains(log.String(), exp) {
		t.Fatalf("expected log to contain %q; got %q", exp, log.String())
	}
}

func TestKeypressTaskWithoutStrip(t *testing.T) {
	setupKeyboardTest(t, nil)
	if err := Scancodes.Init(8); err != nil {
		t.Fatal(err)
	}

	kp := NewKeypressTask(&Scancodes, nil)
	for _, sc := range []byte{0x1e, 0x9e, extendedPrefix, 0x48, 0xc8, 0x30} {
		Scancodes.Push(sc)
	}

	var ctx task.Context
	if status := kp.Poll(&ctx); status != task.Pending {
		t.Fatalf("expected keypress task to stay pending; got %d", status)
	}

	if got := kp.Presses(); got != 3 {
		t.Fatalf("expected 3 key presses; got %d", got)
	}
}

func TestKeypressStripSaturates(t *testing.T) {
	setupKeyboardTest(t, nil)
	if err := Scancodes.Init(16); err != nil {
		t.Fatal(err)
	}

	strip := &fakeStrip{width: 3}
	kp := NewKeypressTask(&Scancodes, strip)
	for i := 0; i < 5; i++ {
		Scancodes.Push(0x1e)
	}

	var ctx task.Context
	kp.Poll(&ctx)

	if len(strip.lit) != 3 {
		t.Fatalf("expected strip to saturate at 3 pixels; got %d", len(strip.lit))
	}
	if strip.frames != 5 {
		t.Fatalf("expected the strip to be redrawn after each press; got %d", strip.frames)
	}
}
