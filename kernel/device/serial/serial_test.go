package serial

import (
	"fmt"
	"testing"

	"kestrel/kernel/cpu"
)

type portWrite struct {
	port uint16
	val  uint8
}

func mockPorts(t *testing.T, lineStatus func() uint8) *[]portWrite {
	var writes []portWrite

	portWriteByteFn = func(port uint16, val uint8) {
		writes = append(writes, portWrite{port, val})
	}
	portReadByteFn = func(port uint16) uint8 {
		if port != COM1+regLineStatus {
			t.Errorf("unexpected read from port 0x%x", port)
		}
		return lineStatus()
	}

	t.Cleanup(func() {
		portWriteByteFn = cpu.PortWriteByte
		portReadByteFn = cpu.PortReadByte
	})

	return &writes
}

func TestInit(t *testing.T) {
	writes := mockPorts(t, func() uint8 { return lsrTHREmpty })

	Port(COM1).Init()

	exp := []portWrite{
		{COM1 + 1, 0x00},
		{COM1 + 3, 0x80},
		{COM1 + 0, 3}, // 115200 / 38400
		{COM1 + 1, 0},
		{COM1 + 3, 0x03},
		{COM1 + 2, 0xc7},
		{COM1 + 4, 0x0b},
	}

	if got, want := fmt.Sprint(*writes), fmt.Sprint(exp); got != want {
		t.Fatalf("expected port writes:\n%s\ngot:\n%s", want, got)
	}
}

func TestWrite(t *testing.T) {
	// The transmitter reports busy on every other poll.
	var polls int
	writes := mockPorts(t, func() uint8 {
		polls++
		if polls%2 == 1 {
			return 0
		}
		return lsrTHREmpty
	})

	n, err := Port(COM1).Write([]byte("ok\n"))
	if err != nil || n != 3 {
		t.Fatalf("expected Write to return (3, nil); got (%d, %v)", n, err)
	}

	var sent []byte
	for _, w := range *writes {
		if w.port != COM1 {
			t.Fatalf("unexpected write to port 0x%x", w.port)
		}
		sent = append(sent, w.val)
	}

	if exp := "ok\r\n"; string(sent) != exp {
		t.Fatalf("expected %q to be sent; got %q", exp, sent)
	}

	if exp := 2 * len(sent); polls != exp {
		t.Fatalf("expected %d line status polls; got %d", exp, polls)
	}
}
