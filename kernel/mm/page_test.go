package mm

import (
	"testing"

	"kestrel/kernel"
)

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := uintptr(frameIndex<<PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestFrameAndPageFromAddress(t *testing.T) {
	specs := []struct {
		input uintptr
		exp   uintptr
	}{
		{0, 0},
		{4095, 0},
		{4096, 1},
		{4123, 1},
		{0x100000000000, 0x100000000},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.input); got != Frame(spec.exp) {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.exp, got)
		}

		if got := PageFromAddress(spec.input); got != Page(spec.exp) {
			t.Errorf("[spec %d] expected returned page to be %v; got %v", specIndex, spec.exp, got)
		}

		if got := PageFromAddress(spec.input).Address(); got != spec.exp<<PageShift {
			t.Errorf("[spec %d] expected page address to be 0x%x; got 0x%x", specIndex, spec.exp<<PageShift, got)
		}
	}
}

func TestFrameAllocatorFn(t *testing.T) {
	var allocCalled bool
	var alloc FrameAllocator = FrameAllocatorFn(func() (Frame, *kernel.Error) {
		allocCalled = true
		return FrameFromAddress(0xbadf00), nil
	})

	frame, err := alloc.AllocFrame()
	if err != nil {
		t.Fatal(err.Error())
	}

	if !allocCalled {
		t.Fatal("expected the wrapped function to be invoked")
	}

	if exp := FrameFromAddress(0xbadf00); frame != exp {
		t.Fatalf("expected frame %d; got %d", exp, frame)
	}
}

func TestPageSize(t *testing.T) {
	specs := []struct {
		size      Size
		bytes     uintptr
		pages     uint64
		name      string
		aligned   uintptr
		unaligned uintptr
	}{
		{Size4KiB, 4096, 1, "4KiB", 0x3000, 0x3010},
		{Size2MiB, 2 << 20, 512, "2MiB", 0x400000, 0x401000},
		{Size1GiB, 1 << 30, 262144, "1GiB", 0x80000000, 0x80200000},
	}

	for specIndex, spec := range specs {
		if got := spec.size.Bytes(); got != spec.bytes {
			t.Errorf("[spec %d] expected Bytes() to return %d; got %d", specIndex, spec.bytes, got)
		}

		if got := spec.size.Pages(); got != spec.pages {
			t.Errorf("[spec %d] expected Pages() to return %d; got %d", specIndex, spec.pages, got)
		}

		if got := spec.size.Name(); got != spec.name {
			t.Errorf("[spec %d] expected Name() to return %q; got %q", specIndex, spec.name, got)
		}

		if !spec.size.Aligned(spec.aligned) {
			t.Errorf("[spec %d] expected 0x%x to be aligned", specIndex, spec.aligned)
		}

		if spec.size.Aligned(spec.unaligned) {
			t.Errorf("[spec %d] expected 0x%x to not be aligned", specIndex, spec.unaligned)
		}
	}

	if PageSizes[0] != Size1GiB || PageSizes[len(PageSizes)-1] != Size4KiB {
		t.Fatal("expected PageSizes to be ordered from largest to smallest")
	}
}
