package pmm

import (
	"testing"

	"kestrel/bootinfo"
	"kestrel/kernel/mm"
)

func testMemoryMap() *bootinfo.MemoryMap {
	var m bootinfo.MemoryMap
	for _, desc := range []bootinfo.MemoryDescriptor{
		// partially below LowMemoryLimit: frames 0x100-0x101 usable
		{Type: bootinfo.MemoryTypeConventional, PhysStart: 0xfe000, PageCount: 4},
		{Type: bootinfo.MemoryTypeLoaderCode, PhysStart: 0x102000, PageCount: 8},
		{Type: bootinfo.MemoryTypeBootServicesData, PhysStart: 0x200000, PageCount: 3},
		{Type: bootinfo.MemoryTypeKernelStack, PhysStart: 0x300000, PageCount: 64},
		{Type: bootinfo.MemoryTypeConventional, PhysStart: 0x400000, PageCount: 0},
		{Type: bootinfo.MemoryTypeBootServicesCode, PhysStart: 0x500000, PageCount: 2},
		// entirely below LowMemoryLimit
		{Type: bootinfo.MemoryTypeConventional, PhysStart: 0x1000, PageCount: 16},
	} {
		m.Append(desc)
	}
	return &m
}

func TestBootMemAllocator(t *testing.T) {
	var alloc BootMemAllocator
	alloc.Init(testMemoryMap())

	exp := []mm.Frame{0x100, 0x101, 0x200, 0x201, 0x202, 0x500, 0x501}
	for i, expFrame := range exp {
		frame, err := alloc.AllocFrame()
		if err != nil {
			t.Fatalf("[frame %d] unexpected error: %v", i, err)
		}
		if frame != expFrame {
			t.Fatalf("[frame %d] expected frame 0x%x; got 0x%x", i, expFrame, frame)
		}
	}

	if frame, err := alloc.AllocFrame(); err != errBootAllocOutOfMemory || frame.Valid() {
		t.Fatalf("expected errBootAllocOutOfMemory; got frame 0x%x, err %v", frame, err)
	}

	if got := alloc.AllocCount(); got != uint64(len(exp)) {
		t.Fatalf("expected alloc count %d; got %d", len(exp), got)
	}

	// Init resets the allocator.
	alloc.Init(testMemoryMap())
	if frame, _ := alloc.AllocFrame(); frame != 0x100 {
		t.Fatalf("expected allocation to restart at 0x100; got 0x%x", frame)
	}
}

func TestBootMemAllocatorWithoutMap(t *testing.T) {
	var alloc BootMemAllocator
	if _, err := alloc.AllocFrame(); err != errBootAllocOutOfMemory {
		t.Fatalf("expected errBootAllocOutOfMemory; got %v", err)
	}
}

func TestFree(t *testing.T) {
	specs := []struct {
		typ bootinfo.MemoryType
		exp bool
	}{
		{bootinfo.MemoryTypeConventional, true},
		{bootinfo.MemoryTypeBootServicesCode, true},
		{bootinfo.MemoryTypeBootServicesData, true},
		{bootinfo.MemoryTypeLoaderCode, false},
		{bootinfo.MemoryTypeLoaderData, false},
		{bootinfo.MemoryTypeRuntimeServicesData, false},
		{bootinfo.MemoryTypePageTable, false},
		{bootinfo.MemoryTypeKernelStack, false},
		{bootinfo.MemoryTypeKernelArgs, false},
	}

	for specIndex, spec := range specs {
		if got := Free(spec.typ); got != spec.exp {
			t.Errorf("[spec %d] expected Free(%s) to be %t", specIndex, spec.typ.String(), spec.exp)
		}
	}
}
