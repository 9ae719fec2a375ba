package goruntime

import (
	"fmt"
	"testing"
	"unsafe"

	"kestrel/bootinfo"
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/irq"
	"kestrel/kernel/mm"
)

type mapCall struct {
	virt, phys uintptr
}

// mockMemory hands out frames starting at 0x1000 and records every mapping
// and page clear.
func mockMemory(t *testing.T) (maps *[]mapCall, cleared *[]uintptr) {
	var (
		mapped    []mapCall
		zeroed    []uintptr
		nextFrame = mm.Frame(0x1000)
	)

	frameAllocFn = func() (mm.Frame, *kernel.Error) {
		f := nextFrame
		nextFrame++
		return f, nil
	}
	mapFn = func(virt, phys uintptr) *kernel.Error {
		mapped = append(mapped, mapCall{virt, phys})
		return nil
	}
	memsetFn = func(addr uintptr, value byte, size uintptr) {
		if value != 0 || size != mm.PageSize {
			t.Errorf("expected a full page to be zeroed; got value %d, size %d", value, size)
		}
		zeroed = append(zeroed, addr)
	}

	prevNext := nextHeapAddr
	t.Cleanup(func() {
		frameAllocFn = allocFrame
		mapFn = mapHeapPage
		memsetFn = kernel.Memset
		nextHeapAddr = prevNext
	})

	return &mapped, &zeroed
}

func TestSysReserveOS(t *testing.T) {
	maps, _ := mockMemory(t)
	nextHeapAddr = HeapBase

	specs := []struct {
		reqSize uintptr
		expAddr uintptr
	}{
		{100 * mm.PageSize, HeapBase},
		// sizes are rounded up to a page
		{2*mm.PageSize - 1, HeapBase + 100*mm.PageSize},
		{1, HeapBase + 102*mm.PageSize},
		{0, HeapBase + 103*mm.PageSize},
	}

	for specIndex, spec := range specs {
		if got := uintptr(sysReserveOS(nil, spec.reqSize)); got != spec.expAddr {
			t.Errorf("[spec %d] expected reservation at 0x%x; got 0x%x", specIndex, spec.expAddr, got)
		}
	}

	if len(*maps) != 0 {
		t.Fatalf("expected reservations not to map anything; got %d mappings", len(*maps))
	}

	// The heap range is finite.
	nextHeapAddr = HeapLimit - mm.PageSize
	if ptr := sysReserveOS(nil, 2*mm.PageSize); ptr != nil {
		t.Fatalf("expected exhausted heap range to return nil; got %p", ptr)
	}
	if got := uintptr(sysReserveOS(nil, mm.PageSize)); got != HeapLimit-mm.PageSize {
		t.Fatalf("expected the last page to be reserved; got 0x%x", got)
	}
}

func TestSysMapOS(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		maps, cleared := mockMemory(t)

		sysMapOS(unsafe.Pointer(HeapBase+mm.PageSize), 3*mm.PageSize-1)

		expMaps := []mapCall{
			{HeapBase + mm.PageSize, 0x1000 << mm.PageShift},
			{HeapBase + 2*mm.PageSize, 0x1001 << mm.PageShift},
			{HeapBase + 3*mm.PageSize, 0x1002 << mm.PageShift},
		}
		if got, exp := fmt.Sprint(*maps), fmt.Sprint(expMaps); got != exp {
			t.Fatalf("expected mappings %s; got %s", exp, got)
		}

		for i, addr := range *cleared {
			if exp := bootinfo.PhysMapOffset + expMaps[i].phys; addr != exp {
				t.Errorf("[page %d] expected frame to be zeroed through the physical window at 0x%x; got 0x%x", i, exp, addr)
			}
		}
	})

	specs := []struct {
		name     string
		allocErr *kernel.Error
		mapErr   *kernel.Error
	}{
		{"alloc failure", &kernel.Error{Module: "test", Message: "out of memory"}, nil},
		{"map failure", nil, &kernel.Error{Module: "test", Message: "overlapping mapping"}},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			mockMemory(t)
			if spec.allocErr != nil {
				frameAllocFn = func() (mm.Frame, *kernel.Error) { return mm.InvalidFrame, spec.allocErr }
			}
			if spec.mapErr != nil {
				mapFn = func(_, _ uintptr) *kernel.Error { return spec.mapErr }
			}

			expErr := spec.allocErr
			if expErr == nil {
				expErr = spec.mapErr
			}

			defer func() {
				if err := recover(); err != expErr {
					t.Fatalf("expected sysMapOS to panic with %v; got %v", expErr, err)
				}
			}()

			sysMapOS(unsafe.Pointer(HeapBase), mm.PageSize)
		})
	}
}

func TestSysAllocOS(t *testing.T) {
	maps, _ := mockMemory(t)
	nextHeapAddr = HeapBase

	ptr := sysAllocOS(2 * mm.PageSize)
	if uintptr(ptr) != HeapBase {
		t.Fatalf("expected allocation at 0x%x; got %p", HeapBase, ptr)
	}
	if len(*maps) != 2 {
		t.Fatalf("expected 2 pages to be mapped; got %d", len(*maps))
	}

	if next := uintptr(sysReserveOS(nil, 1)); next != HeapBase+2*mm.PageSize {
		t.Fatalf("expected allocations to consume heap address space; next reservation at 0x%x", next)
	}

	frameAllocFn = func() (mm.Frame, *kernel.Error) {
		return mm.InvalidFrame, &kernel.Error{Module: "test", Message: "out of memory"}
	}
	if ptr = sysAllocOS(mm.PageSize); ptr != nil {
		t.Fatalf("expected failed allocation to return nil; got %p", ptr)
	}
}

func TestNanotime(t *testing.T) {
	defer func() { ticksFn = irq.Ticks }()
	ticksFn = func() uint64 { return 400 }

	if got, exp := nanotime1(), int64(2000000000); got != exp {
		t.Fatalf("expected %d ns after 400 ticks; got %d", exp, got)
	}
}

func TestReadRandom(t *testing.T) {
	defer func(seed int) { prngSeed = seed }(prngSeed)

	prngSeed = 1
	a := make([]byte, 16)
	if n := readRandom(a); n != len(a) {
		t.Fatalf("expected readRandom to fill %d bytes; got %d", len(a), n)
	}

	prngSeed = 1
	b := make([]byte, 16)
	readRandom(b)

	if string(a) != string(b) {
		t.Fatal("expected the same seed to produce the same stream")
	}

	var allZero = true
	for _, v := range a {
		allZero = allZero && v == 0
	}
	if allZero {
		t.Fatal("expected non-zero random data")
	}
}

func TestInit(t *testing.T) {
	var calls []string
	record := func(name string) func() {
		return func() { calls = append(calls, name) }
	}

	mallocInitFn = record("mallocinit")
	algInitFn = record("alginit")
	modulesInitFn = record("modulesinit")
	typeLinksInitFn = record("typelinksinit")
	itabsInitFn = record("itabsinit")
	activePDTFn = func() uintptr { return 0x42000 }
	defer func() {
		mallocInitFn = mallocInit
		algInitFn = algInit
		modulesInitFn = modulesInit
		typeLinksInitFn = typeLinksInit
		itabsInitFn = itabsInit
		activePDTFn = cpu.ActivePDT
	}()

	var m bootinfo.MemoryMap
	m.Append(bootinfo.MemoryDescriptor{Type: bootinfo.MemoryTypeConventional, PhysStart: 0x200000, PageCount: 1})

	if err := Init(&m); err != nil {
		t.Fatal(err)
	}

	if got, exp := fmt.Sprint(calls), "[mallocinit alginit modulesinit typelinksinit itabsinit]"; got != exp {
		t.Fatalf("expected runtime bootstrap order %s; got %s", exp, got)
	}

	if got := kernelSpace.Root(); got != mm.Frame(0x42) {
		t.Fatalf("expected the heap to be mapped into the active address space; got root frame 0x%x", got)
	}

	// Page tables for the heap come from the boot memory allocator.
	frame, err := bootFrames{}.AllocFrame()
	if err != nil || frame != mm.Frame(0x200) {
		t.Fatalf("expected frame 0x200 from the memory map; got 0x%x, %v", frame, err)
	}
}
