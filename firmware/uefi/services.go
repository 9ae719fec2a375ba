// Package uefi binds the UEFI boot and runtime services needed to hand off
// to the kernel. It implements loader.Firmware.
package uefi

import (
	"unsafe"

	"kestrel/bootinfo"
	"kestrel/kernel"
	"kestrel/loader"
)

const (
	maxArgs = 6

	allocateAnyPages = 0

	// mapBufferSize leaves room for firmware descriptors larger than
	// memoryDescriptor.
	mapBufferSize = bootinfo.MaxMemoryMapEntries * 64
)

var (
	// callFn is mocked by tests.
	callFn = efiCall

	errBadSystemTable    = &kernel.Error{Module: "uefi", Message: "invalid system table signature"}
	errMemoryMapTooLarge = &kernel.Error{Module: "uefi", Message: "memory map does not fit in the buffer"}
	errBadDescriptorSize = &kernel.Error{Module: "uefi", Message: "firmware memory descriptor is too small"}
)

// Services gives access to the firmware tables of a running UEFI
// application.
type Services struct {
	imageHandle uintptr
	st          *systemTable
	bs          *bootServices

	// Firmware calls receive plain addresses, so everything the firmware
	// writes to lives here rather than on the goroutine stack, which may
	// move while the address is in flight.
	mapBuf      [mapBufferSize]byte
	mapSize     uintptr
	mapKey      uintptr
	descSize    uintptr
	descVersion uint32
	gop         *graphicsOutputProtocol
	pageAddr    uint64
}

// New validates the system table passed to the application entry point.
func New(imageHandle, systemTableAddr uintptr) (*Services, *kernel.Error) {
	st := (*systemTable)(unsafe.Pointer(systemTableAddr))
	if st == nil || st.Hdr.Signature != systemTableSignature {
		return nil, errBadSystemTable
	}

	return &Services{
		imageHandle: imageHandle,
		st:          st,
		bs:          (*bootServices)(unsafe.Pointer(st.BootServices)),
	}, nil
}

// call invokes a firmware function with up to maxArgs arguments.
func call(fn uintptr, args ...uintptr) Status {
	var regs [maxArgs]uintptr
	copy(regs[:], args)
	return Status(callFn(fn, &regs))
}

// LocateDisplay implements loader.Firmware.
func (s *Services) LocateDisplay() (loader.Display, *kernel.Error) {
	s.gop = nil
	status := call(s.bs.LocateProtocol,
		uintptr(unsafe.Pointer(&graphicsOutputProtocolGUID)),
		0,
		uintptr(unsafe.Pointer(&s.gop)),
	)
	if err := status.Err(); err != nil {
		return nil, err
	}

	return &display{gop: s.gop}, nil
}

// MemoryMap implements loader.Firmware.
func (s *Services) MemoryMap(m *bootinfo.MemoryMap) (uintptr, *kernel.Error) {
	s.mapSize = uintptr(len(s.mapBuf))
	s.mapKey = 0

	status := call(s.bs.GetMemoryMap,
		uintptr(unsafe.Pointer(&s.mapSize)),
		uintptr(unsafe.Pointer(&s.mapBuf[0])),
		uintptr(unsafe.Pointer(&s.mapKey)),
		uintptr(unsafe.Pointer(&s.descSize)),
		uintptr(unsafe.Pointer(&s.descVersion)),
	)
	if status == statusBufferSmall {
		return 0, errMemoryMapTooLarge
	}
	if err := status.Err(); err != nil {
		return 0, err
	}

	if s.descSize < unsafe.Sizeof(memoryDescriptor{}) {
		return 0, errBadDescriptorSize
	}

	m.Reset()
	for off := uintptr(0); off+s.descSize <= s.mapSize; off += s.descSize {
		desc := (*memoryDescriptor)(unsafe.Pointer(&s.mapBuf[off]))
		err := m.Append(bootinfo.MemoryDescriptor{
			Type:      bootinfo.MemoryType(desc.Type),
			PhysStart: uintptr(desc.PhysicalStart),
			VirtStart: uintptr(desc.VirtualStart),
			PageCount: desc.NumberOfPages,
			Attribute: desc.Attribute,
		})
		if err != nil {
			return 0, err
		}
	}

	return s.mapKey, nil
}

// AllocatePages implements loader.Firmware.
func (s *Services) AllocatePages(typ bootinfo.MemoryType, count uint64) (uintptr, *kernel.Error) {
	s.pageAddr = 0
	status := call(s.bs.AllocatePages,
		allocateAnyPages,
		uintptr(typ),
		uintptr(count),
		uintptr(unsafe.Pointer(&s.pageAddr)),
	)
	if err := status.Err(); err != nil {
		return 0, err
	}

	return uintptr(s.pageAddr), nil
}

// ExitBootServices implements loader.Firmware.
func (s *Services) ExitBootServices(mapKey uintptr) *kernel.Error {
	return call(s.bs.ExitBootServices, s.imageHandle, mapKey).Err()
}

// SetVirtualAddressMap implements loader.Firmware. Only the regions flagged
// as needed at runtime are passed to the firmware, in the descriptor format
// of the last memory map it returned.
func (s *Services) SetVirtualAddressMap(m *bootinfo.MemoryMap) *kernel.Error {
	var (
		size uintptr
		err  *kernel.Error
	)

	m.Visit(func(entry *bootinfo.MemoryDescriptor) bool {
		if entry.Attribute&memoryRuntime == 0 {
			return true
		}

		if size+s.descSize > uintptr(len(s.mapBuf)) {
			err = errMemoryMapTooLarge
			return false
		}

		desc := (*memoryDescriptor)(unsafe.Pointer(&s.mapBuf[size]))
		*desc = memoryDescriptor{
			Type:          uint32(entry.Type),
			PhysicalStart: uint64(entry.PhysStart),
			VirtualStart:  uint64(entry.VirtStart),
			NumberOfPages: entry.PageCount,
			Attribute:     entry.Attribute,
		}
		size += s.descSize
		return true
	})
	if err != nil {
		return err
	}

	rt := (*runtimeServices)(unsafe.Pointer(s.st.RuntimeServices))
	return call(rt.SetVirtualAddressMap,
		size,
		s.descSize,
		uintptr(s.descVersion),
		uintptr(unsafe.Pointer(&s.mapBuf[0])),
	).Err()
}

// RuntimeServices implements loader.Firmware. After SetVirtualAddressMap the
// firmware has already converted the pointer to its virtual address.
func (s *Services) RuntimeServices() uintptr {
	return s.st.RuntimeServices
}

// efiCall is implemented in assembly.
func efiCall(fn uintptr, args *[maxArgs]uintptr) uintptr
