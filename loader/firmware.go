// Package loader prepares the address space the kernel runs in and hands
// control to it. It runs while the firmware boot services are still
// available and reaches the firmware only through the Firmware interface.
package loader

import (
	"kestrel/bootinfo"
	"kestrel/kernel"
)

// Mode describes a display mode offered by the firmware.
type Mode struct {
	Width  uint32
	Height uint32

	// Stride is the number of pixels per scan line.
	Stride uint32

	Format bootinfo.PixelFormat
}

// Display is the firmware graphics output device.
type Display interface {
	// ModeCount returns the number of modes; modes are numbered from 0.
	ModeCount() uint32

	QueryMode(n uint32) (Mode, *kernel.Error)
	SetMode(n uint32) *kernel.Error

	// Framebuffer returns the physical base address and size in bytes of
	// the linear framebuffer for the current mode.
	Framebuffer() (base, size uintptr)
}

// Firmware is the set of firmware services used during the handoff.
type Firmware interface {
	LocateDisplay() (Display, *kernel.Error)

	// MemoryMap replaces the contents of m with the current memory map
	// and returns the key that identifies this version of the map.
	MemoryMap(m *bootinfo.MemoryMap) (uintptr, *kernel.Error)

	// AllocatePages allocates count contiguous pages tagged with typ and
	// returns their physical address.
	AllocatePages(typ bootinfo.MemoryType, count uint64) (uintptr, *kernel.Error)

	// ExitBootServices terminates the boot services. The key must come
	// from the latest MemoryMap call.
	ExitBootServices(mapKey uintptr) *kernel.Error

	// SetVirtualAddressMap tells the firmware runtime services where
	// each region is mapped.
	SetVirtualAddressMap(m *bootinfo.MemoryMap) *kernel.Error

	// RuntimeServices returns the address of the runtime services table.
	RuntimeServices() uintptr
}
