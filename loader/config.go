package loader

import "kestrel/bootinfo"

// Resolution is a display resolution in pixels.
type Resolution struct {
	Width  uint32
	Height uint32
}

// Config holds the handoff parameters.
type Config struct {
	// Resolutions lists the accepted display resolutions in order of
	// preference.
	Resolutions []Resolution

	// PhysMapOffset is the virtual address where physical memory is mapped.
	PhysMapOffset uintptr

	// StackBottom is the lowest virtual address of the kernel stack.
	StackBottom uintptr
	StackPages  uint64
}

// DefaultConfig returns the layout the kernel is built for.
func DefaultConfig() Config {
	return Config{
		Resolutions: []Resolution{
			{1920, 1080},
			{1600, 900},
			{1280, 720},
			{1024, 768},
			{800, 600},
			{640, 480},
		},
		PhysMapOffset: bootinfo.PhysMapOffset,
		StackBottom:   bootinfo.KernelStackBottom,
		StackPages:    bootinfo.KernelStackPages,
	}
}
