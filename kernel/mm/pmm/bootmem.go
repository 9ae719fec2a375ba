// Package pmm hands out physical frames to the kernel once firmware boot
// services are gone.
package pmm

import (
	"kestrel/bootinfo"
	"kestrel/kernel"
	"kestrel/kernel/mm"
)

const (
	// LowMemoryLimit is the first physical address the allocator hands out.
	// Legacy BIOS areas and real-mode structures live below it.
	LowMemoryLimit = 0x100000
)

var (
	// BootMem is the allocator used by the kernel until a reclaiming
	// allocator exists.
	BootMem BootMemAllocator

	errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// Free reports whether a region of type t holds no live data once the kernel
// runs. Loader code and data are excluded as the kernel image is part of the
// loader image, and so are the regions the loader tagged for the kernel.
func Free(t bootinfo.MemoryType) bool {
	switch t {
	case bootinfo.MemoryTypeConventional,
		bootinfo.MemoryTypeBootServicesCode,
		bootinfo.MemoryTypeBootServicesData:
		return true
	default:
		return false
	}
}

// BootMemAllocator is a rudimentary frame allocator that walks the free
// regions of the memory map in order and returns the frame after the last
// one it handed out. Frames cannot be freed.
type BootMemAllocator struct {
	memMap *bootinfo.MemoryMap

	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// lastAllocFrame is only meaningful once allocCount > 0.
	lastAllocFrame mm.Frame
}

// Init points the allocator at m and forgets previous allocations.
func (alloc *BootMemAllocator) Init(m *bootinfo.MemoryMap) {
	*alloc = BootMemAllocator{memMap: m}
}

// AllocCount returns the number of frames handed out since Init.
func (alloc *BootMemAllocator) AllocCount() uint64 {
	return alloc.allocCount
}

// AllocFrame reserves the next free frame. It returns an error once every
// free region is exhausted.
func (alloc *BootMemAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if alloc.memMap == nil {
		return mm.InvalidFrame, errBootAllocOutOfMemory
	}

	lowest := mm.FrameFromAddress(LowMemoryLimit)

	for i := 0; i < alloc.memMap.Len; i++ {
		region := &alloc.memMap.Entries[i]
		if !Free(region.Type) || region.PageCount == 0 {
			continue
		}

		// UEFI regions are page aligned.
		startFrame := mm.FrameFromAddress(region.PhysStart)
		endFrame := startFrame + mm.Frame(region.PageCount) - 1
		if startFrame < lowest {
			startFrame = lowest
		}
		if startFrame > endFrame {
			continue
		}

		next := startFrame
		if alloc.allocCount != 0 {
			// Skip over already allocated regions.
			if alloc.lastAllocFrame >= endFrame {
				continue
			}
			if alloc.lastAllocFrame >= startFrame {
				next = alloc.lastAllocFrame + 1
			}
		}

		alloc.lastAllocFrame = next
		alloc.allocCount++
		return next, nil
	}

	return mm.InvalidFrame, errBootAllocOutOfMemory
}
