// Package bootinfo defines the data handed from the loader to the kernel and
// the fixed virtual layout both halves agree on.
package bootinfo

import (
	"kestrel/kernel"
	"kestrel/kernel/mm"
)

const (
	// PhysMapOffset is the virtual address at which all physical memory is
	// mapped: physical address p is also reachable at p+PhysMapOffset.
	PhysMapOffset = uintptr(0x100000000000)

	// KernelStackBottom is the lowest virtual address of the kernel stack.
	KernelStackBottom = uintptr(0xffffff8000000000)

	// KernelStackPages is the size of the kernel stack in pages.
	KernelStackPages = 64

	// MaxMemoryMapEntries is the capacity of MemoryMap.
	MaxMemoryMapEntries = 512
)

// MemoryType is the type tag of a memory region. Values below 0x80000000 are
// assigned by the firmware; the loader tags its own allocations with the
// custom types so they can be told apart later.
type MemoryType uint32

// Firmware memory types.
const (
	MemoryTypeReserved MemoryType = iota
	MemoryTypeLoaderCode
	MemoryTypeLoaderData
	MemoryTypeBootServicesCode
	MemoryTypeBootServicesData
	MemoryTypeRuntimeServicesCode
	MemoryTypeRuntimeServicesData
	MemoryTypeConventional
	MemoryTypeUnusable
	MemoryTypeACPIReclaim
	MemoryTypeACPINVS
	MemoryTypeMMIO
	MemoryTypeMMIOPortSpace
	MemoryTypePalCode
	MemoryTypePersistent
)

// Loader memory types.
const (
	MemoryTypePageTable MemoryType = 0x80000000 + iota
	MemoryTypeKernelStack
	MemoryTypeKernelArgs
)

var memoryTypeNames = [...]string{
	MemoryTypeReserved:            "reserved",
	MemoryTypeLoaderCode:          "loader code",
	MemoryTypeLoaderData:          "loader data",
	MemoryTypeBootServicesCode:    "boot services code",
	MemoryTypeBootServicesData:    "boot services data",
	MemoryTypeRuntimeServicesCode: "runtime services code",
	MemoryTypeRuntimeServicesData: "runtime services data",
	MemoryTypeConventional:        "available",
	MemoryTypeUnusable:            "unusable",
	MemoryTypeACPIReclaim:         "ACPI reclaimable",
	MemoryTypeACPINVS:             "ACPI NVS",
	MemoryTypeMMIO:                "MMIO",
	MemoryTypeMMIOPortSpace:       "MMIO port space",
	MemoryTypePalCode:             "PAL code",
	MemoryTypePersistent:          "persistent",
}

// String implements fmt.Stringer for MemoryType.
func (t MemoryType) String() string {
	switch t {
	case MemoryTypePageTable:
		return "page tables"
	case MemoryTypeKernelStack:
		return "kernel stack"
	case MemoryTypeKernelArgs:
		return "kernel args"
	}

	if int(t) < len(memoryTypeNames) {
		return memoryTypeNames[t]
	}
	return "unknown"
}

// Usable returns true for regions the kernel may reuse once the firmware
// boot services are gone.
func (t MemoryType) Usable() bool {
	switch t {
	case MemoryTypeConventional, MemoryTypeLoaderCode, MemoryTypeLoaderData,
		MemoryTypeBootServicesCode, MemoryTypeBootServicesData:
		return true
	}
	return false
}

// Runtime returns true for regions that must stay mapped for firmware
// runtime services.
func (t MemoryType) Runtime() bool {
	return t == MemoryTypeRuntimeServicesCode || t == MemoryTypeRuntimeServicesData
}

// MemoryDescriptor describes a contiguous physical memory region.
type MemoryDescriptor struct {
	Type MemoryType

	PhysStart uintptr

	// VirtStart is zero until the memory map is relocated.
	VirtStart uintptr

	// PageCount is the size of the region in 4 KiB pages.
	PageCount uint64

	// Attribute holds the firmware capability bits for the region.
	Attribute uint64
}

// End returns the first physical address after the region.
func (d *MemoryDescriptor) End() uintptr {
	return d.PhysStart + uintptr(d.PageCount)*mm.PageSize
}

var errMemoryMapFull = &kernel.Error{Module: "bootinfo", Message: "memory map has more entries than MaxMemoryMapEntries"}

// MemoryMap is a fixed-capacity copy of the firmware memory map. It lives
// inside KernelArgs so it needs no heap.
type MemoryMap struct {
	Entries [MaxMemoryMapEntries]MemoryDescriptor
	Len     int
}

// Reset drops all entries.
func (m *MemoryMap) Reset() {
	m.Len = 0
}

// Append adds an entry or fails if the map is full.
func (m *MemoryMap) Append(desc MemoryDescriptor) *kernel.Error {
	if m.Len == len(m.Entries) {
		return errMemoryMapFull
	}

	m.Entries[m.Len] = desc
	m.Len++
	return nil
}

// MemoryMapVisitor is invoked by Visit for each entry. Returning false stops
// the iteration.
type MemoryMapVisitor func(*MemoryDescriptor) bool

// Visit calls visitor for every entry in order.
func (m *MemoryMap) Visit(visitor MemoryMapVisitor) {
	for i := 0; i < m.Len; i++ {
		if !visitor(&m.Entries[i]) {
			return
		}
	}
}

// Relocate sets the virtual start of every entry to its physical start plus
// offset.
func (m *MemoryMap) Relocate(offset uintptr) {
	for i := 0; i < m.Len; i++ {
		m.Entries[i].VirtStart = m.Entries[i].PhysStart + offset
	}
}

// PageTotal returns the number of pages in entries accepted by filter, or in
// all entries when filter is nil.
func (m *MemoryMap) PageTotal(filter func(MemoryType) bool) uint64 {
	var total uint64
	for i := 0; i < m.Len; i++ {
		if filter == nil || filter(m.Entries[i].Type) {
			total += m.Entries[i].PageCount
		}
	}
	return total
}

// PixelFormat is the layout of a framebuffer pixel.
type PixelFormat uint32

// The supported pixel formats; the first two are 32 bits per pixel with 8
// bits per channel.
const (
	PixelFormatRGB PixelFormat = iota
	PixelFormatBGR
	PixelFormatBitmask
	PixelFormatBltOnly
)

// FramebufferInfo describes the linear framebuffer selected by the loader.
type FramebufferInfo struct {
	// Base is the framebuffer address. The loader stores the physical
	// address; Transfer rewrites it to the offset-mapped virtual address.
	Base uintptr

	// Size is the framebuffer length in bytes.
	Size uintptr

	Width  uint32
	Height uint32

	// Stride is the number of pixels per scan line, which may exceed Width.
	Stride uint32

	Format PixelFormat
}

// KernelArgs is everything the kernel receives from the loader.
type KernelArgs struct {
	Framebuffer FramebufferInfo
	MemoryMap   MemoryMap

	// RuntimeServices is the virtual address of the firmware runtime
	// services table, valid after the virtual address map switch.
	RuntimeServices uintptr
}
