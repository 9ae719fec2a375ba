package vmm

import (
	"unsafe"

	"kestrel/kernel/mm"
)

// PageTable is a single page-sized node of the paging hierarchy.
type PageTable [entriesPerTable]pageTableEntry

// TableResolver gives access to the page table stored in a physical frame.
// The MMU only knows physical addresses, so the code that edits the tables
// needs some view of physical memory to reach them.
type TableResolver interface {
	Table(frame mm.Frame) *PageTable
}

// OffsetResolver reaches page tables through a linear mapping of physical
// memory that starts at the given virtual offset. The loader runs with the
// firmware's identity mapping (offset 0); the kernel uses PhysMapOffset.
type OffsetResolver uintptr

// Table implements TableResolver.
func (off OffsetResolver) Table(frame mm.Frame) *PageTable {
	return (*PageTable)(unsafe.Pointer(uintptr(off) + frame.Address()))
}
