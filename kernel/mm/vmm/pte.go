package vmm

import "kestrel/kernel/mm"

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uintptr

// pageTableEntry describes a page table entry. These entries encode
// a physical frame address and a set of flags. The actual format
// of the entry and flags is architecture-dependent.
type pageTableEntry uintptr

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) == uintptr(flags)
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uintptr(*pte) | uintptr(flags))
}

// Flags returns every non-address bit of the entry.
func (pte pageTableEntry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(uintptr(pte) &^ ptePhysPageMask)
}

// Frame returns the physical page frame that this page table entry points to.
func (pte pageTableEntry) Frame() mm.Frame {
	return mm.Frame((uintptr(pte) & ptePhysPageMask) >> mm.PageShift)
}

// SetFrame updates the page table entry to point the the given physical frame .
func (pte *pageTableEntry) SetFrame(frame mm.Frame) {
	*pte = (pageTableEntry)((uintptr(*pte) &^ ptePhysPageMask) | frame.Address())
}

// PhysAddress returns the base address of the page of the given size that
// this entry maps. Bit 12 of a huge entry selects the PAT and is not part of
// the address.
func (pte pageTableEntry) PhysAddress(size mm.Size) uintptr {
	return uintptr(pte) & ptePhysPageMask &^ (size.Bytes() - 1)
}

// leafLevel returns the page level whose entries map pages of the given size.
func leafLevel(size mm.Size) int {
	return pageLevels - 1 - int(size)
}

// tableIndex returns the index of the entry for virtAddr in a table at level.
func tableIndex(virtAddr uintptr, level int) int {
	return int((virtAddr >> pageLevelShifts[level]) & (entriesPerTable - 1))
}
