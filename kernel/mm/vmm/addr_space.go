// Package vmm builds and edits x86_64 4-level page tables.
package vmm

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/mm"
)

var (
	// switchPDTFn and activePDTFn are used by tests to override the CR3
	// accessors.
	switchPDTFn = cpu.SwitchPDT
	activePDTFn = cpu.ActivePDT

	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errOverlappingMapping = &kernel.Error{Module: "vmm", Message: "virtual address is already mapped"}
	errMisalignedMapping  = &kernel.Error{Module: "vmm", Message: "mapping addresses are not aligned to the page size"}
	errNoFrameAllocator   = &kernel.Error{Module: "vmm", Message: "a page table is missing and no frame allocator is available"}
	errPageCountMismatch  = &kernel.Error{Module: "vmm", Message: "mapped page count does not match the requested count"}
)

// AddressSpace is a page table hierarchy rooted at a P4 table. Tables are
// reached through a TableResolver and new intermediate tables are taken from
// a FrameAllocator. Tables are never freed.
type AddressSpace struct {
	root        mm.Frame
	tables      TableResolver
	frames      mm.FrameAllocator
	maxPageSize mm.Size
}

// NewAddressSpace wraps an existing P4 table. A nil allocator yields a
// read-only view; any Map call that needs a new table fails.
func NewAddressSpace(root mm.Frame, tables TableResolver, frames mm.FrameAllocator) *AddressSpace {
	as := new(AddressSpace)
	as.Init(root, tables, frames)
	return as
}

// Init sets up an AddressSpace in place, for callers that cannot allocate.
func (as *AddressSpace) Init(root mm.Frame, tables TableResolver, frames mm.FrameAllocator) {
	*as = AddressSpace{
		root:        root,
		tables:      tables,
		frames:      frames,
		maxPageSize: mm.Size2MiB,
	}
}

// New allocates an empty P4 table and returns an address space rooted at it.
func New(tables TableResolver, frames mm.FrameAllocator) (*AddressSpace, *kernel.Error) {
	root, err := allocTable(tables, frames)
	if err != nil {
		return nil, err
	}

	return NewAddressSpace(root, tables, frames), nil
}

// Active returns a read-only view of the address space currently loaded in CR3.
func Active(tables TableResolver) *AddressSpace {
	return NewAddressSpace(mm.FrameFromAddress(activePDTFn()), tables, nil)
}

// Root returns the frame holding the P4 table.
func (as *AddressSpace) Root() mm.Frame {
	return as.root
}

// SetMaxPageSize limits the page sizes MapRange may pick. The default is
// 2 MiB; 1 GiB pages must only be enabled when the CPU supports them.
func (as *AddressSpace) SetMaxPageSize(size mm.Size) {
	as.maxPageSize = size
}

// Clone copies the P4 table into a newly allocated frame. Both address spaces
// share every lower level table, so mappings added under an existing P4 entry
// are visible in both while new P4 entries are private to the clone.
func (as *AddressSpace) Clone() (*AddressSpace, *kernel.Error) {
	root, err := allocTable(as.tables, as.frames)
	if err != nil {
		return nil, err
	}

	*as.tables.Table(root) = *as.tables.Table(as.root)

	clone := NewAddressSpace(root, as.tables, as.frames)
	clone.maxPageSize = as.maxPageSize
	return clone, nil
}

// Activate loads the P4 table into CR3.
func (as *AddressSpace) Activate() {
	switchPDTFn(as.root.Address())
}

// Map installs a single mapping of the given size from virtAddr to physAddr.
// Both addresses must be aligned to the page size. Missing intermediate
// tables are allocated, cleared and linked as present and writable; the
// access restrictions are carried by the leaf entry alone. Mapping over an
// existing mapping of any size is an error.
func (as *AddressSpace) Map(virtAddr, physAddr uintptr, size mm.Size, flags PageTableEntryFlag) *kernel.Error {
	if !size.Aligned(virtAddr) || !size.Aligned(physAddr) {
		return errMisalignedMapping
	}

	var (
		table = as.tables.Table(as.root)
		leaf  = leafLevel(size)
	)

	for level := 0; level < leaf; level++ {
		pte := &table[tableIndex(virtAddr, level)]

		if !pte.HasFlags(FlagPresent) {
			next, err := allocTable(as.tables, as.frames)
			if err != nil {
				return err
			}

			*pte = 0
			pte.SetFrame(next)
			pte.SetFlags(FlagPresent | FlagRW)
		} else if pte.HasFlags(FlagHugePage) {
			return errOverlappingMapping
		}

		table = as.tables.Table(pte.Frame())
	}

	pte := &table[tableIndex(virtAddr, leaf)]
	if pte.HasFlags(FlagPresent) {
		return errOverlappingMapping
	}

	flags |= FlagPresent
	if size != mm.Size4KiB {
		flags |= FlagHugePage
	}

	// Only non-present entries are ever filled in and the TLB does not
	// cache those, so no invalidation is needed.
	*pte = pageTableEntry(physAddr) | pageTableEntry(flags)
	return nil
}

// MapStats counts the pages installed by MapRange, indexed by page size.
type MapStats [len(mm.PageSizes)]uint64

// Count returns the number of pages of the given size.
func (s MapStats) Count(size mm.Size) uint64 {
	return s[size]
}

// Pages returns the total expressed in 4 KiB pages.
func (s MapStats) Pages() uint64 {
	var total uint64
	for _, size := range mm.PageSizes {
		total += s[size] * size.Pages()
	}
	return total
}

// MapRange maps pageCount 4 KiB pages starting at virtAddr to the physical
// range starting at physAddr. At every step it uses the largest enabled page
// size to which both addresses are aligned and which does not overshoot the
// remaining count, so a range that is only partially aligned still gets huge
// pages for its aligned middle.
func (as *AddressSpace) MapRange(virtAddr, physAddr uintptr, pageCount uint64, flags PageTableEntryFlag) (MapStats, *kernel.Error) {
	var stats MapStats

	for remaining := pageCount; remaining > 0; {
		size := as.largestFit(virtAddr, physAddr, remaining)
		if err := as.Map(virtAddr, physAddr, size, flags); err != nil {
			return stats, err
		}

		stats[size]++
		remaining -= size.Pages()
		virtAddr += size.Bytes()
		physAddr += size.Bytes()
	}

	if stats.Pages() != pageCount {
		return stats, errPageCountMismatch
	}

	return stats, nil
}

func (as *AddressSpace) largestFit(virtAddr, physAddr uintptr, remaining uint64) mm.Size {
	for _, size := range mm.PageSizes {
		if size > as.maxPageSize {
			continue
		}

		if size.Aligned(virtAddr) && size.Aligned(physAddr) && remaining >= size.Pages() {
			return size
		}
	}

	return mm.Size4KiB
}

// Mapping describes the leaf entry that translates a virtual address.
type Mapping struct {
	// Phys is the physical base address of the mapped page.
	Phys uintptr

	Size mm.Size

	// Flags are the leaf entry flags. FlagNoExecute is also set when any
	// table entry on the walk to the leaf has it, since the CPU applies it
	// at every level.
	Flags PageTableEntryFlag
}

// Lookup walks the hierarchy for virtAddr and returns the mapping that covers
// it or ErrInvalidMapping.
func (as *AddressSpace) Lookup(virtAddr uintptr) (Mapping, *kernel.Error) {
	var (
		table   = as.tables.Table(as.root)
		inherit PageTableEntryFlag
	)

	for level := 0; level < pageLevels; level++ {
		pte := table[tableIndex(virtAddr, level)]
		if !pte.HasFlags(FlagPresent) {
			return Mapping{}, ErrInvalidMapping
		}

		if level == pageLevels-1 || (level > 0 && pte.HasFlags(FlagHugePage)) {
			size := mm.Size(pageLevels - 1 - level)
			return Mapping{Phys: pte.PhysAddress(size), Size: size, Flags: pte.Flags() | inherit}, nil
		}

		inherit |= pte.Flags() & FlagNoExecute

		table = as.tables.Table(pte.Frame())
	}

	return Mapping{}, ErrInvalidMapping
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (as *AddressSpace) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	mapping, err := as.Lookup(virtAddr)
	if err != nil {
		return 0, err
	}

	return mapping.Phys + (virtAddr & (mapping.Size.Bytes() - 1)), nil
}

// allocTable allocates a frame for a page table and clears it.
func allocTable(tables TableResolver, frames mm.FrameAllocator) (mm.Frame, *kernel.Error) {
	if frames == nil {
		return mm.InvalidFrame, errNoFrameAllocator
	}

	frame, err := frames.AllocFrame()
	if err != nil {
		return mm.InvalidFrame, err
	}

	*tables.Table(frame) = PageTable{}
	return frame, nil
}
