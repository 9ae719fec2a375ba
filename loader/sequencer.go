package loader

import (
	"unsafe"

	"kestrel/bootinfo"
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/diag"
	"kestrel/kernel/mm"
	"kestrel/kernel/mm/vmm"
)

// Entry is the kernel entry point. It runs on the kernel stack and never
// returns.
type Entry func(args *bootinfo.KernelArgs)

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	disableInterruptsFn   = cpu.DisableInterrupts
	hasNoExecuteFn        = cpu.HasNoExecute
	enableNoExecuteFn     = cpu.EnableNoExecute
	hasHugePages1GFn      = cpu.HasHugePages1G
	activePDTFn           = cpu.ActivePDT
	disableWriteProtectFn = cpu.DisableWriteProtect
	writeCR0Fn            = cpu.WriteCR0
	activateFn            = (*vmm.AddressSpace).Activate
	transferFn            = jumpToKernel

	errNoDisplayMode      = &kernel.Error{Module: "loader", Message: "no supported display mode found"}
	errEntryNotMapped     = &kernel.Error{Module: "loader", Message: "kernel entry point is not mapped"}
	errEntryNotExecutable = &kernel.Error{Module: "loader", Message: "kernel entry point is mapped as no-execute"}
	errKernelReturned     = &kernel.Error{Module: "loader", Message: "kernel entry point returned"}
)

// physMapFlags are used for the physical memory window. Runtime services
// code additionally needs to be executable.
const physMapFlags = vmm.FlagRW | vmm.FlagGlobal | vmm.FlagNoExecute

type step struct {
	name string
	run  func(*Sequencer) *kernel.Error
}

// steps is the handoff sequence. Each step depends on the ones before it.
var steps = [...]step{
	{"disable interrupts", (*Sequencer).disableInterrupts},
	{"select display mode", (*Sequencer).selectDisplayMode},
	{"snapshot memory map", (*Sequencer).snapshotMemoryMap},
	{"clone page table", (*Sequencer).clonePageTable},
	{"map physical memory", (*Sequencer).mapPhysicalMemory},
	{"map kernel stack", (*Sequencer).mapKernelStack},
	{"verify entry point", (*Sequencer).verifyEntryPoint},
	{"exit boot services", (*Sequencer).exitBootServices},
	{"set virtual address map", (*Sequencer).setVirtualAddressMap},
}

// Sequencer performs the handoff from the firmware to the kernel. A
// Sequencer runs once; the firmware calls it makes cannot be repeated.
type Sequencer struct {
	fw     Firmware
	cfg    Config
	tables vmm.TableResolver

	entry    Entry
	entryPC  uintptr
	fb       bootinfo.FramebufferInfo
	args     *bootinfo.KernelArgs
	space    *vmm.AddressSpace
	stackTop uintptr
}

// NewSequencer returns a sequencer that talks to fw. Page tables are edited
// through the firmware identity mapping.
func NewSequencer(fw Firmware, cfg Config) *Sequencer {
	return &Sequencer{
		fw:     fw,
		cfg:    cfg,
		tables: vmm.OffsetResolver(0),
	}
}

// Prepare runs every step up to and including the virtual address map
// switch. Any failure is fatal.
func (s *Sequencer) Prepare(entry Entry) {
	s.entry = entry
	s.entryPC = funcPC(entry)

	for i := range steps {
		diag.Infof("step %d: %s", i+1, steps[i].name)
		if err := steps[i].run(s); err != nil {
			diag.Errorf("step %d failed: %s", i+1, err.Error())
			panic(err)
		}
	}
}

// Run prepares the handoff and transfers control to entry. It does not
// return.
func (s *Sequencer) Run(entry Entry) {
	s.Prepare(entry)

	diag.Infof("step %d: transfer to kernel", len(steps)+1)
	s.transfer()
}

// Args returns the kernel arguments built so far. It is nil before the
// memory map snapshot.
func (s *Sequencer) Args() *bootinfo.KernelArgs {
	return s.args
}

// AddressSpace returns the address space built for the kernel.
func (s *Sequencer) AddressSpace() *vmm.AddressSpace {
	return s.space
}

// disableInterrupts also turns on no-execute support so the NX bit in the
// new mappings is honored instead of faulting as a reserved bit.
func (s *Sequencer) disableInterrupts() *kernel.Error {
	disableInterruptsFn()

	if hasNoExecuteFn() {
		enableNoExecuteFn()
	}

	return nil
}

func (s *Sequencer) selectDisplayMode() *kernel.Error {
	display, err := s.fw.LocateDisplay()
	if err != nil {
		return err
	}

	for _, res := range s.cfg.Resolutions {
		for n := uint32(0); n < display.ModeCount(); n++ {
			mode, err := display.QueryMode(n)
			if err != nil {
				return err
			}

			if mode.Width != res.Width || mode.Height != res.Height {
				continue
			}

			if mode.Format != bootinfo.PixelFormatRGB && mode.Format != bootinfo.PixelFormatBGR {
				continue
			}

			if err = display.SetMode(n); err != nil {
				return err
			}

			base, size := display.Framebuffer()
			s.fb = bootinfo.FramebufferInfo{
				Base:   base,
				Size:   size,
				Width:  mode.Width,
				Height: mode.Height,
				Stride: mode.Stride,
				Format: mode.Format,
			}

			diag.Infof("display: %dx%d (mode %d), framebuffer at 0x%x", mode.Width, mode.Height, n, base)
			return nil
		}
	}

	return errNoDisplayMode
}

// snapshotMemoryMap allocates the pages holding the kernel arguments and
// copies the memory map into them.
func (s *Sequencer) snapshotMemoryMap() *kernel.Error {
	pages := uint64((unsafe.Sizeof(bootinfo.KernelArgs{}) + mm.PageSize - 1) >> mm.PageShift)
	addr, err := s.fw.AllocatePages(bootinfo.MemoryTypeKernelArgs, pages)
	if err != nil {
		return err
	}

	s.args = (*bootinfo.KernelArgs)(unsafe.Pointer(addr))
	*s.args = bootinfo.KernelArgs{Framebuffer: s.fb}

	if _, err = s.fw.MemoryMap(&s.args.MemoryMap); err != nil {
		return err
	}

	diag.Infof("memory map: %d entries, %d pages", s.args.MemoryMap.Len, s.args.MemoryMap.PageTotal(nil))
	return nil
}

// clonePageTable copies the firmware P4 table so the firmware mappings stay
// valid while the kernel mappings are added, then switches to the copy.
func (s *Sequencer) clonePageTable() *kernel.Error {
	frames := firmwareFrames{fw: s.fw, typ: bootinfo.MemoryTypePageTable}
	current := vmm.NewAddressSpace(mm.FrameFromAddress(activePDTFn()), s.tables, frames)
	if hasHugePages1GFn() {
		current.SetMaxPageSize(mm.Size1GiB)
	}

	cr0 := disableWriteProtectFn()
	clone, err := current.Clone()
	writeCR0Fn(cr0)
	if err != nil {
		return err
	}

	activateFn(clone)
	s.space = clone
	return nil
}

func (s *Sequencer) mapPhysicalMemory() *kernel.Error {
	var (
		total vmm.MapStats
		err   *kernel.Error
	)

	s.args.MemoryMap.Visit(func(desc *bootinfo.MemoryDescriptor) bool {
		flags := physMapFlags
		if desc.Type == bootinfo.MemoryTypeRuntimeServicesCode {
			flags &^= vmm.FlagNoExecute
		}

		var stats vmm.MapStats
		stats, err = s.space.MapRange(desc.PhysStart+s.cfg.PhysMapOffset, desc.PhysStart, desc.PageCount, flags)
		for i := range stats {
			total[i] += stats[i]
		}
		return err == nil
	})
	if err != nil {
		return err
	}

	diag.Infof("physical memory mapped at 0x%x: %d x 1GiB, %d x 2MiB, %d x 4KiB",
		s.cfg.PhysMapOffset, total.Count(mm.Size1GiB), total.Count(mm.Size2MiB), total.Count(mm.Size4KiB))

	return s.mapFramebuffer()
}

// mapFramebuffer maps the parts of the framebuffer that are not covered by
// the memory map, which usually omits MMIO ranges.
func (s *Sequencer) mapFramebuffer() *kernel.Error {
	var (
		base      = s.args.Framebuffer.Base &^ (mm.PageSize - 1)
		end       = s.args.Framebuffer.Base + s.args.Framebuffer.Size
		runStart  uintptr
		runLength uint64
	)

	flushRun := func() *kernel.Error {
		if runLength == 0 {
			return nil
		}

		_, err := s.space.MapRange(runStart+s.cfg.PhysMapOffset, runStart, runLength, physMapFlags)
		runLength = 0
		return err
	}

	for phys := base; phys < end; phys += mm.PageSize {
		if _, err := s.space.Translate(phys + s.cfg.PhysMapOffset); err == nil {
			if err = flushRun(); err != nil {
				return err
			}
			continue
		}

		if runLength == 0 {
			runStart = phys
		}
		runLength++
	}

	return flushRun()
}

// mapKernelStack allocates the kernel stack and maps it below the stack top
// one page at a time, walking down from the top of the allocated block. The
// memory map is then refreshed since the allocations changed it.
func (s *Sequencer) mapKernelStack() *kernel.Error {
	phys, err := s.fw.AllocatePages(bootinfo.MemoryTypeKernelStack, s.cfg.StackPages)
	if err != nil {
		return err
	}

	s.stackTop = s.cfg.StackBottom + uintptr(s.cfg.StackPages)*mm.PageSize
	for i := uint64(0); i < s.cfg.StackPages; i++ {
		virt := s.stackTop - uintptr(i+1)*mm.PageSize
		frame := phys + uintptr(s.cfg.StackPages-1-i)*mm.PageSize

		if err = s.space.Map(virt, frame, mm.Size4KiB, vmm.FlagRW|vmm.FlagNoExecute); err != nil {
			return err
		}
	}

	_, err = s.fw.MemoryMap(&s.args.MemoryMap)
	return err
}

func (s *Sequencer) verifyEntryPoint() *kernel.Error {
	mapping, err := s.space.Lookup(s.entryPC)
	if err != nil {
		return errEntryNotMapped
	}

	if mapping.Flags&vmm.FlagNoExecute != 0 {
		return errEntryNotExecutable
	}

	return nil
}

// exitBootServices fetches the memory map one last time so its key is
// current, leaves the boot services and relocates the map.
func (s *Sequencer) exitBootServices() *kernel.Error {
	mapKey, err := s.fw.MemoryMap(&s.args.MemoryMap)
	if err != nil {
		return err
	}

	if err = s.fw.ExitBootServices(mapKey); err != nil {
		return err
	}

	s.args.MemoryMap.Relocate(s.cfg.PhysMapOffset)
	return nil
}

func (s *Sequencer) setVirtualAddressMap() *kernel.Error {
	if err := s.fw.SetVirtualAddressMap(&s.args.MemoryMap); err != nil {
		return err
	}

	s.args.RuntimeServices = s.fw.RuntimeServices()
	return nil
}

// funcPC returns the address of the code for fn.
func funcPC(fn Entry) uintptr {
	if fn == nil {
		return 0
	}
	return **(**uintptr)(unsafe.Pointer(&fn))
}
