package loader

import (
	"kestrel/bootinfo"
	"kestrel/kernel"
	"kestrel/kernel/mm"
)

// firmwareFrames allocates single frames from the firmware and tags them
// with a loader memory type.
type firmwareFrames struct {
	fw  Firmware
	typ bootinfo.MemoryType
}

// AllocFrame implements mm.FrameAllocator.
func (f firmwareFrames) AllocFrame() (mm.Frame, *kernel.Error) {
	addr, err := f.fw.AllocatePages(f.typ, 1)
	if err != nil {
		return mm.InvalidFrame, err
	}

	return mm.FrameFromAddress(addr), nil
}
