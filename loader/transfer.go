package loader

import (
	"unsafe"

	"kestrel/kernel/diag"
)

// transfer moves the kernel arguments into the physical memory window and
// calls the entry point on the kernel stack. The arguments are complete
// before the switch and the loader never touches them afterwards.
func (s *Sequencer) transfer() {
	off := s.cfg.PhysMapOffset
	s.args.Framebuffer.Base += off
	args := uintptr(unsafe.Pointer(s.args)) + off

	diag.Infof("entering kernel at 0x%x with stack top 0x%x", s.entryPC, s.stackTop)

	transferFn(s.cfg.StackBottom, s.stackTop, *(*uintptr)(unsafe.Pointer(&s.entry)), args)
	panic(errKernelReturned)
}

// jumpToKernel makes [stackBottom, stackTop) the current stack and calls the
// function value fn with args as its only argument. It does not return.
func jumpToKernel(stackBottom, stackTop, fn, args uintptr)
