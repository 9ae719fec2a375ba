package uefi

import (
	"unsafe"

	"kestrel/bootinfo"
	"kestrel/kernel"
	"kestrel/loader"
)

// display wraps the graphics output protocol. QueryMode results are written
// by the firmware into infoSize and info.
type display struct {
	gop *graphicsOutputProtocol

	infoSize uintptr
	info     *graphicsModeInfo
}

func (d *display) ModeCount() uint32 {
	return d.gop.Mode.MaxMode
}

func (d *display) QueryMode(n uint32) (loader.Mode, *kernel.Error) {
	d.info = nil
	status := call(d.gop.QueryMode,
		uintptr(unsafe.Pointer(d.gop)),
		uintptr(n),
		uintptr(unsafe.Pointer(&d.infoSize)),
		uintptr(unsafe.Pointer(&d.info)),
	)
	if err := status.Err(); err != nil {
		return loader.Mode{}, err
	}

	info := d.info

	return loader.Mode{
		Width:  info.HorizontalResolution,
		Height: info.VerticalResolution,
		Stride: info.PixelsPerScanLine,
		Format: bootinfo.PixelFormat(info.PixelFormat),
	}, nil
}

func (d *display) SetMode(n uint32) *kernel.Error {
	return call(d.gop.SetMode, uintptr(unsafe.Pointer(d.gop)), uintptr(n)).Err()
}

func (d *display) Framebuffer() (uintptr, uintptr) {
	return uintptr(d.gop.Mode.FrameBufferBase), uintptr(d.gop.Mode.FrameBufferSize)
}
