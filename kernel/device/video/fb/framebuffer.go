// Package fb draws into the linear framebuffer handed over by the loader and
// renders a scrolling text console on top of it.
package fb

import (
	"image/color"
	"unsafe"

	"kestrel/bootinfo"
	"kestrel/kernel"

	"tinygo.org/x/drivers"
)

var (
	errUnsupportedFormat = &kernel.Error{Module: "fb", Message: "unsupported pixel format"}
	errFramebufferSize   = &kernel.Error{Module: "fb", Message: "framebuffer smaller than its mode"}

	_ drivers.Displayer = (*Framebuffer)(nil)
)

// Framebuffer is a 32 bits per pixel linear framebuffer. Pixels are written
// straight to video memory so Display has nothing to flush.
type Framebuffer struct {
	pixels []uint32
	width  int
	height int
	stride int
	format bootinfo.PixelFormat
}

// New returns a Framebuffer for the mode described by info. Only the RGB and
// BGR formats are supported.
func New(info bootinfo.FramebufferInfo) (*Framebuffer, *kernel.Error) {
	pixelCount := uintptr(info.Stride) * uintptr(info.Height)
	if info.Size < pixelCount*4 {
		return nil, errFramebufferSize
	}

	pixels := unsafe.Slice((*uint32)(unsafe.Pointer(info.Base)), pixelCount)
	return newFramebuffer(pixels, int(info.Width), int(info.Height), int(info.Stride), info.Format)
}

func newFramebuffer(pixels []uint32, width, height, stride int, format bootinfo.PixelFormat) (*Framebuffer, *kernel.Error) {
	if format != bootinfo.PixelFormatRGB && format != bootinfo.PixelFormatBGR {
		return nil, errUnsupportedFormat
	}

	return &Framebuffer{
		pixels: pixels,
		width:  width,
		height: height,
		stride: stride,
		format: format,
	}, nil
}

// Size returns the visible dimensions in pixels.
func (fb *Framebuffer) Size() (x, y int16) {
	return int16(fb.width), int16(fb.height)
}

// SetPixel sets the pixel at (x, y). Coordinates outside the visible area are
// ignored.
func (fb *Framebuffer) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || y < 0 || int(x) >= fb.width || int(y) >= fb.height {
		return
	}

	fb.pixels[int(y)*fb.stride+int(x)] = fb.pack(c)
}

// Display is a no-op.
func (fb *Framebuffer) Display() error {
	return nil
}

// FillRectangle fills the part of the rectangle that lies inside the visible
// area.
func (fb *Framebuffer) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	x0, y0 := clamp(int(x), fb.width), clamp(int(y), fb.height)
	x1, y1 := clamp(int(x)+int(width), fb.width), clamp(int(y)+int(height), fb.height)

	pixel := fb.pack(c)
	for row := y0; row < y1; row++ {
		line := fb.pixels[row*fb.stride : row*fb.stride+x1]
		for col := x0; col < x1; col++ {
			line[col] = pixel
		}
	}
	return nil
}

// ScrollUp moves the contents up by lines pixel rows and fills the exposed
// rows at the bottom with bg.
func (fb *Framebuffer) ScrollUp(lines int16, bg color.RGBA) error {
	n := int(lines)
	if n <= 0 {
		return nil
	}

	if n < fb.height {
		copy(fb.pixels, fb.pixels[n*fb.stride:fb.height*fb.stride])
	} else {
		n = fb.height
	}

	return fb.FillRectangle(0, int16(fb.height-n), int16(fb.width), int16(n), bg)
}

// Clear fills the visible area with c.
func (fb *Framebuffer) Clear(c color.RGBA) {
	fb.FillRectangle(0, 0, int16(fb.width), int16(fb.height), c)
}

func (fb *Framebuffer) pack(c color.RGBA) uint32 {
	if fb.format == bootinfo.PixelFormatBGR {
		return uint32(c.B) | uint32(c.G)<<8 | uint32(c.R)<<16
	}
	return uint32(c.R) | uint32(c.G)<<8 | uint32(c.B)<<16
}

func clamp(v, max int) int {
	switch {
	case v < 0:
		return 0
	case v > max:
		return max
	default:
		return v
	}
}
