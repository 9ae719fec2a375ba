package fb

import (
	"image/color"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

const (
	tabWidth = 4

	// padding is the blank border, in pixels, around the text area.
	padding = 3

	fontHeight = 10
	fontOffset = 6
)

var (
	// DefaultBackground is the color the console clears to.
	DefaultBackground = color.RGBA{R: 0x10, G: 0x10, B: 0x30, A: 0xff}

	defaultForeground = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// Surface is what the console draws on.
type Surface interface {
	drivers.Displayer
	FillRectangle(x, y, width, height int16, c color.RGBA) error
	ScrollUp(lines int16, bg color.RGBA) error
}

// Console is a text console rendered with a fixed width bitmap font. When the
// cursor moves past the last line the surface scrolls up by one line.
type Console struct {
	surface Surface
	font    tinyfont.Fonter

	cellWidth int16
	cols      int16
	rows      int16

	col int16
	row int16

	fg color.RGBA
	bg color.RGBA
}

// NewConsole clears s to bg and returns a console with the cursor at the top
// left corner.
func NewConsole(s Surface, bg color.RGBA) *Console {
	font := &proggy.TinySZ8pt7b
	_, outboxWidth := tinyfont.LineWidth(font, "0")

	c := &Console{
		surface:   s,
		font:      font,
		cellWidth: int16(outboxWidth),
		fg:        defaultForeground,
		bg:        bg,
	}

	width, height := s.Size()
	if c.cellWidth > 0 {
		c.cols = (width - 2*padding) / c.cellWidth
	}
	c.rows = (height - 2*padding) / fontHeight

	s.FillRectangle(0, 0, width, height, bg)
	return c
}

// Dimensions returns the console size in characters.
func (c *Console) Dimensions() (cols, rows int16) {
	return c.cols, c.rows
}

// SetColor sets the color used for text written from now on.
func (c *Console) SetColor(fg color.RGBA) {
	c.fg = fg
}

// Write renders p. Tabs advance to the next multiple of 4 columns, '\r'
// returns to the first column and lines wrap at the right edge.
func (c *Console) Write(p []byte) (int, error) {
	if c.cols <= 0 || c.rows <= 0 {
		return len(p), nil
	}

	for _, b := range p {
		switch b {
		case '\n':
			c.lineFeed()
		case '\r':
			c.col = 0
		case '\t':
			for n := tabWidth - c.col%tabWidth; n > 0; n-- {
				c.putChar(' ')
			}
		default:
			if b < ' ' || b > '~' {
				b = '?'
			}
			c.putChar(rune(b))
		}
	}

	c.surface.Display()
	return len(p), nil
}

func (c *Console) putChar(r rune) {
	if c.col == c.cols {
		c.lineFeed()
	}

	x := padding + c.col*c.cellWidth
	y := padding + c.row*fontHeight

	c.surface.FillRectangle(x, y, c.cellWidth, fontHeight, c.bg)
	if r != ' ' {
		tinyfont.DrawChar(c.surface, c.font, x, y+fontOffset, r, c.fg)
	}
	c.col++
}

func (c *Console) lineFeed() {
	c.col = 0
	if c.row+1 < c.rows {
		c.row++
		return
	}

	c.surface.ScrollUp(fontHeight, c.bg)
}
