package ili9341

import "image/color"

// PaletteSize is the number of pseudo palette registers.
const PaletteSize = 16

// Convert packs 6 bit red, green and blue channels into the controller's
// 18 bit color layout inside a 32 bit word. Inputs are masked to 6 bits.
func Convert(red, green, blue uint8) uint32 {
	return uint32(red&0x3F)<<18 | uint32(green&0x3F)<<10 | uint32(blue&0x3F)<<2
}

// PseudoPalette maps register indices to packed colors for drawing code that
// works with indexed colors (console text and the like).
type PseudoPalette [PaletteSize]uint32

// SetColReg stores the packed form of (red, green, blue) in register regno.
// Channels are 6 bit values.
func (p *PseudoPalette) SetColReg(regno int, red, green, blue uint8) error {
	if regno < 0 || regno >= PaletteSize {
		return ErrBadRegister
	}
	p[regno] = Convert(red, green, blue)
	return nil
}

// RGB666 is a pixel in the panel's native 18 bit format. Each channel holds a
// 6 bit value (0..63).
type RGB666 struct {
	R, G, B uint8
}

// RGBA implements color.Color.
func (c RGB666) RGBA() (r, g, b, a uint32) {
	r = expand6(c.R)
	g = expand6(c.G)
	b = expand6(c.B)
	return r, g, b, 0xFFFF
}

// expand6 scales a 6 bit channel to the 16 bit range used by color.Color.
func expand6(v uint8) uint32 {
	v &= 0x3F
	x := uint32(v)<<2 | uint32(v)>>4
	return x<<8 | x
}

// RGB666Model converts any color to RGB666 by dropping the two low bits of
// each 8 bit channel. Alpha is ignored.
var RGB666Model = color.ModelFunc(rgb666Model)

func rgb666Model(c color.Color) color.Color {
	if c, ok := c.(RGB666); ok {
		return c
	}
	r, g, b, _ := c.RGBA()
	return RGB666{R: uint8(r >> 10), G: uint8(g >> 10), B: uint8(b >> 10)}
}
