// Package splash paints the boot screen shown before any content arrives.
package splash

import (
	"image/color"

	"github.com/fogleman/gg"

	"tftfb/internal/ili9341"
)

// Bars are the test-card colors, left to right.
var Bars = []color.RGBA{
	{0xFF, 0xFF, 0xFF, 0xFF},
	{0xFF, 0xFF, 0x00, 0xFF},
	{0x00, 0xFF, 0xFF, 0xFF},
	{0x00, 0xFF, 0x00, 0xFF},
	{0xFF, 0x00, 0xFF, 0xFF},
	{0xFF, 0x00, 0x00, 0xFF},
	{0x00, 0x00, 0xFF, 0xFF},
	{0x00, 0x00, 0x00, 0xFF},
}

// barsHeight is the share of the screen covered by the color bars.
const barsHeight = ili9341.Height * 2 / 3

// Render draws color bars with title centered in the strip below them.
func Render(title string) *gg.Context {
	dc := gg.NewContext(ili9341.Width, ili9341.Height)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	w := float64(ili9341.Width) / float64(len(Bars))
	for i, c := range Bars {
		dc.SetColor(c)
		dc.DrawRectangle(float64(i)*w, 0, w+1, barsHeight)
		dc.Fill()
	}

	dc.SetRGB(1, 1, 1)
	y := barsHeight + float64(ili9341.Height-barsHeight)/2
	dc.DrawStringAnchored(title, float64(ili9341.Width)/2, y, 0.5, 0.5)
	return dc
}

// Paint renders the splash screen into buf.
func Paint(buf *ili9341.PixelBuffer, title string) {
	buf.Load(Render(title).Image())
}
