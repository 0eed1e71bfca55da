package convert

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	xdraw "golang.org/x/image/draw"

	"tftfb/internal/ili9341"
)

// Panel geometry, repeated here so callers can size images without
// importing the driver.
const (
	PanelWidth  = ili9341.Width
	PanelHeight = ili9341.Height
)

// Fit scales src into a PanelWidth x PanelHeight canvas, preserving the
// aspect ratio and centering the result. Uncovered borders are filled with
// bg.
//
// Sources that already have the panel's size are copied without scaling.
func Fit(src image.Image, bg color.Color) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, PanelWidth, PanelHeight))
	xdraw.Draw(dst, dst.Bounds(), &image.Uniform{C: bg}, image.Point{}, xdraw.Src)

	sb := src.Bounds()
	if sb.Dx() == PanelWidth && sb.Dy() == PanelHeight {
		xdraw.Draw(dst, dst.Bounds(), src, sb.Min, xdraw.Src)
		return dst
	}
	if sb.Empty() {
		return dst
	}

	// Largest size with src's aspect ratio that fits the panel.
	w, h := PanelWidth, sb.Dy()*PanelWidth/sb.Dx()
	if h > PanelHeight {
		w, h = sb.Dx()*PanelHeight/sb.Dy(), PanelHeight
	}
	x0 := (PanelWidth - w) / 2
	y0 := (PanelHeight - h) / 2
	target := image.Rect(x0, y0, x0+w, y0+h)

	xdraw.ApproxBiLinear.Scale(dst, target, src, sb, xdraw.Over, nil)
	return dst
}

// Pack fits img to the panel and writes it into buf.
func Pack(buf *ili9341.PixelBuffer, img image.Image) {
	buf.Load(Fit(img, color.Black))
}

// PackPNG decodes a PNG and writes it into buf.
func PackPNG(buf *ili9341.PixelBuffer, data []byte) error {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("convert: decode png: %w", err)
	}
	Pack(buf, img)
	return nil
}

// Unpack renders the wire bytes of a frame back into an image, e.g. for a
// preview. frame must be exactly ili9341.BufferSize bytes.
func Unpack(frame []byte) (*image.RGBA, error) {
	if len(frame) != ili9341.BufferSize {
		return nil, fmt.Errorf("convert: expected %d bytes, got %d", ili9341.BufferSize, len(frame))
	}
	img := image.NewRGBA(image.Rect(0, 0, PanelWidth, PanelHeight))
	for i, j := 0, 0; i < len(frame); i, j = i+ili9341.BytesPerPixel, j+4 {
		// Replicate the top bits into the two unused low bits.
		img.Pix[j+0] = frame[i+0] | frame[i+0]>>6
		img.Pix[j+1] = frame[i+1] | frame[i+1]>>6
		img.Pix[j+2] = frame[i+2] | frame[i+2]>>6
		img.Pix[j+3] = 0xFF
	}
	return img, nil
}

// EncodePNG renders frame as a PNG.
func EncodePNG(frame []byte) ([]byte, error) {
	img, err := Unpack(frame)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("convert: encode png: %w", err)
	}
	return out.Bytes(), nil
}
