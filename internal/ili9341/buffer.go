package ili9341

import (
	"fmt"
	"image"
	"image/color"
	"sync"
)

// Policy selects how a PixelBuffer coordinates writers with the refresh loop.
type Policy int

const (
	// PolicyLocked serializes draws and frame reads with a RWMutex. A frame
	// on the wire never contains a half finished draw.
	PolicyLocked Policy = iota
	// PolicyRelaxed performs no locking at all. Frames can tear when a draw
	// overlaps a transfer.
	PolicyRelaxed
)

func (p Policy) String() string {
	switch p {
	case PolicyLocked:
		return "locked"
	case PolicyRelaxed:
		return "relaxed"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a config string to a Policy. Empty means PolicyLocked.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "locked":
		return PolicyLocked, nil
	case "relaxed":
		return PolicyRelaxed, nil
	default:
		return PolicyLocked, fmt.Errorf("ili9341: unknown buffer policy %q", s)
	}
}

// PixelBuffer holds one full frame in wire format: Width*Height pixels,
// three bytes per pixel (R, G, B), each byte carrying 6 significant bits in
// its upper bits. Its length never changes.
//
// PixelBuffer implements draw.Image so it can be the destination of
// image/draw operations.
type PixelBuffer struct {
	pix    []byte
	policy Policy
	mu     sync.RWMutex
}

// NewPixelBuffer allocates a zeroed (black) frame.
func NewPixelBuffer(policy Policy) *PixelBuffer {
	return &PixelBuffer{
		pix:    make([]byte, BufferSize),
		policy: policy,
	}
}

// Len returns the buffer size in bytes. It is always BufferSize.
func (b *PixelBuffer) Len() int { return len(b.pix) }

// Policy returns the synchronization policy chosen at allocation.
func (b *PixelBuffer) Policy() Policy { return b.policy }

func (b *PixelBuffer) lock() {
	if b.policy == PolicyLocked {
		b.mu.Lock()
	}
}

func (b *PixelBuffer) unlock() {
	if b.policy == PolicyLocked {
		b.mu.Unlock()
	}
}

func (b *PixelBuffer) rlock() {
	if b.policy == PolicyLocked {
		b.mu.RLock()
	}
}

func (b *PixelBuffer) runlock() {
	if b.policy == PolicyLocked {
		b.mu.RUnlock()
	}
}

// Draw hands fn write access to the raw frame. fn must not retain pix or
// change its length.
func (b *PixelBuffer) Draw(fn func(pix []byte)) {
	b.lock()
	defer b.unlock()
	fn(b.pix)
}

// ReadFrame hands fn read access to the raw frame for the duration of a
// transfer.
func (b *PixelBuffer) ReadFrame(fn func(pix []byte) error) error {
	b.rlock()
	defer b.runlock()
	return fn(b.pix)
}

// Snapshot returns a copy of the current frame.
func (b *PixelBuffer) Snapshot() []byte {
	out := make([]byte, len(b.pix))
	b.rlock()
	copy(out, b.pix)
	b.runlock()
	return out
}

// Fill paints every pixel with c.
func (b *PixelBuffer) Fill(c color.Color) {
	px := RGB666Model.Convert(c).(RGB666)
	b.Draw(func(pix []byte) {
		for i := 0; i < len(pix); i += BytesPerPixel {
			putPixel(pix[i:], px)
		}
	})
}

// Load copies img into the frame. img is aligned to the frame's origin; parts
// outside the panel are ignored and uncovered pixels are left untouched.
func (b *PixelBuffer) Load(img image.Image) {
	r := img.Bounds()
	area := r.Intersect(image.Rect(0, 0, Width, Height).Add(r.Min))
	b.Draw(func(pix []byte) {
		for y := area.Min.Y; y < area.Max.Y; y++ {
			for x := area.Min.X; x < area.Max.X; x++ {
				px := RGB666Model.Convert(img.At(x, y)).(RGB666)
				putPixel(pix[offset(x-r.Min.X, y-r.Min.Y):], px)
			}
		}
	})
}

// ColorModel implements image.Image.
func (b *PixelBuffer) ColorModel() color.Model { return RGB666Model }

// Bounds implements image.Image.
func (b *PixelBuffer) Bounds() image.Rectangle { return image.Rect(0, 0, Width, Height) }

// At implements image.Image.
func (b *PixelBuffer) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(b.Bounds())) {
		return RGB666{}
	}
	b.rlock()
	defer b.runlock()
	i := offset(x, y)
	return RGB666{R: b.pix[i] >> 2, G: b.pix[i+1] >> 2, B: b.pix[i+2] >> 2}
}

// Set implements draw.Image.
func (b *PixelBuffer) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(b.Bounds())) {
		return
	}
	px := RGB666Model.Convert(c).(RGB666)
	b.lock()
	putPixel(b.pix[offset(x, y):], px)
	b.unlock()
}

func offset(x, y int) int {
	return (y*Width + x) * BytesPerPixel
}

func putPixel(dst []byte, c RGB666) {
	dst[0] = (c.R & 0x3F) << 2
	dst[1] = (c.G & 0x3F) << 2
	dst[2] = (c.B & 0x3F) << 2
}
