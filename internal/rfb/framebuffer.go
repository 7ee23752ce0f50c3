package rfb

import (
	"fmt"
	"sync"
)

// Framebuffer is the server's authoritative pixel image: a fixed
// (width, height) BGRA byte store. Dimensions never change within a
// session's lifetime except via Server.Resize, which every session
// observes through a reset dirty-region tracker.
type Framebuffer struct {
	mu     sync.Mutex
	width  int
	height int
	pixels []byte // width*height*4, BGRA
}

// NewFramebuffer allocates a zeroed (black) framebuffer of the given size.
func NewFramebuffer(width, height int) *Framebuffer {
	return &Framebuffer{
		width:  width,
		height: height,
		pixels: make([]byte, width*height*4),
	}
}

// Dimensions returns the current (width, height).
func (f *Framebuffer) Dimensions() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.width, f.height
}

// Snapshot returns a copy of the current pixel store, safe to read and
// encode without holding the framebuffer lock.
func (f *Framebuffer) Snapshot() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(f.pixels))
	copy(cp, f.pixels)
	return cp
}

// SetFrame atomically replaces the framebuffer contents. buf's length must
// equal 4*width*height.
func (f *Framebuffer) SetFrame(buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := f.width * f.height * 4
	if len(buf) != want {
		return fmt.Errorf("rfb: frame length %d does not match framebuffer %d", len(buf), want)
	}
	copy(f.pixels, buf)
	return nil
}

// Resize replaces the framebuffer's dimensions and storage. Returns false
// if (w, h) equals the current dimensions, which the caller treats as a
// no-op resize rather than an error.
func (f *Framebuffer) Resize(w, h int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w == f.width && h == f.height {
		return false
	}
	f.width = w
	f.height = h
	f.pixels = make([]byte, w*h*4)
	return true
}

// Rect is an axis-aligned rectangle in framebuffer pixel coordinates.
type Rect struct {
	X, Y, W, H uint16
}

// Empty reports whether the rectangle covers zero pixels.
func (r Rect) Empty() bool {
	return r.W == 0 || r.H == 0
}

// Intersect returns the overlapping region of r and other, or an empty
// Rect if they don't overlap.
func (r Rect) Intersect(other Rect) Rect {
	x0 := maxU16(r.X, other.X)
	y0 := maxU16(r.Y, other.Y)
	x1 := minU16(r.X+r.W, other.X+other.W)
	y1 := minU16(r.Y+r.H, other.Y+other.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Clamp intersects r with the rectangle (0, 0, width, height).
func (r Rect) Clamp(width, height int) Rect {
	return r.Intersect(Rect{X: 0, Y: 0, W: uint16(width), H: uint16(height)})
}

func maxU16(a, b uint16) uint16 {
	if a > b {
		return a
	}
	return b
}

func minU16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}

// pixelAt reads the BGRA pixel at (x, y) in a framebuffer of the given
// stride (width). buf must be a full-frame byte slice.
func pixelAt(buf []byte, stride, x, y int) [4]byte {
	i := (y*stride + x) * 4
	return [4]byte{buf[i], buf[i+1], buf[i+2], buf[i+3]}
}
