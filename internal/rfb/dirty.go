package rfb

import (
	"bytes"
	"sync"
)

// DirtyTileSize is the tunable tile size used by the dirty-region tracker,
// default 64.
const DirtyTileSize = 64

// DirtyTracker compares successive framebuffers on a fixed tile grid and
// reports the bounding rectangle of changed tiles. Each session owns one
// tracker so it can diff independently against its own previously-sent
// snapshot. A session's tracker is reached from three separate goroutines
// (the session's own message loop, the capture goroutine's broadcast nudge,
// and BroadcastFull), so all access to its fields goes through mu.
type DirtyTracker struct {
	mu       sync.Mutex
	previous []byte
	width    int
	height   int
}

// NewDirtyTracker creates a tracker with no previous snapshot; the first
// Diff call always returns a full-screen rectangle.
func NewDirtyTracker() *DirtyTracker {
	return &DirtyTracker{}
}

// ForceFullUpdate clears the previous snapshot so the next Diff call
// returns the full-screen rectangle.
func (t *DirtyTracker) ForceFullUpdate() {
	t.mu.Lock()
	t.previous = nil
	t.mu.Unlock()
}

// Diff compares current against the tracker's previous snapshot (a
// width x height x 4 BGRA buffer) and returns the dirty region. It then
// replaces the tracker's previous snapshot with current.
func (t *DirtyTracker) Diff(current []byte, width, height int) Rect {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.previous == nil || t.width != width || t.height != height || len(t.previous) != len(current) {
		t.previous = append([]byte(nil), current...)
		t.width = width
		t.height = height
		return Rect{X: 0, Y: 0, W: uint16(width), H: uint16(height)}
	}

	minTX, minTY := -1, -1
	maxTX, maxTY := -1, -1

	for ty := 0; ty*DirtyTileSize < height; ty++ {
		y0 := ty * DirtyTileSize
		y1 := min(y0+DirtyTileSize, height)
		for tx := 0; tx*DirtyTileSize < width; tx++ {
			x0 := tx * DirtyTileSize
			x1 := min(x0+DirtyTileSize, width)
			if tileDiffers(t.previous, current, width, x0, y0, x1, y1) {
				if minTX == -1 || tx < minTX {
					minTX = tx
				}
				if maxTX == -1 || tx > maxTX {
					maxTX = tx
				}
				if minTY == -1 || ty < minTY {
					minTY = ty
				}
				if maxTY == -1 || ty > maxTY {
					maxTY = ty
				}
			}
		}
	}

	copy(t.previous, current)

	if minTX == -1 {
		return Rect{}
	}

	x0 := minTX * DirtyTileSize
	y0 := minTY * DirtyTileSize
	x1 := min(maxTX*DirtyTileSize+DirtyTileSize, width)
	y1 := min(maxTY*DirtyTileSize+DirtyTileSize, height)
	return Rect{X: uint16(x0), Y: uint16(y0), W: uint16(x1 - x0), H: uint16(y1 - y0)}
}

func tileDiffers(prev, cur []byte, stride, x0, y0, x1, y1 int) bool {
	for y := y0; y < y1; y++ {
		rowStart := (y*stride + x0) * 4
		rowEnd := (y*stride + x1) * 4
		if !bytes.Equal(prev[rowStart:rowEnd], cur[rowStart:rowEnd]) {
			return true
		}
	}
	return false
}
