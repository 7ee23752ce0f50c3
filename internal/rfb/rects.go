package rfb

// subRect is a solid-colored run found while scanning a region, with
// coordinates relative to that region's own origin.
type subRect struct {
	x, y, w, h uint16
	color      [4]byte
}

// majorityColor returns the most frequent pixel in the sub-rectangle,
// used as the background color for RRE/Hextile encoding.
func majorityColor(fb []byte, stride int, rect Rect) [4]byte {
	counts := make(map[[4]byte]int)
	var best [4]byte
	bestCount := -1
	for y := int(rect.Y); y < int(rect.Y)+int(rect.H); y++ {
		for x := int(rect.X); x < int(rect.X)+int(rect.W); x++ {
			px := pixelAt(fb, stride, x, y)
			counts[px]++
			if counts[px] > bestCount {
				bestCount = counts[px]
				best = px
			}
		}
	}
	return best
}

// findSubRects scans rect in row-major order and greedily grows maximal
// axis-aligned same-color rectangles for every pixel that differs from
// background. Returned coordinates are relative to rect's own origin
// (i.e. (0,0) is rect.X,rect.Y).
func findSubRects(fb []byte, stride int, rect Rect, background [4]byte) []subRect {
	w := int(rect.W)
	h := int(rect.H)
	processed := make([]bool, w*h)

	at := func(lx, ly int) [4]byte {
		return pixelAt(fb, stride, int(rect.X)+lx, int(rect.Y)+ly)
	}
	isProcessed := func(lx, ly int) bool { return processed[ly*w+lx] }
	markProcessed := func(lx, ly int) { processed[ly*w+lx] = true }

	var out []subRect
	for ly := 0; ly < h; ly++ {
		for lx := 0; lx < w; lx++ {
			if isProcessed(lx, ly) {
				continue
			}
			color := at(lx, ly)
			if color == background {
				markProcessed(lx, ly)
				continue
			}

			// Extend right while the color matches and the cell is unprocessed.
			runW := 1
			for lx+runW < w && !isProcessed(lx+runW, ly) && at(lx+runW, ly) == color {
				runW++
			}

			// Extend down while the entire strip of width runW matches.
			runH := 1
			for ly+runH < h {
				ok := true
				for dx := 0; dx < runW; dx++ {
					if isProcessed(lx+dx, ly+runH) || at(lx+dx, ly+runH) != color {
						ok = false
						break
					}
				}
				if !ok {
					break
				}
				runH++
			}

			for dy := 0; dy < runH; dy++ {
				for dx := 0; dx < runW; dx++ {
					markProcessed(lx+dx, ly+dy)
				}
			}

			out = append(out, subRect{
				x: uint16(lx), y: uint16(ly),
				w: uint16(runW), h: uint16(runH),
				color: color,
			})
		}
	}
	return out
}
