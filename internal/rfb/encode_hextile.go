package rfb

import "bytes"

// Hextile subencoding-mask bit flags.
const (
	hextileRaw                 = 0x01
	hextileBackgroundSpecified = 0x02
	hextileForegroundSpecified = 0x04
	hextileAnySubrects         = 0x08
	hextileSubrectsColoured    = 0x10

	hextileTileSize = 16
)

// EncodeHextile divides rect into 16x16 tiles (row-major, trailing tiles
// clipped) and encodes each tile independently.
func EncodeHextile(fb []byte, stride int, rect Rect, pf PixelFormat) []byte {
	var buf bytes.Buffer

	for ty := int(rect.Y); ty < int(rect.Y)+int(rect.H); ty += hextileTileSize {
		tileH := hextileTileSize
		if ty+tileH > int(rect.Y)+int(rect.H) {
			tileH = int(rect.Y) + int(rect.H) - ty
		}
		for tx := int(rect.X); tx < int(rect.X)+int(rect.W); tx += hextileTileSize {
			tileW := hextileTileSize
			if tx+tileW > int(rect.X)+int(rect.W) {
				tileW = int(rect.X) + int(rect.W) - tx
			}
			tile := Rect{X: uint16(tx), Y: uint16(ty), W: uint16(tileW), H: uint16(tileH)}
			encodeHextileTile(&buf, fb, stride, tile, pf)
		}
	}
	return buf.Bytes()
}

func encodeHextileTile(buf *bytes.Buffer, fb []byte, stride int, tile Rect, pf PixelFormat) {
	background := majorityColor(fb, stride, tile)
	subs := findSubRects(fb, stride, tile, background)

	if len(subs) == 0 {
		_ = writeU8(buf, hextileBackgroundSpecified)
		_ = WritePixel(buf, background, pf)
		return
	}

	if len(subs) > int(tile.W)*int(tile.H)/4 {
		_ = writeU8(buf, hextileRaw)
		buf.Write(EncodeRaw(fb, stride, tile, pf))
		return
	}

	distinct := make(map[[4]byte]struct{})
	for _, s := range subs {
		distinct[s.color] = struct{}{}
	}

	if len(distinct) == 1 {
		foreground := subs[0].color
		mask := uint8(hextileBackgroundSpecified | hextileForegroundSpecified | hextileAnySubrects)
		_ = writeU8(buf, mask)
		_ = WritePixel(buf, background, pf)
		_ = WritePixel(buf, foreground, pf)
		_ = writeU8(buf, uint8(len(subs)))
		for _, s := range subs {
			writeHextileGeometry(buf, s)
		}
		return
	}

	mask := uint8(hextileBackgroundSpecified | hextileAnySubrects | hextileSubrectsColoured)
	_ = writeU8(buf, mask)
	_ = WritePixel(buf, background, pf)
	_ = writeU8(buf, uint8(len(subs)))
	for _, s := range subs {
		_ = WritePixel(buf, s.color, pf)
		writeHextileGeometry(buf, s)
	}
}

// writeHextileGeometry packs (x,y) into one byte as (x<<4)|y and
// (w-1,h-1) into another as ((w-1)<<4)|(h-1).
func writeHextileGeometry(buf *bytes.Buffer, s subRect) {
	_ = writeU8(buf, uint8(s.x<<4)|uint8(s.y))
	_ = writeU8(buf, uint8((s.w-1)<<4)|uint8(s.h-1))
}
