package rfb

import (
	"encoding/binary"
	"fmt"
)

// The Decode* functions below are not part of the server's runtime path.
// A real RFB client decodes these wire formats, not this server, but
// they give the encoders' lossless round-trip behavior something
// concrete to check against, the same way a protocol library ships
// decode alongside encode for its own tests.

// DecodeRawInto reconstructs the BGRA pixels of rect from a Raw-encoded
// payload into dst (a stride-sized full framebuffer buffer).
func DecodeRawInto(dst []byte, stride int, rect Rect, payload []byte, pf PixelFormat) error {
	bpp := pf.BytesPerPixel()
	want := int(rect.W) * int(rect.H) * bpp
	if len(payload) != want {
		return fmt.Errorf("rfb: raw payload length %d, want %d", len(payload), want)
	}
	i := 0
	for y := int(rect.Y); y < int(rect.Y)+int(rect.H); y++ {
		for x := int(rect.X); x < int(rect.X)+int(rect.W); x++ {
			px := decodePixel(payload[i:i+bpp], pf)
			setPixel(dst, stride, x, y, px)
			i += bpp
		}
	}
	return nil
}

// DecodeRREInto reconstructs rect's pixels from an RRE payload.
func DecodeRREInto(dst []byte, stride int, rect Rect, payload []byte, pf PixelFormat) error {
	bpp := pf.BytesPerPixel()
	if len(payload) < 4+bpp {
		return fmt.Errorf("rfb: rre payload too short")
	}
	numSubRects := binary.BigEndian.Uint32(payload[0:4])
	off := 4
	background := decodePixel(payload[off:off+bpp], pf)
	off += bpp
	fillRect(dst, stride, rect, background)

	for i := uint32(0); i < numSubRects; i++ {
		if off+bpp+8 > len(payload) {
			return fmt.Errorf("rfb: rre payload truncated")
		}
		color := decodePixel(payload[off:off+bpp], pf)
		off += bpp
		x := binary.BigEndian.Uint16(payload[off : off+2])
		y := binary.BigEndian.Uint16(payload[off+2 : off+4])
		w := binary.BigEndian.Uint16(payload[off+4 : off+6])
		h := binary.BigEndian.Uint16(payload[off+6 : off+8])
		off += 8
		sub := Rect{X: rect.X + x, Y: rect.Y + y, W: w, H: h}
		fillRect(dst, stride, sub, color)
	}
	return nil
}

// DecodeHextileInto reconstructs rect's pixels from a Hextile payload.
func DecodeHextileInto(dst []byte, stride int, rect Rect, payload []byte, pf PixelFormat) error {
	bpp := pf.BytesPerPixel()
	off := 0
	var background, foreground [4]byte

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

			if off >= len(payload) {
				return fmt.Errorf("rfb: hextile payload truncated")
			}
			mask := payload[off]
			off++

			if mask&hextileRaw != 0 {
				n := int(tile.W) * int(tile.H) * bpp
				if off+n > len(payload) {
					return fmt.Errorf("rfb: hextile raw payload truncated")
				}
				if err := DecodeRawInto(dst, stride, tile, payload[off:off+n], pf); err != nil {
					return err
				}
				off += n
				continue
			}

			if mask&hextileBackgroundSpecified != 0 {
				if off+bpp > len(payload) {
					return fmt.Errorf("rfb: hextile background truncated")
				}
				background = decodePixel(payload[off:off+bpp], pf)
				off += bpp
			}
			if mask&hextileForegroundSpecified != 0 {
				if off+bpp > len(payload) {
					return fmt.Errorf("rfb: hextile foreground truncated")
				}
				foreground = decodePixel(payload[off:off+bpp], pf)
				off += bpp
			}

			fillRect(dst, stride, tile, background)

			if mask&hextileAnySubrects != 0 {
				if off >= len(payload) {
					return fmt.Errorf("rfb: hextile subrect count truncated")
				}
				count := int(payload[off])
				off++
				for i := 0; i < count; i++ {
					color := foreground
					if mask&hextileSubrectsColoured != 0 {
						if off+bpp > len(payload) {
							return fmt.Errorf("rfb: hextile subrect color truncated")
						}
						color = decodePixel(payload[off:off+bpp], pf)
						off += bpp
					}
					if off+2 > len(payload) {
						return fmt.Errorf("rfb: hextile subrect geometry truncated")
					}
					xy := payload[off]
					wh := payload[off+1]
					off += 2
					x := uint16(xy >> 4)
					y := uint16(xy & 0x0F)
					w := uint16(wh>>4) + 1
					h := uint16(wh&0x0F) + 1
					sub := Rect{X: tile.X + x, Y: tile.Y + y, W: w, H: h}
					fillRect(dst, stride, sub, color)
				}
			}
		}
	}
	return nil
}

func decodePixel(b []byte, pf PixelFormat) [4]byte {
	if pf.BitsPerPixel == 32 && !pf.BigEndian && pf.TrueColor &&
		pf.RedShift == 16 && pf.GreenShift == 8 && pf.BlueShift == 0 {
		return [4]byte{b[0], b[1], b[2], b[3]}
	}
	var value uint32
	switch pf.BitsPerPixel {
	case 8:
		value = uint32(b[0])
	case 16:
		if pf.BigEndian {
			value = uint32(binary.BigEndian.Uint16(b))
		} else {
			value = uint32(binary.LittleEndian.Uint16(b))
		}
	default:
		if pf.BigEndian {
			value = binary.BigEndian.Uint32(b)
		} else {
			value = binary.LittleEndian.Uint32(b)
		}
	}
	r := unscaleChannel((value>>pf.RedShift)&channelMask(pf.RedMax), pf.RedMax)
	g := unscaleChannel((value>>pf.GreenShift)&channelMask(pf.GreenMax), pf.GreenMax)
	bl := unscaleChannel((value>>pf.BlueShift)&channelMask(pf.BlueMax), pf.BlueMax)
	return [4]byte{byte(bl), byte(g), byte(r), 0}
}

func channelMask(max uint16) uint32 {
	return uint32(max)
}

func unscaleChannel(v uint32, max uint16) uint32 {
	if max == 255 {
		return v
	}
	return (v * 255) / uint32(max)
}

func setPixel(buf []byte, stride, x, y int, px [4]byte) {
	i := (y*stride + x) * 4
	copy(buf[i:i+4], px[:])
}

func fillRect(buf []byte, stride int, rect Rect, px [4]byte) {
	for y := int(rect.Y); y < int(rect.Y)+int(rect.H); y++ {
		for x := int(rect.X); x < int(rect.X)+int(rect.W); x++ {
			setPixel(buf, stride, x, y, px)
		}
	}
}
