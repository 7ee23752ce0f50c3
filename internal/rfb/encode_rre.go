package rfb

import "bytes"

// EncodeRRE implements Rise-and-Run-length Encoding: a background color
// plus a list of solid-colored sub-rectangles, each relative to rect's
// own origin.
func EncodeRRE(fb []byte, stride int, rect Rect, pf PixelFormat) []byte {
	background := majorityColor(fb, stride, rect)
	subs := findSubRects(fb, stride, rect, background)

	var buf bytes.Buffer
	_ = writeU32(&buf, uint32(len(subs)))
	_ = WritePixel(&buf, background, pf)
	for _, s := range subs {
		_ = WritePixel(&buf, s.color, pf)
		_ = writeU16(&buf, s.x)
		_ = writeU16(&buf, s.y)
		_ = writeU16(&buf, s.w)
		_ = writeU16(&buf, s.h)
	}
	return buf.Bytes()
}

// IsRREEfficient reports whether RRE would be a good encoding choice for
// rect: true iff the sub-rectangle count is bounded and the resulting
// payload would be smaller than half the equivalent Raw encoding.
func IsRREEfficient(fb []byte, stride int, rect Rect, pf PixelFormat) bool {
	background := majorityColor(fb, stride, rect)
	subs := findSubRects(fb, stride, rect, background)
	if len(subs) > 50 {
		return false
	}
	bpp := pf.BytesPerPixel()
	encodedSize := 4 + bpp + len(subs)*(bpp+8)
	rawSize := int(rect.W) * int(rect.H) * bpp
	return float64(encodedSize) < 0.5*float64(rawSize)
}
