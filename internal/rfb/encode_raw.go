package rfb

import "bytes"

// EncodeRaw serializes sub-rectangle rect of fb row by row under pixel
// format pf. Output length is exactly w*h*bytesPerPixel.
func EncodeRaw(fb []byte, stride int, rect Rect, pf PixelFormat) []byte {
	var buf bytes.Buffer
	buf.Grow(int(rect.W) * int(rect.H) * pf.BytesPerPixel())
	for y := int(rect.Y); y < int(rect.Y)+int(rect.H); y++ {
		for x := int(rect.X); x < int(rect.X)+int(rect.W); x++ {
			px := pixelAt(fb, stride, x, y)
			// WritePixel never errors writing to a bytes.Buffer.
			_ = WritePixel(&buf, px, pf)
		}
	}
	return buf.Bytes()
}
