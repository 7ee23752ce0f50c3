package rfb

import "bytes"

// EncodeCopyRect builds the 4-byte CopyRect payload instructing the client
// to copy (srcX, srcY, w, h) from its own framebuffer to the rectangle
// named in the surrounding rect header. The encoder does not search for a
// matching source region; the caller supplies it.
func EncodeCopyRect(srcX, srcY uint16) []byte {
	var buf bytes.Buffer
	_ = writeU16(&buf, srcX)
	_ = writeU16(&buf, srcY)
	return buf.Bytes()
}
