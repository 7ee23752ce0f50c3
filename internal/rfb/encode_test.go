package rfb

import (
	"bytes"
	"testing"
)

func TestEncodeRawLiteralScenario(t *testing.T) {
	fb := []byte{
		0x01, 0x02, 0x03, 0x00,
		0x04, 0x05, 0x06, 0x00,
		0x07, 0x08, 0x09, 0x00,
		0x0A, 0x0B, 0x0C, 0x00,
	}
	rect := Rect{X: 0, Y: 0, W: 2, H: 2}
	got := EncodeRaw(fb, 2, rect, DefaultPixelFormat)
	want := []byte{
		0x01, 0x02, 0x03, 0x00,
		0x04, 0x05, 0x06, 0x00,
		0x07, 0x08, 0x09, 0x00,
		0x0A, 0x0B, 0x0C, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestEncodeRawLength(t *testing.T) {
	fb := make([]byte, 10*10*4)
	rect := Rect{X: 1, Y: 1, W: 4, H: 3}
	got := EncodeRaw(fb, 10, rect, DefaultPixelFormat)
	if len(got) != 4*3*4 {
		t.Fatalf("len = %d, want %d", len(got), 4*3*4)
	}
}

func TestEncodeRawDecodeRoundTrip(t *testing.T) {
	fb := randomFramebuffer(20, 15)
	rect := Rect{X: 2, Y: 3, W: 10, H: 8}
	payload := EncodeRaw(fb, 20, rect, DefaultPixelFormat)

	dst := make([]byte, len(fb))
	if err := DecodeRawInto(dst, 20, rect, payload, DefaultPixelFormat); err != nil {
		t.Fatal(err)
	}
	assertRectEqual(t, fb, dst, 20, rect)
}

func TestEncodeCopyRectPayloadLength(t *testing.T) {
	payload := EncodeCopyRect(10, 20)
	if len(payload) != 4 {
		t.Fatalf("len = %d, want 4", len(payload))
	}
	want := []byte{0x00, 0x0A, 0x00, 0x14}
	if !bytes.Equal(payload, want) {
		t.Fatalf("got %x, want %x", payload, want)
	}
}

func TestEncodeRREDecodeRoundTrip(t *testing.T) {
	fb := solidFramebuffer(64, 64, [4]byte{0, 0, 0, 0})
	// Paint a handful of disjoint solid rectangles on the solid background.
	paintRect(fb, 64, Rect{X: 2, Y: 2, W: 10, H: 5}, [4]byte{0, 0, 255, 0})
	paintRect(fb, 64, Rect{X: 30, Y: 10, W: 8, H: 8}, [4]byte{0, 255, 0, 0})
	paintRect(fb, 64, Rect{X: 50, Y: 40, W: 6, H: 20}, [4]byte{255, 0, 0, 0})

	rect := Rect{X: 0, Y: 0, W: 64, H: 64}
	payload := EncodeRRE(fb, 64, rect, DefaultPixelFormat)

	dst := make([]byte, len(fb))
	if err := DecodeRREInto(dst, 64, rect, payload, DefaultPixelFormat); err != nil {
		t.Fatal(err)
	}
	assertRectEqual(t, fb, dst, 64, rect)
}

func TestIsRREEfficientForSparseScene(t *testing.T) {
	fb := solidFramebuffer(64, 64, [4]byte{10, 10, 10, 0})
	paintRect(fb, 64, Rect{X: 4, Y: 4, W: 8, H: 8}, [4]byte{200, 0, 0, 0})
	rect := Rect{X: 0, Y: 0, W: 64, H: 64}
	if !IsRREEfficient(fb, 64, rect, DefaultPixelFormat) {
		t.Fatal("expected RRE to be chosen as efficient for a sparse scene")
	}
}

func TestIsRREInefficientForNoisyScene(t *testing.T) {
	fb := randomFramebuffer(32, 32)
	rect := Rect{X: 0, Y: 0, W: 32, H: 32}
	if IsRREEfficient(fb, 32, rect, DefaultPixelFormat) {
		t.Fatal("expected RRE to be inefficient for random noise")
	}
}

func TestEncodeHextileSolidTileLiteralScenario(t *testing.T) {
	fb := solidFramebuffer(16, 16, [4]byte{0x00, 0x00, 0xFF, 0xFF}) // pure red, alpha=0xFF input
	rect := Rect{X: 0, Y: 0, W: 16, H: 16}
	got := EncodeHextile(fb, 16, rect, DefaultPixelFormat)
	want := []byte{0x02, 0x00, 0x00, 0xFF, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestEncodeHextileSolidScreenByteCount(t *testing.T) {
	w, h := 128, 96
	fb := solidFramebuffer(w, h, [4]byte{1, 2, 3, 0})
	rect := Rect{X: 0, Y: 0, W: uint16(w), H: uint16(h)}
	got := EncodeHextile(fb, w, rect, DefaultPixelFormat)

	tilesX := (w + 15) / 16
	tilesY := (h + 15) / 16
	numTiles := tilesX * tilesY
	bpp := DefaultPixelFormat.BytesPerPixel()
	want := numTiles*1 + numTiles*bpp
	if len(got) != want {
		t.Fatalf("len = %d, want %d", len(got), want)
	}
}

func TestEncodeHextileDecodeRoundTrip(t *testing.T) {
	fb := randomFramebuffer(70, 50)
	rect := Rect{X: 0, Y: 0, W: 70, H: 50}
	payload := EncodeHextile(fb, 70, rect, DefaultPixelFormat)

	dst := make([]byte, len(fb))
	if err := DecodeHextileInto(dst, 70, rect, payload, DefaultPixelFormat); err != nil {
		t.Fatal(err)
	}
	assertRectEqual(t, fb, dst, 70, rect)
}

func TestEncodeHextileMixedTileDecodeRoundTrip(t *testing.T) {
	fb := solidFramebuffer(32, 16, [4]byte{5, 5, 5, 0})
	paintRect(fb, 32, Rect{X: 2, Y: 2, W: 4, H: 4}, [4]byte{200, 0, 0, 0})
	paintRect(fb, 32, Rect{X: 8, Y: 8, W: 3, H: 3}, [4]byte{0, 200, 0, 0})
	rect := Rect{X: 0, Y: 0, W: 32, H: 16}
	payload := EncodeHextile(fb, 32, rect, DefaultPixelFormat)

	dst := make([]byte, len(fb))
	if err := DecodeHextileInto(dst, 32, rect, payload, DefaultPixelFormat); err != nil {
		t.Fatal(err)
	}
	assertRectEqual(t, fb, dst, 32, rect)
}

// --- helpers ---

func randomFramebuffer(w, h int) []byte {
	buf := make([]byte, w*h*4)
	var seed uint32 = 0x2545F491
	for i := range buf {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		buf[i] = byte(seed)
	}
	// The encoders always write alpha as 0 (PixelFormat has no alpha bits
	// in DefaultPixelFormat), so zero it here too; otherwise every
	// round-trip comparison below would fail on the alpha byte alone.
	for i := 3; i < len(buf); i += 4 {
		buf[i] = 0
	}
	return buf
}

func solidFramebuffer(w, h int, px [4]byte) []byte {
	buf := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		copy(buf[i*4:i*4+4], px[:])
	}
	return buf
}

func paintRect(buf []byte, stride int, r Rect, px [4]byte) {
	fillRect(buf, stride, r, px)
}

func assertRectEqual(t *testing.T, want, got []byte, stride int, rect Rect) {
	t.Helper()
	for y := int(rect.Y); y < int(rect.Y)+int(rect.H); y++ {
		for x := int(rect.X); x < int(rect.X)+int(rect.W); x++ {
			i := (y*stride + x) * 4
			if !bytes.Equal(want[i:i+4], got[i:i+4]) {
				t.Fatalf("pixel (%d,%d) mismatch: want %x got %x", x, y, want[i:i+4], got[i:i+4])
			}
		}
	}
}
