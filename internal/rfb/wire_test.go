package rfb

import (
	"bytes"
	"testing"
)

func TestReadWriteIntegers(t *testing.T) {
	var buf bytes.Buffer
	if err := writeU16(&buf, 0x1234); err != nil {
		t.Fatal(err)
	}
	if err := writeU32(&buf, 0x89ABCDEF); err != nil {
		t.Fatal(err)
	}
	if err := writeI32(&buf, -239); err != nil {
		t.Fatal(err)
	}

	got16, err := readU16(&buf)
	if err != nil || got16 != 0x1234 {
		t.Fatalf("readU16 = %x, %v", got16, err)
	}
	got32, err := readU32(&buf)
	if err != nil || got32 != 0x89ABCDEF {
		t.Fatalf("readU32 = %x, %v", got32, err)
	}
	gotI32, err := readI32(&buf)
	if err != nil || gotI32 != -239 {
		t.Fatalf("readI32 = %d, %v", gotI32, err)
	}
}

func TestReadFullShortReadIsError(t *testing.T) {
	r := bytes.NewReader([]byte{0x01})
	if _, err := readU32(r); err == nil {
		t.Fatal("expected error on short read")
	}
}

func TestPixelFormatRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePixelFormat(&buf, DefaultPixelFormat); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 16 {
		t.Fatalf("expected 16 bytes, got %d", buf.Len())
	}
	got, err := ReadPixelFormat(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != DefaultPixelFormat {
		t.Fatalf("got %+v, want %+v", got, DefaultPixelFormat)
	}
}

func TestPixelFormatValidate(t *testing.T) {
	cases := []struct {
		name    string
		f       PixelFormat
		wantErr bool
	}{
		{"default", DefaultPixelFormat, false},
		{"bad bpp", PixelFormat{BitsPerPixel: 24}, true},
		{"depth exceeds bpp", PixelFormat{BitsPerPixel: 8, Depth: 16, RedMax: 0, GreenMax: 0, BlueMax: 0}, true},
		{"overlapping channel shifts", PixelFormat{BitsPerPixel: 16, Depth: 16, RedMax: 7, GreenMax: 3, BlueMax: 1}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.f.Validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestWritePixelDefaultFormatIsBGRAPassthrough(t *testing.T) {
	var buf bytes.Buffer
	px := [4]byte{0x10, 0x20, 0x30, 0xFF}
	if err := WritePixel(&buf, px, DefaultPixelFormat); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x10, 0x20, 0x30, 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got %x, want %x", buf.Bytes(), want)
	}
}

func TestWritePixel16BitTruecolor(t *testing.T) {
	f := PixelFormat{
		BitsPerPixel: 16, Depth: 16, BigEndian: true, TrueColor: true,
		RedMax: 31, GreenMax: 63, BlueMax: 31,
		RedShift: 11, GreenShift: 5, BlueShift: 0,
	}
	var buf bytes.Buffer
	if err := WritePixel(&buf, [4]byte{0, 0, 0xFF, 0}, f); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 2 {
		t.Fatalf("expected 2 bytes, got %d", buf.Len())
	}
}
