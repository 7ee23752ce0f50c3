// Package rfb implements the server side of the Remote Framebuffer (RFB)
// protocol: the version/security handshake, the per-client message loop,
// dirty-region tracking, and the Raw/CopyRect/RRE/Hextile rectangle
// encoders.
package rfb

import (
	"encoding/binary"
	"fmt"
	"io"
)

// readFull reads exactly len(buf) bytes, looping until satisfied or the
// stream ends. A short read before EOF is itself reported as io.ErrUnexpectedEOF
// by io.ReadFull, which callers treat as StreamClosed.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}

func readU8(r io.Reader) (uint8, error) {
	var b [1]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readI32(r io.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}

func writeU8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func writeU16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeI32(w io.Writer, v int32) error {
	return writeU32(w, uint32(v))
}

// PixelFormat describes how a pixel is laid out on the wire. It is
// always 16 bytes.
type PixelFormat struct {
	BitsPerPixel uint8
	Depth        uint8
	BigEndian    bool
	TrueColor    bool
	RedMax       uint16
	GreenMax     uint16
	BlueMax      uint16
	RedShift     uint8
	GreenShift   uint8
	BlueShift    uint8
	// 3 padding bytes follow on the wire; not represented here.
}

// DefaultPixelFormat is the 32bpp/depth-24 little-endian true-color format
// this server advertises by default: B,G,R,0 byte order matching the BGRA
// framebuffer the capture source supplies.
var DefaultPixelFormat = PixelFormat{
	BitsPerPixel: 32,
	Depth:        24,
	BigEndian:    false,
	TrueColor:    true,
	RedMax:       255,
	GreenMax:     255,
	BlueMax:      255,
	RedShift:     16,
	GreenShift:   8,
	BlueShift:    0,
}

// BytesPerPixel returns BitsPerPixel/8.
func (f PixelFormat) BytesPerPixel() int {
	return int(f.BitsPerPixel) / 8
}

// Validate checks that channel-max fits in its bit width and that shifts
// don't overlap within bpp.
func (f PixelFormat) Validate() error {
	if f.BitsPerPixel != 8 && f.BitsPerPixel != 16 && f.BitsPerPixel != 32 {
		return fmt.Errorf("rfb: invalid bits-per-pixel %d", f.BitsPerPixel)
	}
	if f.Depth > f.BitsPerPixel {
		return fmt.Errorf("rfb: depth %d exceeds bits-per-pixel %d", f.Depth, f.BitsPerPixel)
	}
	var used uint64
	for _, ch := range []struct {
		max   uint16
		shift uint8
		name  string
	}{{f.RedMax, f.RedShift, "red"}, {f.GreenMax, f.GreenShift, "green"}, {f.BlueMax, f.BlueShift, "blue"}} {
		bits := bitsFor(ch.max)
		if uint32(ch.max) != (uint32(1)<<bits)-1 {
			return fmt.Errorf("rfb: %s-max %d is not (1<<n)-1", ch.name, ch.max)
		}
		if uint(ch.shift)+bits > uint(f.BitsPerPixel) {
			return fmt.Errorf("rfb: %s channel (shift %d, max %d) exceeds %d bits per pixel", ch.name, ch.shift, ch.max, f.BitsPerPixel)
		}
		mask := uint64(ch.max) << ch.shift
		if used&mask != 0 {
			return fmt.Errorf("rfb: %s channel overlaps another channel", ch.name)
		}
		used |= mask
	}
	return nil
}

func bitsFor(max uint16) uint {
	var n uint
	for (uint32(1)<<n)-1 < uint32(max) {
		n++
	}
	return n
}

// WritePixelFormat serializes a PixelFormat as its 16-byte wire form.
func WritePixelFormat(w io.Writer, f PixelFormat) error {
	if err := writeU8(w, f.BitsPerPixel); err != nil {
		return err
	}
	if err := writeU8(w, f.Depth); err != nil {
		return err
	}
	if err := writeU8(w, boolToU8(f.BigEndian)); err != nil {
		return err
	}
	if err := writeU8(w, boolToU8(f.TrueColor)); err != nil {
		return err
	}
	if err := writeU16(w, f.RedMax); err != nil {
		return err
	}
	if err := writeU16(w, f.GreenMax); err != nil {
		return err
	}
	if err := writeU16(w, f.BlueMax); err != nil {
		return err
	}
	if err := writeU8(w, f.RedShift); err != nil {
		return err
	}
	if err := writeU8(w, f.GreenShift); err != nil {
		return err
	}
	if err := writeU8(w, f.BlueShift); err != nil {
		return err
	}
	_, err := w.Write([]byte{0, 0, 0})
	return err
}

// ReadPixelFormat reads a 16-byte PixelFormat from the wire.
func ReadPixelFormat(r io.Reader) (PixelFormat, error) {
	var f PixelFormat
	var buf [16]byte
	if err := readFull(r, buf[:]); err != nil {
		return f, err
	}
	f.BitsPerPixel = buf[0]
	f.Depth = buf[1]
	f.BigEndian = buf[2] != 0
	f.TrueColor = buf[3] != 0
	f.RedMax = binary.BigEndian.Uint16(buf[4:6])
	f.GreenMax = binary.BigEndian.Uint16(buf[6:8])
	f.BlueMax = binary.BigEndian.Uint16(buf[8:10])
	f.RedShift = buf[10]
	f.GreenShift = buf[11]
	f.BlueShift = buf[12]
	return f, nil
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// WritePixel serializes one BGRA source pixel under the negotiated pixel
// format. For the default 32bpp little-endian true-color format this is a
// direct B,G,R,0 passthrough; other bpp/byte-order combinations are
// reconstructed from the BGRA channels via the format's shifts and maxima.
func WritePixel(w io.Writer, bgra [4]byte, f PixelFormat) error {
	if f.BitsPerPixel == 32 && !f.BigEndian && f.TrueColor &&
		f.RedShift == 16 && f.GreenShift == 8 && f.BlueShift == 0 {
		out := [4]byte{bgra[0], bgra[1], bgra[2], 0}
		_, err := w.Write(out[:])
		return err
	}

	b, g, r := uint32(bgra[0]), uint32(bgra[1]), uint32(bgra[2])
	value := scaleChannel(r, f.RedMax) << f.RedShift
	value |= scaleChannel(g, f.GreenMax) << f.GreenShift
	value |= scaleChannel(b, f.BlueMax) << f.BlueShift

	switch f.BitsPerPixel {
	case 8:
		_, err := w.Write([]byte{byte(value)})
		return err
	case 16:
		var buf [2]byte
		if f.BigEndian {
			binary.BigEndian.PutUint16(buf[:], uint16(value))
		} else {
			binary.LittleEndian.PutUint16(buf[:], uint16(value))
		}
		_, err := w.Write(buf[:])
		return err
	default: // 32
		var buf [4]byte
		if f.BigEndian {
			binary.BigEndian.PutUint32(buf[:], value)
		} else {
			binary.LittleEndian.PutUint32(buf[:], value)
		}
		_, err := w.Write(buf[:])
		return err
	}
}

// scaleChannel maps an 8-bit channel value onto [0, max].
func scaleChannel(v uint32, max uint16) uint32 {
	if max == 255 {
		return v
	}
	return (v * uint32(max)) / 255
}
