package rfb

import "context"

// Source is the platform-specific screen-capture collaborator. It
// returns the latest captured frame as a BGRA byte slice of length
// 4*width*height, or ok=false meaning "no new frame available", in
// which case the server reuses the previously returned frame; this is
// not an error upstream.
type Source interface {
	NextFrame(ctx context.Context) (frame []byte, ok bool, err error)
}

// Sink is the host-OS input-injection collaborator. KeySym carries
// an X11-style symbolic keycode; the button mask follows RFB convention
// (bit 0 left, 1 middle, 2 right, 3 wheel-up, 4 wheel-down).
type Sink interface {
	Key(down bool, keysym uint32)
	Pointer(buttonMask uint8, x, y uint16)
}

// SourceFunc and SinkFuncs let callers supply Source/Sink as plain
// function values for cases where wrapping a bare func is simpler than
// defining a named type satisfying the interface.
type SourceFunc func(ctx context.Context) ([]byte, bool, error)

func (f SourceFunc) NextFrame(ctx context.Context) ([]byte, bool, error) { return f(ctx) }

type SinkFuncs struct {
	KeyFunc     func(down bool, keysym uint32)
	PointerFunc func(buttonMask uint8, x, y uint16)
}

func (f SinkFuncs) Key(down bool, keysym uint32)              { f.KeyFunc(down, keysym) }
func (f SinkFuncs) Pointer(buttonMask uint8, x, y uint16)      { f.PointerFunc(buttonMask, x, y) }
