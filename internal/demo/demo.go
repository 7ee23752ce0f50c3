// Package demo provides an animated test-pattern Source and a
// log-only Sink, used by cmd/rfbd when no real capture backend is
// wired in.
package demo

import (
	"context"
	"log/slog"
)

// PatternSource renders a sliding color-bar test pattern into a BGRA
// framebuffer, advancing one step per NextFrame call.
type PatternSource struct {
	width, height int
	frame         int
	buf           []byte
}

// NewPatternSource allocates a pattern generator for the given dimensions.
func NewPatternSource(width, height int) *PatternSource {
	return &PatternSource{width: width, height: height, buf: make([]byte, width*height*4)}
}

// NextFrame implements rfb.Source.
func (p *PatternSource) NextFrame(ctx context.Context) ([]byte, bool, error) {
	p.frame++
	anim := p.frame
	w, h := p.width, p.height
	pos := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := uint8(x), uint8(y), uint8(x+y+anim)
			switch {
			case x < anim%50:
				r, g, b = 255, 0, 0
			case x > w-50:
				r, g, b = 0, 255, 0
			case y < 50-anim%50:
				r, g, b = 255, 255, 0
			case y > h-50:
				r, g, b = 0, 0, 255
			}
			p.buf[pos] = b
			p.buf[pos+1] = g
			p.buf[pos+2] = r
			p.buf[pos+3] = 0
			pos += 4
		}
	}
	return p.buf, true, nil
}

// LoggingSink records input events at debug level instead of injecting
// them into a real display server.
type LoggingSink struct {
	logger *slog.Logger
}

// NewLoggingSink builds a Sink that logs everything it receives.
func NewLoggingSink(logger *slog.Logger) *LoggingSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingSink{logger: logger}
}

func (s *LoggingSink) Key(down bool, keysym uint32) {
	s.logger.Debug("demo: key event", "down", down, "keysym", keysym)
}

func (s *LoggingSink) Pointer(buttonMask uint8, x, y uint16) {
	s.logger.Debug("demo: pointer event", "buttons", buttonMask, "x", x, "y", y)
}
