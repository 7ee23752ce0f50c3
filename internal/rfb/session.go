package rfb

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the negotiated RFB protocol version.
type ProtocolVersion string

const (
	ProtocolVersion33 ProtocolVersion = "3.3"
	ProtocolVersion37 ProtocolVersion = "3.7"
	ProtocolVersion38 ProtocolVersion = "3.8"
)

// Security types offered during the handshake.
const (
	securityTypeNone     uint8 = 1
	securityTypeVNCAuth  uint8 = 2
)

// Client-to-server message types.
const (
	msgSetPixelFormat           uint8 = 0
	msgSetEncodings             uint8 = 2
	msgFramebufferUpdateRequest uint8 = 3
	msgKeyEvent                 uint8 = 4
	msgPointerEvent             uint8 = 5
	msgClientCutText            uint8 = 6
	msgSetDesktopSize           uint8 = 251
)

// ioTimeout bounds every stream read and write so a stalled client can't
// pin a goroutine forever.
const ioTimeout = 30 * time.Second

var versionLine = regexp.MustCompile(`^RFB (\d{3})\.(\d{3})\n$`)

// Session is a single client connection's handshake + message-loop state
// machine. It owns its net.Conn exclusively and keeps its own dirty
// snapshot for per-client incremental diffing.
type Session struct {
	ID       string
	conn     net.Conn
	server   *Server
	sink     Sink
	logger   *slog.Logger
	password string // snapshot taken at accept time; later password changes don't affect it
	reader   *bufio.Reader

	protocolVersion ProtocolVersion

	mu                 sync.Mutex // guards pixelFormat/encodings below
	pixelFormat        PixelFormat
	supportedEncodings EncodingSet

	tracker *DirtyTracker
	sendMu  sync.Mutex // serializes writes composing one FramebufferUpdate

	pendingMu  sync.Mutex
	pendingReq *UpdateRequest

	name string
}

func newSession(conn net.Conn, server *Server, password string, sink Sink, logger *slog.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		ID:                 id,
		conn:               conn,
		server:             server,
		sink:               sink,
		logger:             logger.With("session_id", id, "remote_addr", conn.RemoteAddr().String()),
		password:           password,
		reader:             bufio.NewReader(conn),
		pixelFormat:        DefaultPixelFormat,
		supportedEncodings: EncodingSet{},
		tracker:            NewDirtyTracker(),
		name:               server.name,
	}
}

// PixelFormat returns the session's currently negotiated pixel format.
func (s *Session) PixelFormat() PixelFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pixelFormat
}

// SupportsEncoding reports whether the client advertised enc via SetEncodings.
func (s *Session) SupportsEncoding(enc EncodingType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supportedEncodings.Has(enc)
}

// Run drives the handshake then the message loop until the connection
// ends or a protocol error occurs. It always closes conn before returning.
func (s *Session) Run(ctx context.Context) error {
	defer s.conn.Close()

	if err := s.handshake(); err != nil {
		s.logger.Warn("rfb: handshake failed", "error", err)
		return err
	}

	s.logger.Info("rfb: session established", "protocol_version", s.protocolVersion)

	for {
		if err := s.deadline(); err != nil {
			return err
		}
		msgType, err := readU8(s.reader)
		if err != nil {
			return classifyIOError(err)
		}
		if err := s.dispatch(ctx, msgType); err != nil {
			return err
		}
	}
}

func (s *Session) deadline() error {
	if err := s.conn.SetDeadline(time.Now().Add(ioTimeout)); err != nil {
		return fmt.Errorf("rfb: setting deadline: %w", err)
	}
	return nil
}

// --- Handshake (H0-H5) ---

func (s *Session) handshake() error {
	if err := s.h0SendVersion(); err != nil {
		return err
	}
	if err := s.h1ReadVersion(); err != nil {
		return err
	}
	secType, err := s.h2Security()
	if err != nil {
		return err
	}
	if err := s.h3Auth(secType); err != nil {
		return err
	}
	if err := s.h4ClientInit(); err != nil {
		return err
	}
	return s.h5ServerInit()
}

func (s *Session) h0SendVersion() error {
	if err := s.deadline(); err != nil {
		return err
	}
	_, err := s.conn.Write([]byte("RFB 003.008\n"))
	if err != nil {
		return classifyIOError(err)
	}
	return nil
}

func (s *Session) h1ReadVersion() error {
	if err := s.deadline(); err != nil {
		return err
	}
	buf := make([]byte, 12)
	if err := readFull(s.reader, buf); err != nil {
		return wrapProtocol("rfb: reading client version", classifyIOError(err))
	}
	m := versionLine.FindStringSubmatch(string(buf))
	if m == nil {
		return wrapProtocol("rfb: unparsable version string", fmt.Errorf("%q", buf))
	}
	switch m[2] {
	case "007":
		s.protocolVersion = ProtocolVersion37
	case "008":
		s.protocolVersion = ProtocolVersion38
	default:
		s.protocolVersion = ProtocolVersion33
	}
	return nil
}

func (s *Session) h2Security() (uint8, error) {
	offered := []uint8{securityTypeNone}
	if s.password != "" {
		offered = []uint8{securityTypeVNCAuth}
	}

	if s.protocolVersion == ProtocolVersion33 {
		if err := s.deadline(); err != nil {
			return 0, err
		}
		if err := writeU32(s.conn, uint32(offered[0])); err != nil {
			return 0, classifyIOError(err)
		}
		return offered[0], nil
	}

	if err := s.deadline(); err != nil {
		return 0, err
	}
	if err := writeU8(s.conn, uint8(len(offered))); err != nil {
		return 0, classifyIOError(err)
	}
	for _, t := range offered {
		if err := writeU8(s.conn, t); err != nil {
			return 0, classifyIOError(err)
		}
	}

	choice, err := readU8(s.reader)
	if err != nil {
		return 0, wrapProtocol("rfb: reading security choice", classifyIOError(err))
	}
	var chosen uint8
	for _, t := range offered {
		if t == choice {
			chosen = choice
		}
	}
	if chosen == 0 {
		_ = s.sendSecurityFailure("unsupported security type")
		return 0, ErrAuthFailed
	}
	return chosen, nil
}

func (s *Session) h3Auth(secType uint8) error {
	if secType == securityTypeVNCAuth {
		challenge, err := NewChallenge()
		if err != nil {
			return err
		}
		if err := s.deadline(); err != nil {
			return err
		}
		if _, err := s.conn.Write(challenge[:]); err != nil {
			return classifyIOError(err)
		}
		var response [ChallengeSize]byte
		if err := readFull(s.reader, response[:]); err != nil {
			return wrapProtocol("rfb: reading auth response", classifyIOError(err))
		}
		ok, err := VerifyResponse(challenge, response, s.password)
		if err != nil {
			return err
		}
		if !ok {
			_ = s.sendSecurityFailure("authentication failed")
			return ErrAuthFailed
		}
	}

	return s.sendSecurityOK()
}

func (s *Session) sendSecurityOK() error {
	if err := s.deadline(); err != nil {
		return err
	}
	return classifyIOError(writeU32(s.conn, 0))
}

func (s *Session) sendSecurityFailure(reason string) error {
	if err := s.deadline(); err != nil {
		return err
	}
	if err := writeU32(s.conn, 1); err != nil {
		return classifyIOError(err)
	}
	if s.protocolVersion == ProtocolVersion38 {
		if err := writeU32(s.conn, uint32(len(reason))); err != nil {
			return classifyIOError(err)
		}
		if _, err := s.conn.Write([]byte(reason)); err != nil {
			return classifyIOError(err)
		}
	}
	return nil
}

func (s *Session) h4ClientInit() error {
	if err := s.deadline(); err != nil {
		return err
	}
	if _, err := readU8(s.reader); err != nil { // shared-flag, ignored
		return wrapProtocol("rfb: reading ClientInit", classifyIOError(err))
	}
	return nil
}

func (s *Session) h5ServerInit() error {
	width, height := s.server.Dimensions()
	if err := s.deadline(); err != nil {
		return err
	}
	if err := writeU16(s.conn, uint16(width)); err != nil {
		return classifyIOError(err)
	}
	if err := writeU16(s.conn, uint16(height)); err != nil {
		return classifyIOError(err)
	}
	if err := WritePixelFormat(s.conn, s.PixelFormat()); err != nil {
		return classifyIOError(err)
	}
	if err := writeU32(s.conn, uint32(len(s.name))); err != nil {
		return classifyIOError(err)
	}
	_, err := s.conn.Write([]byte(s.name))
	return classifyIOError(err)
}

// --- Message loop ---

func (s *Session) dispatch(ctx context.Context, msgType uint8) error {
	switch msgType {
	case msgSetPixelFormat:
		return s.handleSetPixelFormat()
	case msgSetEncodings:
		return s.handleSetEncodings()
	case msgFramebufferUpdateRequest:
		return s.handleFramebufferUpdateRequest()
	case msgKeyEvent:
		return s.handleKeyEvent()
	case msgPointerEvent:
		return s.handlePointerEvent()
	case msgClientCutText:
		return s.handleClientCutText()
	case msgSetDesktopSize:
		return s.handleSetDesktopSize()
	default:
		return wrapProtocol("rfb: unknown message type", fmt.Errorf("%d", msgType))
	}
}

func (s *Session) handleSetPixelFormat() error {
	var pad [3]byte
	if err := readFull(s.reader, pad[:]); err != nil {
		return wrapProtocol("rfb: reading SetPixelFormat padding", classifyIOError(err))
	}
	pf, err := ReadPixelFormat(s.reader)
	if err != nil {
		return wrapProtocol("rfb: reading PixelFormat", classifyIOError(err))
	}
	if err := pf.Validate(); err != nil {
		return wrapProtocol("rfb: invalid PixelFormat", err)
	}
	s.mu.Lock()
	s.pixelFormat = pf
	s.mu.Unlock()
	return nil
}

func (s *Session) handleSetEncodings() error {
	if _, err := readU8(s.reader); err != nil { // padding
		return wrapProtocol("rfb: reading SetEncodings padding", classifyIOError(err))
	}
	count, err := readU16(s.reader)
	if err != nil {
		return wrapProtocol("rfb: reading SetEncodings count", classifyIOError(err))
	}
	codes := make([]int32, count)
	for i := range codes {
		v, err := readI32(s.reader)
		if err != nil {
			return wrapProtocol("rfb: reading encoding code", classifyIOError(err))
		}
		codes[i] = v
	}
	s.mu.Lock()
	s.supportedEncodings = NewEncodingSet(codes)
	s.mu.Unlock()
	return nil
}

// UpdateRequest mirrors the wire FramebufferUpdateRequest message.
type UpdateRequest struct {
	Incremental bool
	Rect        Rect
}

func (s *Session) readUpdateRequest() (UpdateRequest, error) {
	incByte, err := readU8(s.reader)
	if err != nil {
		return UpdateRequest{}, wrapProtocol("rfb: reading incremental flag", classifyIOError(err))
	}
	x, err := readU16(s.reader)
	if err != nil {
		return UpdateRequest{}, wrapProtocol("rfb: reading request x", classifyIOError(err))
	}
	y, err := readU16(s.reader)
	if err != nil {
		return UpdateRequest{}, wrapProtocol("rfb: reading request y", classifyIOError(err))
	}
	w, err := readU16(s.reader)
	if err != nil {
		return UpdateRequest{}, wrapProtocol("rfb: reading request w", classifyIOError(err))
	}
	h, err := readU16(s.reader)
	if err != nil {
		return UpdateRequest{}, wrapProtocol("rfb: reading request h", classifyIOError(err))
	}
	return UpdateRequest{Incremental: incByte != 0, Rect: Rect{X: x, Y: y, W: w, H: h}}, nil
}

func (s *Session) handleFramebufferUpdateRequest() error {
	req, err := s.readUpdateRequest()
	if err != nil {
		return err
	}
	sent, err := s.serviceUpdateRequest(req)
	if err != nil {
		return err
	}
	// Pull-model backpressure: if nothing was dirty yet, remember the
	// request so the next broadcast can satisfy it instead of the client
	// having to poll.
	s.pendingMu.Lock()
	if sent {
		s.pendingReq = nil
	} else {
		reqCopy := req
		s.pendingReq = &reqCopy
	}
	s.pendingMu.Unlock()
	return nil
}

// tryServicePending attempts to satisfy this session's outstanding
// FramebufferUpdateRequest, if any, against the latest framebuffer
// contents. Called by the server after set_frame/resize/broadcast_full.
func (s *Session) tryServicePending() {
	s.pendingMu.Lock()
	req := s.pendingReq
	s.pendingMu.Unlock()
	if req == nil {
		return
	}
	sent, err := s.serviceUpdateRequest(*req)
	if err != nil {
		return // the message loop's next read will observe the closed conn
	}
	if sent {
		s.pendingMu.Lock()
		s.pendingReq = nil
		s.pendingMu.Unlock()
	}
}

// serviceUpdateRequest diffs the current frame against the session's last
// sent snapshot and, if anything within the requested rectangle changed,
// sends an update. It reports whether an update was actually written.
func (s *Session) serviceUpdateRequest(req UpdateRequest) (bool, error) {
	snapshot := s.server.fb.Snapshot()
	width, height := s.server.Dimensions()

	if !req.Incremental {
		s.tracker.ForceFullUpdate()
	}
	dirty := s.tracker.Diff(snapshot, width, height)

	if dirty.Empty() {
		return false, nil
	}

	out := dirty.Clamp(width, height)
	if req.Incremental {
		out = out.Intersect(req.Rect)
	}
	if out.Empty() {
		return false, nil
	}

	if err := s.sendUpdate(snapshot, width, out); err != nil {
		return false, err
	}
	return true, nil
}

// sendUpdate writes one FramebufferUpdate message containing a single
// rectangle encoded per the session's preferred encoding.
func (s *Session) sendUpdate(snapshot []byte, stride int, rect Rect) error {
	pf := s.PixelFormat()
	enc := s.preferredEncoding()
	var payload []byte
	switch enc {
	case EncodingHextile:
		payload = EncodeHextile(snapshot, stride, rect, pf)
	default:
		payload = EncodeRaw(snapshot, stride, rect, pf)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if err := s.deadline(); err != nil {
		return err
	}
	var buf bytes.Buffer
	_ = writeU8(&buf, 0) // FramebufferUpdate message type
	_ = writeU8(&buf, 0) // padding
	_ = writeU16(&buf, 1)
	_ = writeU16(&buf, rect.X)
	_ = writeU16(&buf, rect.Y)
	_ = writeU16(&buf, rect.W)
	_ = writeU16(&buf, rect.H)
	_ = writeI32(&buf, int32(enc))
	buf.Write(payload)

	_, err := s.conn.Write(buf.Bytes())
	if err == nil {
		recordEncoded(enc, len(payload))
	}
	return classifyIOError(err)
}

// preferredEncoding picks Hextile if the client advertised it, else Raw.
// CopyRect is never auto-selected (the caller must supply a source
// location explicitly); RRE is never auto-selected either, even when
// advertised, since nothing in the capture path currently identifies
// rectangles it would suit.
func (s *Session) preferredEncoding() EncodingType {
	if s.SupportsEncoding(EncodingHextile) {
		return EncodingHextile
	}
	return EncodingRaw
}

// SendCopyRect writes a CopyRect rectangle moving (srcX,srcY,w,h) to
// (x,y). Only called when the caller explicitly supplies the source
// location; this session never searches for motion itself.
func (s *Session) SendCopyRect(dst Rect, srcX, srcY uint16) error {
	if !s.SupportsEncoding(EncodingCopyRect) {
		return fmt.Errorf("rfb: client did not advertise CopyRect")
	}
	payload := EncodeCopyRect(srcX, srcY)

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.deadline(); err != nil {
		return err
	}
	var buf bytes.Buffer
	_ = writeU8(&buf, 0)
	_ = writeU8(&buf, 0)
	_ = writeU16(&buf, 1)
	_ = writeU16(&buf, dst.X)
	_ = writeU16(&buf, dst.Y)
	_ = writeU16(&buf, dst.W)
	_ = writeU16(&buf, dst.H)
	_ = writeI32(&buf, int32(EncodingCopyRect))
	buf.Write(payload)
	_, err := s.conn.Write(buf.Bytes())
	if err == nil {
		recordEncoded(EncodingCopyRect, len(payload))
	}
	return classifyIOError(err)
}

func (s *Session) handleKeyEvent() error {
	downByte, err := readU8(s.reader)
	if err != nil {
		return wrapProtocol("rfb: reading KeyEvent down flag", classifyIOError(err))
	}
	var pad [2]byte
	if err := readFull(s.reader, pad[:]); err != nil {
		return wrapProtocol("rfb: reading KeyEvent padding", classifyIOError(err))
	}
	keysym, err := readU32(s.reader)
	if err != nil {
		return wrapProtocol("rfb: reading KeyEvent keysym", classifyIOError(err))
	}
	if s.sink != nil {
		s.sink.Key(downByte != 0, keysym)
	}
	return nil
}

func (s *Session) handlePointerEvent() error {
	buttons, err := readU8(s.reader)
	if err != nil {
		return wrapProtocol("rfb: reading PointerEvent buttons", classifyIOError(err))
	}
	x, err := readU16(s.reader)
	if err != nil {
		return wrapProtocol("rfb: reading PointerEvent x", classifyIOError(err))
	}
	y, err := readU16(s.reader)
	if err != nil {
		return wrapProtocol("rfb: reading PointerEvent y", classifyIOError(err))
	}
	if s.sink != nil {
		s.sink.Pointer(buttons, x, y)
	}
	return nil
}

func (s *Session) handleClientCutText() error {
	var pad [3]byte
	if err := readFull(s.reader, pad[:]); err != nil {
		return wrapProtocol("rfb: reading ClientCutText padding", classifyIOError(err))
	}
	length, err := readU32(s.reader)
	if err != nil {
		return wrapProtocol("rfb: reading ClientCutText length", classifyIOError(err))
	}
	// Bytes must still be consumed even though clipboard relay is a non-goal.
	if _, err := io.CopyN(io.Discard, s.reader, int64(length)); err != nil {
		return wrapProtocol("rfb: reading ClientCutText body", classifyIOError(err))
	}
	return nil
}

func (s *Session) handleSetDesktopSize() error {
	if _, err := readU8(s.reader); err != nil { // padding
		return wrapProtocol("rfb: reading SetDesktopSize padding", classifyIOError(err))
	}
	if _, err := readU16(s.reader); err != nil { // width (ignored: resize requests are rejected)
		return wrapProtocol("rfb: reading SetDesktopSize width", classifyIOError(err))
	}
	if _, err := readU16(s.reader); err != nil { // height
		return wrapProtocol("rfb: reading SetDesktopSize height", classifyIOError(err))
	}
	screens, err := readU8(s.reader)
	if err != nil {
		return wrapProtocol("rfb: reading SetDesktopSize screen count", classifyIOError(err))
	}
	if _, err := readU8(s.reader); err != nil { // padding
		return wrapProtocol("rfb: reading SetDesktopSize padding2", classifyIOError(err))
	}
	if _, err := io.CopyN(io.Discard, s.reader, int64(screens)*16); err != nil {
		return wrapProtocol("rfb: reading SetDesktopSize screen list", classifyIOError(err))
	}

	// Server never honors client-initiated resize. Respond with a non-zero
	// status only if the client advertised ExtendedDesktopSize; otherwise
	// silently ignore.
	if s.SupportsEncoding(EncodingExtendedDesktopSize) {
		return s.sendExtendedDesktopSizeStatus(1)
	}
	return nil
}

func (s *Session) sendExtendedDesktopSizeStatus(status uint16) error {
	width, height := s.server.Dimensions()
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.deadline(); err != nil {
		return err
	}
	var buf bytes.Buffer
	_ = writeU8(&buf, 0)
	_ = writeU8(&buf, 0)
	_ = writeU16(&buf, 1)
	_ = writeU16(&buf, 0)
	_ = writeU16(&buf, status)
	_ = writeU16(&buf, uint16(width))
	_ = writeU16(&buf, uint16(height))
	_ = writeI32(&buf, int32(EncodingExtendedDesktopSize))
	_ = writeU8(&buf, 0) // num_screens
	buf.Write([]byte{0, 0, 0})
	_, err := s.conn.Write(buf.Bytes())
	return classifyIOError(err)
}

// classifyIOError maps a raw I/O error to the session's error kinds.
func classifyIOError(err error) error {
	if err == nil {
		return nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrStreamClosed
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return ErrTimeout
	}
	if strings.Contains(err.Error(), "use of closed network connection") {
		return ErrStreamClosed
	}
	return err
}
