package rfb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a Server.
type Config struct {
	Width, Height int
	// Password, if non-empty, requires VNC authentication. Empty means the
	// None security type is offered instead.
	Password string
	// Name is the desktop name sent in ServerInit.
	Name string
	// AcceptRate/AcceptBurst bound new-connection acceptance per source IP.
	AcceptRate  rate.Limit
	AcceptBurst int
	Logger      *slog.Logger
	// Sink receives forwarded keyboard/pointer input from every session.
	Sink Sink
}

// Server is the accept loop and shared-framebuffer broadcaster. It
// owns the canonical Framebuffer and the live session set.
type Server struct {
	fb     *Framebuffer
	logger *slog.Logger
	name   string
	sink   Sink

	pwMu     sync.RWMutex
	password string

	limiter *connRateLimiter

	mu       sync.Mutex
	sessions map[string]*Session
	listener net.Listener

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewServer builds a Server with the given initial framebuffer dimensions.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "rfbd"
	}
	acceptRate := cfg.AcceptRate
	if acceptRate == 0 {
		acceptRate = 5
	}
	acceptBurst := cfg.AcceptBurst
	if acceptBurst == 0 {
		acceptBurst = 10
	}
	return &Server{
		fb:       NewFramebuffer(cfg.Width, cfg.Height),
		logger:   logger,
		name:     name,
		sink:     cfg.Sink,
		password: cfg.Password,
		limiter:  newConnRateLimiter(acceptRate, acceptBurst),
		sessions: make(map[string]*Session),
		stopped:  make(chan struct{}),
	}
}

// Dimensions returns the server's current framebuffer size.
func (s *Server) Dimensions() (int, int) {
	return s.fb.Dimensions()
}

// SetPassword replaces the password offered to new connections. Already
// connected sessions keep the password snapshot they were accepted with.
func (s *Server) SetPassword(password string) {
	s.pwMu.Lock()
	s.password = password
	s.pwMu.Unlock()
}

func (s *Server) currentPassword() string {
	s.pwMu.RLock()
	defer s.pwMu.RUnlock()
	return s.password
}

// Serve runs the accept loop on the already-bound lis until ctx is
// cancelled or Stop is called. Each accepted connection is handled in its own goroutine.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()

	go s.limiter.runCleanup(ctx)

	var wg sync.WaitGroup
	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-s.stopped:
				wg.Wait()
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				wg.Wait()
				return nil
			}
			s.logger.Warn("rfb: accept error", "error", err)
			continue
		}

		ip := hostOf(conn.RemoteAddr().String())
		if !s.limiter.allow(ip) {
			s.logger.Warn("rfb: rejecting connection, rate limit exceeded", "remote_ip", ip)
			_ = conn.Close()
			continue
		}

		sess := newSession(conn, s, s.currentPassword(), s.sink, s.logger)
		s.addSession(sess)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.removeSession(sess.ID)
			if err := sess.Run(ctx); err != nil && !errors.Is(err, ErrStreamClosed) {
				s.logger.Info("rfb: session ended", "session_id", sess.ID, "error", err)
			} else {
				s.logger.Info("rfb: session ended", "session_id", sess.ID)
			}
		}()
	}
}

// Stop closes the listener and every live session's connection.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.mu.Lock()
		if s.listener != nil {
			err = s.listener.Close()
		}
		sessions := make([]*Session, 0, len(s.sessions))
		for _, sess := range s.sessions {
			sessions = append(sessions, sess)
		}
		s.mu.Unlock()
		for _, sess := range sessions {
			_ = sess.conn.Close()
		}
	})
	return err
}

func (s *Server) addSession(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	metricActiveSessions.Set(int64(len(s.sessions)))
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	metricActiveSessions.Set(int64(len(s.sessions)))
}

func (s *Server) liveSessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// SessionInfo is an admin-facing snapshot of one connected session.
type SessionInfo struct {
	ID         string
	RemoteAddr string
	Encodings  []string
}

// Sessions reports the current live session set, for the admin API
// and the cmd/rfbd interactive "clients" command.
func (s *Server) Sessions() []SessionInfo {
	live := s.liveSessions()
	out := make([]SessionInfo, 0, len(live))
	for _, sess := range live {
		sess.mu.Lock()
		encs := make([]string, 0, len(sess.supportedEncodings))
		for e := range sess.supportedEncodings {
			encs = append(encs, e.String())
		}
		sess.mu.Unlock()
		out = append(out, SessionInfo{
			ID:         sess.ID,
			RemoteAddr: sess.conn.RemoteAddr().String(),
			Encodings:  encs,
		})
	}
	return out
}

// SetFrame replaces the canonical framebuffer contents and gives every
// live session a chance to service any update request it could not
// satisfy immediately.
func (s *Server) SetFrame(buf []byte) error {
	if err := s.fb.SetFrame(buf); err != nil {
		return err
	}
	s.nudgeSessions()
	return nil
}

// BroadcastFull forces every live session to emit a full-screen rectangle
// on its next update (or immediately, if one is pending).
func (s *Server) BroadcastFull() {
	for _, sess := range s.liveSessions() {
		sess.tracker.ForceFullUpdate()
	}
	s.nudgeSessions()
}

// Resize changes the canonical framebuffer's dimensions and, if the size
// actually changed, forces a full update to every session.
func (s *Server) Resize(w, h int) bool {
	if !s.fb.Resize(w, h) {
		return false
	}
	s.BroadcastFull()
	return true
}

// nudgeSessions asks each live session to attempt servicing its pending
// FramebufferUpdateRequest, if it has one, against the latest frame.
func (s *Server) nudgeSessions() {
	for _, sess := range s.liveSessions() {
		sess.tryServicePending()
	}
}

// RunCapture drives the server's single capture task: it repeatedly pulls
// frames from source and pushes them into the shared framebuffer until ctx
// is cancelled. cmd/rfbd wires a concrete Source into it.
func (s *Server) RunCapture(ctx context.Context, source Source, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			frame, ok, err := source.NextFrame(ctx)
			if err != nil {
				return fmt.Errorf("rfb: capture source failed: %w", err)
			}
			if !ok {
				continue // CaptureStale: reuse previous frame, not an error
			}
			metricFramesCaptured.Add(1)
			if err := s.SetFrame(frame); err != nil {
				s.logger.Warn("rfb: dropping captured frame", "error", err)
			}
		}
	}
}

func hostOf(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		return addr[:i]
	}
	return addr
}
