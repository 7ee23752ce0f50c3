// Package wsbridge exposes the RFB server over WebSocket so browser-based
// viewers (noVNC and similar) can speak RFB without a raw TCP socket.
package wsbridge

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader's origin checking is left to the caller's reverse proxy or TLS
// terminator.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	Subprotocols:    []string{"binary"},
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Bridge upgrades incoming HTTP connections to WebSocket and relays the
// binary frames bidirectionally against a fresh TCP connection to the
// RFB server's listen address.
type Bridge struct {
	rfbAddr string
	logger  *slog.Logger
	dialer  net.Dialer
}

// New builds a Bridge that dials rfbAddr (host:port) for every accepted
// WebSocket connection.
func New(rfbAddr string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{rfbAddr: rfbAddr, logger: logger, dialer: net.Dialer{Timeout: 10 * time.Second}}
}

// ServeHTTP upgrades the client connection and proxies it to the RFB
// server until either side closes or errors.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("wsbridge: upgrade failed", "error", err)
		return
	}
	defer clientConn.Close()

	rfbConn, err := b.dialer.Dial("tcp", b.rfbAddr)
	if err != nil {
		b.logger.Warn("wsbridge: dialing rfb server failed", "error", err, "addr", b.rfbAddr)
		_ = clientConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "rfb backend unavailable"))
		return
	}
	defer rfbConn.Close()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- wsToTCP(clientConn, rfbConn)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- tcpToWS(rfbConn, clientConn)
	}()

	go func() {
		wg.Wait()
		close(errCh)
	}()

	if err := <-errCh; err != nil && !isCloseError(err) {
		b.logger.Debug("wsbridge: session ended", "error", err)
	}
}

// wsToTCP copies binary WebSocket messages from the browser onto the raw
// RFB TCP stream (ClientInit, SetPixelFormat, FramebufferUpdateRequest...).
func wsToTCP(ws *websocket.Conn, tcp net.Conn) error {
	for {
		messageType, payload, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		if _, err := tcp.Write(payload); err != nil {
			return err
		}
	}
}

// tcpToWS reads raw bytes off the RFB TCP stream and forwards each chunk
// as one binary WebSocket message.
func tcpToWS(tcp net.Conn, ws *websocket.Conn) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := tcp.Read(buf)
		if n > 0 {
			if werr := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func isCloseError(err error) bool {
	if err == nil {
		return false
	}
	if err == io.EOF {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
