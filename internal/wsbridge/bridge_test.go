package wsbridge

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestIsCloseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"EOF", io.EOF, true},
		{"normal close", &websocket.CloseError{Code: websocket.CloseNormalClosure}, true},
		{"going away", &websocket.CloseError{Code: websocket.CloseGoingAway}, true},
		{"abnormal close", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isCloseError(tt.err); got != tt.want {
				t.Errorf("isCloseError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// echoListener runs a bare TCP echo server, standing in for the RFB
// server's listen address in bridge tests.
func echoListener(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { lis.Close() })
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			go io.Copy(conn, conn)
		}
	}()
	return lis.Addr().String()
}

func TestBridgeRelaysBytesRoundTrip(t *testing.T) {
	addr := echoListener(t)
	bridge := New(addr, nil)

	srv := httptest.NewServer(http.HandlerFunc(bridge.ServeHTTP))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing bridge: %v", err)
	}
	defer conn.Close()

	payload := []byte("RFB 003.008\n")
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("writing message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading echoed message: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", msgType)
	}
	if string(data) != string(payload) {
		t.Fatalf("echoed payload = %q, want %q", data, payload)
	}
}

func TestBridgeClosesWhenBackendUnreachable(t *testing.T) {
	bridge := New("127.0.0.1:1", nil) // port 1 is reserved, dial should fail fast... or refuse

	srv := httptest.NewServer(http.HandlerFunc(bridge.ServeHTTP))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing bridge: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the bridge to close the connection when the backend is unreachable")
	}
}
