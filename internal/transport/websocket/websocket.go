// Package websocket implements the WAMP WebSocket transport over
// github.com/gorilla/websocket. Every WAMP frame maps to exactly one
// WebSocket message, text for the JSON codec and binary for CBOR/MsgPack;
// liveness PING/PONG and close are handled by the WebSocket control-frame
// layer rather than a WAMP-level control frame.
package websocket

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tenzoki/wampcore/internal/serializer"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Upgrader wraps gorilla's websocket.Upgrader pre-configured with the WAMP
// subprotocol list, for use by the server/acceptor on incoming HTTP
// connections.
var Upgrader = websocket.Upgrader{
	Subprotocols:    serializer.Subprotocols,
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Accept upgrades an HTTP connection to a WebSocket transport, returning
// the negotiated codec name alongside the transport.
func Accept(w http.ResponseWriter, r *http.Request) (*Transport, serializer.Name, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, "", fmt.Errorf("websocket: upgrade: %w", err)
	}
	subproto := conn.Subprotocol()
	ser, err := serializer.BySubprotocol(subproto)
	if err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("websocket: %w", err)
	}
	return New(conn, ser.BinaryFrames()), serializer.Name(strings.TrimPrefix(subproto, "wamp.2.")), nil
}

// Dial connects to a WAMP WebSocket endpoint, offering codec as the sole
// subprotocol. rawURL may use ws://, wss://, or the unix+ws:// scheme for
// an AF_UNIX-backed listener at the path in rawURL.
func Dial(ctx context.Context, rawURL string, codec serializer.Name) (*Transport, error) {
	name, err := codecSerializer(codec)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Subprotocols:     []string{name.Subprotocol()},
		HandshakeTimeout: 10 * time.Second,
	}

	target := rawURL
	if u, err := url.Parse(rawURL); err == nil && (u.Scheme == "unix+ws" || u.Scheme == "unix+wss") {
		path := u.Path
		dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, "unix", path)
		}
		target = "ws://unix" + u.Path
		if u.Scheme == "unix+wss" {
			target = "wss://unix" + u.Path
		}
	}

	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket: dial: %w", err)
	}
	return New(conn, name.BinaryFrames()), nil
}

func codecSerializer(codec serializer.Name) (serializer.Serializer, error) {
	return serializer.ByName(codec)
}

// Transport is the WebSocket transport.Transport implementation. Writes
// are serialized by writeMu since gorilla's Conn forbids concurrent
// writers. The peer's PONG control frames arrive on whichever goroutine is
// blocked in Read (gorilla delivers control frames inline with the next
// ReadMessage call), so Ping's caller must have a concurrent Read loop
// running for the matching PONG to ever be observed.
type Transport struct {
	conn   *websocket.Conn
	binary bool

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan struct{}

	mu     sync.Mutex
	closed bool
}

// New wraps an established *websocket.Conn as a transport.Transport.
// binary selects whether outgoing frames are sent as binary (CBOR/
// MsgPack) or text (JSON) WebSocket messages.
func New(conn *websocket.Conn, binary bool) *Transport {
	t := &Transport{conn: conn, binary: binary, pending: make(map[string]chan struct{})}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		t.resolvePing(appData)
		return nil
	})
	return t
}

func (t *Transport) resolvePing(appData string) {
	t.pendingMu.Lock()
	ch, ok := t.pending[appData]
	t.pendingMu.Unlock()
	if ok {
		close(ch)
	}
}

func (t *Transport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		t.markClosed()
		return nil, fmt.Errorf("websocket: read: %w", err)
	}
	return data, nil
}

func (t *Transport) Write(ctx context.Context, frame []byte) error {
	kind := websocket.TextMessage
	if t.binary {
		kind = websocket.BinaryMessage
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := t.conn.WriteMessage(kind, frame); err != nil {
		t.markClosed()
		return fmt.Errorf("websocket: write: %w", err)
	}
	return nil
}

func (t *Transport) Ping(ctx context.Context, timeout time.Duration, payload []byte) (time.Duration, error) {
	key := string(payload)
	done := make(chan struct{})

	t.pendingMu.Lock()
	t.pending[key] = done
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, key)
		t.pendingMu.Unlock()
	}()

	start := time.Now()
	t.writeMu.Lock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(timeout))
	err := t.conn.WriteMessage(websocket.PingMessage, payload)
	t.writeMu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("websocket: ping: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return time.Since(start), nil
	case <-timer.C:
		return 0, fmt.Errorf("websocket: ping timed out after %s", timeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *Transport) markClosed() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}
