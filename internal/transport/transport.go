// Package transport defines the byte-pipe abstraction the session and
// handshake layers run over: a length-framed raw-socket transport and a
// WebSocket transport, both exposing the same interface so the rest of
// the runtime never branches on which one it was handed.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is the sentinel error for a closed transport. The raw-socket and
// WebSocket implementations do not return it: once closed, their Read and
// Write fail with the underlying connection error, wrapped.
var ErrClosed = errors.New("transport: closed")

// Transport carries WAMP wire frames between peers. Implementations own
// their framing (raw-socket's 4-byte header, WebSocket's message
// boundaries) and hand complete frames to the caller.
//
// A Transport supports one reader at a time. Writes (including Ping) may
// come from several goroutines: the raw-socket and WebSocket
// implementations serialize them internally with a write lock, so one
// frame is never interleaved with another.
type Transport interface {
	// Read blocks until the next complete frame arrives, or returns an
	// error once the connection fails or is closed.
	Read(ctx context.Context) ([]byte, error)
	// Write sends one complete frame.
	Write(ctx context.Context, frame []byte) error
	// Close shuts down the transport. Safe to call more than once.
	Close() error
	// IsConnected reports whether the transport is still usable.
	IsConnected() bool
	// Ping sends a transport-level keepalive and waits up to timeout for
	// the peer's response, returning the measured round-trip latency. Not
	// all transports support payload-bearing pings; implementations that
	// don't return an error describing why.
	Ping(ctx context.Context, timeout time.Duration, payload []byte) (time.Duration, error)
}
