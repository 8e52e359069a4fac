// Package rawsocket implements the WAMP raw-socket transport: a 4-byte
// length-prefixed frame header over TCP or AF_UNIX, with its own PING/PONG
// control frames and a one-shot handshake byte sequence.
package rawsocket

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tenzoki/wampcore/internal/serializer"
)

// Frame types carried in the 1-byte header.
const (
	msgWAMP byte = 0
	msgPing byte = 1
	msgPong byte = 2
)

const handshakeMagic byte = 0x7F

// codecNibble maps a serializer name to the raw-socket handshake's
// 4-bit codec identifier.
var codecNibble = map[serializer.Name]byte{
	serializer.NameJSON:    1,
	serializer.NameMsgPack: 2,
	serializer.NameCBOR:    3,
}

var nibbleCodec = map[byte]serializer.Name{
	1: serializer.NameJSON,
	2: serializer.NameMsgPack,
	3: serializer.NameCBOR,
}

// CodecNibble returns the handshake nibble for a codec name.
func CodecNibble(name serializer.Name) (byte, bool) {
	n, ok := codecNibble[name]
	return n, ok
}

// CodecByNibble resolves a handshake nibble back to a codec name.
func CodecByNibble(n byte) (serializer.Name, bool) {
	name, ok := nibbleCodec[n]
	return name, ok
}

// MaxMsgLog2Default advertises a 16MB maximum message length (1 << 24).
const MaxMsgLog2Default byte = 24

// HandshakeClient writes the client's opening handshake byte sequence and
// reads the server's reply. Returns the negotiated codec or an error if
// the server refused.
func HandshakeClient(ctx context.Context, conn net.Conn, codec serializer.Name) (serializer.Name, error) {
	nibble, ok := CodecNibble(codec)
	if !ok {
		return "", fmt.Errorf("rawsocket: unsupported codec %q", codec)
	}
	out := [4]byte{handshakeMagic, (nibble << 4) | (MaxMsgLog2Default - 9), 0, 0}
	if err := writeDeadline(conn, ctx); err != nil {
		return "", err
	}
	if _, err := conn.Write(out[:]); err != nil {
		return "", fmt.Errorf("rawsocket: handshake write: %w", err)
	}

	var in [4]byte
	if err := readFull(conn, in[:]); err != nil {
		return "", fmt.Errorf("rawsocket: handshake read: %w", err)
	}
	if in[0] != handshakeMagic {
		return "", fmt.Errorf("rawsocket: handshake refused, magic byte %#x", in[0])
	}
	errCode := in[1] & 0x0f
	if errCode != 0 && (in[1]>>4) == 0 {
		return "", fmt.Errorf("rawsocket: server refused handshake, code %d", errCode)
	}
	name, ok := CodecByNibble(in[1] >> 4)
	if !ok {
		return "", fmt.Errorf("rawsocket: server chose unknown codec nibble %d", in[1]>>4)
	}
	return name, nil
}

// HandshakeServer reads the client's opening handshake and echoes it back
// when the requested codec nibble is a known codec, returning that codec.
// The handshake is client-driven: the server never picks a different codec,
// it only accepts the client's pick or refuses an unknown one.
func HandshakeServer(ctx context.Context, conn net.Conn) (serializer.Name, error) {
	var in [4]byte
	if err := readFull(conn, in[:]); err != nil {
		return "", fmt.Errorf("rawsocket: handshake read: %w", err)
	}
	if in[0] != handshakeMagic {
		return "", fmt.Errorf("rawsocket: bad handshake magic %#x", in[0])
	}
	name, ok := CodecByNibble(in[1] >> 4)
	if !ok {
		// Codec nibble 0 with a non-zero low nibble is the refusal form
		// HandshakeClient recognizes.
		out := [4]byte{handshakeMagic, 1, 0, 0}
		_, _ = conn.Write(out[:])
		return "", fmt.Errorf("rawsocket: client requested unknown codec nibble %d", in[1]>>4)
	}

	out := in
	if err := writeDeadline(conn, ctx); err != nil {
		return "", err
	}
	if _, err := conn.Write(out[:]); err != nil {
		return "", fmt.Errorf("rawsocket: handshake write: %w", err)
	}
	return name, nil
}

func writeDeadline(conn net.Conn, ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		return conn.SetDeadline(dl)
	}
	return nil
}

func readFull(conn net.Conn, buf []byte) error {
	_, err := io.ReadFull(conn, buf)
	return err
}

type pendingPing struct {
	done chan struct{}
}

// Transport is the raw-socket transport.Transport implementation. Reads
// happen on the caller's goroutine; writes are serialized by writeMu so
// header and payload are never interleaved with a concurrent write. An
// inbound PING is answered with a PONG of identical payload before Read
// returns control to the caller, and an inbound PONG resolves the matching
// entry in pendingPings.
type Transport struct {
	conn net.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	closed    bool
	pendingMu sync.Mutex
	pending   map[string]*pendingPing
}

// New wraps an established net.Conn (after the handshake has already run)
// as a transport.Transport.
func New(conn net.Conn) *Transport {
	return &Transport{
		conn:    conn,
		pending: make(map[string]*pendingPing),
	}
}

func (t *Transport) Read(ctx context.Context) ([]byte, error) {
	for {
		if dl, ok := ctx.Deadline(); ok {
			_ = t.conn.SetReadDeadline(dl)
		}
		var header [4]byte
		if err := readFull(t.conn, header[:]); err != nil {
			t.markClosed()
			return nil, fmt.Errorf("rawsocket: read header: %w", err)
		}
		kind := header[0]
		length := int(header[1])<<16 | int(header[2])<<8 | int(header[3])
		payload := make([]byte, length)
		if length > 0 {
			if err := readFull(t.conn, payload); err != nil {
				t.markClosed()
				return nil, fmt.Errorf("rawsocket: read payload: %w", err)
			}
		}

		switch kind {
		case msgWAMP:
			return payload, nil
		case msgPing:
			if err := t.writeFrame(ctx, msgPong, payload); err != nil {
				return nil, fmt.Errorf("rawsocket: pong reply: %w", err)
			}
			continue
		case msgPong:
			t.resolvePing(payload)
			continue
		default:
			return nil, fmt.Errorf("rawsocket: unknown frame type %d", kind)
		}
	}
}

func (t *Transport) Write(ctx context.Context, frame []byte) error {
	return t.writeFrame(ctx, msgWAMP, frame)
}

func (t *Transport) writeFrame(ctx context.Context, kind byte, payload []byte) error {
	if len(payload) > 1<<24-1 {
		return fmt.Errorf("rawsocket: frame too large: %d bytes", len(payload))
	}
	header := [4]byte{
		kind,
		byte(len(payload) >> 16),
		byte(len(payload) >> 8),
		byte(len(payload)),
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(dl)
	}
	if _, err := t.conn.Write(header[:]); err != nil {
		t.markClosed()
		return fmt.Errorf("rawsocket: write header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := t.conn.Write(payload); err != nil {
			t.markClosed()
			return fmt.Errorf("rawsocket: write payload: %w", err)
		}
	}
	return nil
}

func (t *Transport) Ping(ctx context.Context, timeout time.Duration, payload []byte) (time.Duration, error) {
	key := string(payload)
	pp := &pendingPing{done: make(chan struct{})}

	t.pendingMu.Lock()
	t.pending[key] = pp
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, key)
		t.pendingMu.Unlock()
	}()

	start := time.Now()
	if err := t.writeFrame(ctx, msgPing, payload); err != nil {
		return 0, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-pp.done:
		return time.Since(start), nil
	case <-timer.C:
		return 0, fmt.Errorf("rawsocket: ping timed out after %s", timeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (t *Transport) resolvePing(payload []byte) {
	t.pendingMu.Lock()
	pp, ok := t.pending[string(payload)]
	t.pendingMu.Unlock()
	if ok {
		close(pp.done)
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

// RandomPingPayload returns a small random payload to correlate a PING with
// its PONG. crypto/rand rather than a counter since the payload travels on
// the wire and a predictable one would let an intermediary forge a PONG.
func RandomPingPayload() []byte {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return buf
}
