// Package serializer implements the WAMP wire codecs: JSON, CBOR, and
// MsgPack. Each encodes a wampmsg.Message to its array form and
// decodes bytes back into one, matched by the codec's own generic-array
// decode primitive rather than a bespoke per-type unmarshaler — the
// wampmsg.FromArray switch on the leading type code is shared by all three.
package serializer

import (
	"fmt"

	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// Serializer encodes/decodes a single WAMP message to/from the byte or
// string representation its codec defines.
type Serializer interface {
	// Encode serializes msg to its wire representation.
	Encode(msg wampmsg.Message) ([]byte, error)
	// Decode parses a wire representation back into a typed Message. It
	// fails with a protocol error if data does not decode to a valid WAMP
	// message array.
	Decode(data []byte) (wampmsg.Message, error)
	// BinaryFrames reports whether this codec's frames must be carried as
	// binary transport frames (true for CBOR/MsgPack) or textual ones
	// (false for JSON).
	BinaryFrames() bool
	// Subprotocol returns the WebSocket subprotocol tag this codec
	// negotiates under (e.g. "wamp.2.json").
	Subprotocol() string
}

// Name identifies one of the three supported codecs by its short name, as
// used by client options and the raw-socket handshake's codec nibble.
type Name string

const (
	NameJSON    Name = "json"
	NameCBOR    Name = "cbor"
	NameMsgPack Name = "msgpack"
)

// ByName resolves a codec name to a Serializer instance. Used by the server
// and the client to turn the codec a transport handshake negotiated into a
// Serializer.
func ByName(name Name) (Serializer, error) {
	switch name {
	case NameJSON:
		return JSON{}, nil
	case NameCBOR:
		return CBOR{}, nil
	case NameMsgPack:
		return MsgPack{}, nil
	default:
		return nil, fmt.Errorf("serializer: unknown codec %q", name)
	}
}

// BySubprotocol resolves a negotiated WebSocket subprotocol string (e.g.
// "wamp.2.msgpack") to a Serializer instance.
func BySubprotocol(subprotocol string) (Serializer, error) {
	switch subprotocol {
	case "wamp.2.json":
		return JSON{}, nil
	case "wamp.2.cbor":
		return CBOR{}, nil
	case "wamp.2.msgpack":
		return MsgPack{}, nil
	default:
		return nil, fmt.Errorf("serializer: unknown subprotocol %q", subprotocol)
	}
}

// Subprotocols lists the WebSocket subprotocols this runtime offers, in
// preference order, for an acceptor to negotiate against a client's list.
var Subprotocols = []string{"wamp.2.json", "wamp.2.cbor", "wamp.2.msgpack"}
