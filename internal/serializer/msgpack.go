package serializer

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// MsgPack wraps github.com/vmihailenco/msgpack/v5. It MUST use binary
// frames: MsgPack's byte stream is not valid UTF-8 in general.
type MsgPack struct{}

func (MsgPack) Encode(msg wampmsg.Message) ([]byte, error) {
	data, err := msgpack.Marshal(msg.ToArray())
	if err != nil {
		return nil, fmt.Errorf("serializer/msgpack: encode: %w", err)
	}
	return data, nil
}

func (MsgPack) Decode(data []byte) (wampmsg.Message, error) {
	var arr []interface{}
	if err := msgpack.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("serializer/msgpack: decode: %w", err)
	}
	msg, err := wampmsg.FromArray(normalizeCBOR(arr))
	if err != nil {
		return nil, fmt.Errorf("serializer/msgpack: %w", err)
	}
	return msg, nil
}

func (MsgPack) BinaryFrames() bool  { return true }
func (MsgPack) Subprotocol() string { return "wamp.2.msgpack" }
