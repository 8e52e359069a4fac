package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// JSON is the stdlib-backed WAMP codec. It MUST use textual frames; every
// message is a JSON array whose first element is the numeric message type.
type JSON struct{}

func (JSON) Encode(msg wampmsg.Message) ([]byte, error) {
	data, err := json.Marshal(msg.ToArray())
	if err != nil {
		return nil, fmt.Errorf("serializer/json: encode: %w", err)
	}
	return data, nil
}

func (JSON) Decode(data []byte) (wampmsg.Message, error) {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("serializer/json: decode: %w", err)
	}
	msg, err := wampmsg.FromArray(arr)
	if err != nil {
		return nil, fmt.Errorf("serializer/json: %w", err)
	}
	return msg, nil
}

func (JSON) BinaryFrames() bool  { return false }
func (JSON) Subprotocol() string { return "wamp.2.json" }
