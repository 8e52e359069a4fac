package serializer

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// CBOR wraps github.com/fxamacker/cbor/v2. It MUST use binary frames:
// CBOR's byte stream is not valid UTF-8 in general.
type CBOR struct{}

func (CBOR) Encode(msg wampmsg.Message) ([]byte, error) {
	data, err := cbor.Marshal(msg.ToArray())
	if err != nil {
		return nil, fmt.Errorf("serializer/cbor: encode: %w", err)
	}
	return data, nil
}

func (CBOR) Decode(data []byte) (wampmsg.Message, error) {
	var arr []interface{}
	if err := cbor.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("serializer/cbor: decode: %w", err)
	}
	msg, err := wampmsg.FromArray(normalizeCBOR(arr))
	if err != nil {
		return nil, fmt.Errorf("serializer/cbor: %w", err)
	}
	return msg, nil
}

func (CBOR) BinaryFrames() bool  { return true }
func (CBOR) Subprotocol() string { return "wamp.2.cbor" }

// normalizeCBOR recursively converts the map[interface{}]interface{} values
// cbor's generic decode can produce for dict-typed elements into
// map[string]interface{}, so wampmsg.FromArray's helpers (written against
// encoding/json's decode shape) handle CBOR-decoded values uniformly.
func normalizeCBOR(v interface{}) interface{} {
	switch t := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalizeCBOR(e)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if ks, ok := k.(string); ok {
				out[ks] = normalizeCBOR(val)
			}
		}
		return out
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalizeCBOR(val)
		}
		return t
	default:
		return v
	}
}
