package wampmsg

import "fmt"

// FromArray builds a typed Message from the generic array a codec decoded
// a wire frame into. Each codec (JSON, CBOR, MsgPack) represents numbers,
// maps, and nested arrays with its own Go types on decode — json.Unmarshal
// into interface{} yields float64 for numbers and map[string]interface{}
// for objects, while cbor/msgpack often preserve uint64/int64 directly —
// so every field is pulled through the as* helpers below rather than
// asserted to one concrete type.
func FromArray(arr []interface{}) (Message, error) {
	if len(arr) == 0 {
		return nil, fmt.Errorf("wampmsg: empty message array")
	}
	code, err := asInt(arr[0])
	if err != nil {
		return nil, fmt.Errorf("wampmsg: message type code: %w", err)
	}
	t := Type(code)

	switch t {
	case TypeHello:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		return &Hello{Realm: asString(arr[1]), Details: asMap(arr[2])}, nil
	case TypeWelcome:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		sid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		return &Welcome{Session: sid, Details: asMap(arr[2])}, nil
	case TypeAbort:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		return &Abort{Details: asMap(arr[1]), Reason: asString(arr[2])}, nil
	case TypeChallenge:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		return &Challenge{AuthMethod: asString(arr[1]), Extra: asMap(arr[2])}, nil
	case TypeAuthenticate:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		return &Authenticate{Signature: asString(arr[1]), Extra: asMap(arr[2])}, nil
	case TypeGoodbye:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		return &Goodbye{Details: asMap(arr[1]), Reason: asString(arr[2])}, nil
	case TypeError:
		if len(arr) < 6 {
			return nil, shortArray(t, 6, len(arr))
		}
		rt, err := asInt(arr[1])
		if err != nil {
			return nil, err
		}
		rid, err := asUint64(arr[2])
		if err != nil {
			return nil, err
		}
		e := &Error{RequestType: Type(rt), RequestID: rid, Details: asMap(arr[3]), URI: asString(arr[4]), Args: asSlice(arr[5])}
		if len(arr) > 6 {
			e.Kwargs = asMap(arr[6])
		}
		return e, nil
	case TypePublish:
		if len(arr) < 4 {
			return nil, shortArray(t, 4, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		p := &Publish{RequestID: rid, Options: asMap(arr[2]), Topic: asString(arr[3])}
		if len(arr) > 4 {
			p.Args = asSlice(arr[4])
		}
		if len(arr) > 5 {
			p.Kwargs = asMap(arr[5])
		}
		return p, nil
	case TypePublished:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		pid, err := asUint64(arr[2])
		if err != nil {
			return nil, err
		}
		return &Published{RequestID: rid, PublicationID: pid}, nil
	case TypeSubscribe:
		if len(arr) < 4 {
			return nil, shortArray(t, 4, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		return &Subscribe{RequestID: rid, Options: asMap(arr[2]), Topic: asString(arr[3])}, nil
	case TypeSubscribed:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		sid, err := asUint64(arr[2])
		if err != nil {
			return nil, err
		}
		return &Subscribed{RequestID: rid, SubscriptionID: sid}, nil
	case TypeUnsubscribe:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		sid, err := asUint64(arr[2])
		if err != nil {
			return nil, err
		}
		return &Unsubscribe{RequestID: rid, SubscriptionID: sid}, nil
	case TypeUnsubscribed:
		if len(arr) < 2 {
			return nil, shortArray(t, 2, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		return &Unsubscribed{RequestID: rid}, nil
	case TypeEvent:
		if len(arr) < 4 {
			return nil, shortArray(t, 4, len(arr))
		}
		sid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		pid, err := asUint64(arr[2])
		if err != nil {
			return nil, err
		}
		e := &Event{SubscriptionID: sid, PublicationID: pid, Details: asMap(arr[3])}
		if len(arr) > 4 {
			e.Args = asSlice(arr[4])
		}
		if len(arr) > 5 {
			e.Kwargs = asMap(arr[5])
		}
		return e, nil
	case TypeCall:
		if len(arr) < 4 {
			return nil, shortArray(t, 4, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		c := &Call{RequestID: rid, Options: asMap(arr[2]), Procedure: asString(arr[3])}
		if len(arr) > 4 {
			c.Args = asSlice(arr[4])
		}
		if len(arr) > 5 {
			c.Kwargs = asMap(arr[5])
		}
		return c, nil
	case TypeCancel:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		return &Cancel{RequestID: rid, Options: asMap(arr[2])}, nil
	case TypeResult:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		r := &Result{RequestID: rid, Details: asMap(arr[2])}
		if len(arr) > 3 {
			r.Args = asSlice(arr[3])
		}
		if len(arr) > 4 {
			r.Kwargs = asMap(arr[4])
		}
		return r, nil
	case TypeRegister:
		if len(arr) < 4 {
			return nil, shortArray(t, 4, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		return &Register{RequestID: rid, Options: asMap(arr[2]), Procedure: asString(arr[3])}, nil
	case TypeRegistered:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		regid, err := asUint64(arr[2])
		if err != nil {
			return nil, err
		}
		return &Registered{RequestID: rid, RegistrationID: regid}, nil
	case TypeUnregister:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		regid, err := asUint64(arr[2])
		if err != nil {
			return nil, err
		}
		return &Unregister{RequestID: rid, RegistrationID: regid}, nil
	case TypeUnregistered:
		if len(arr) < 2 {
			return nil, shortArray(t, 2, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		return &Unregistered{RequestID: rid}, nil
	case TypeInvocation:
		if len(arr) < 4 {
			return nil, shortArray(t, 4, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		regid, err := asUint64(arr[2])
		if err != nil {
			return nil, err
		}
		i := &Invocation{RequestID: rid, RegistrationID: regid, Details: asMap(arr[3])}
		if len(arr) > 4 {
			i.Args = asSlice(arr[4])
		}
		if len(arr) > 5 {
			i.Kwargs = asMap(arr[5])
		}
		return i, nil
	case TypeInterrupt:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		return &Interrupt{RequestID: rid, Options: asMap(arr[2])}, nil
	case TypeYield:
		if len(arr) < 3 {
			return nil, shortArray(t, 3, len(arr))
		}
		rid, err := asUint64(arr[1])
		if err != nil {
			return nil, err
		}
		y := &Yield{RequestID: rid, Options: asMap(arr[2])}
		if len(arr) > 3 {
			y.Args = asSlice(arr[3])
		}
		if len(arr) > 4 {
			y.Kwargs = asMap(arr[4])
		}
		return y, nil
	default:
		return nil, fmt.Errorf("wampmsg: unknown message type code %d", code)
	}
}

func shortArray(t Type, want, got int) error {
	return fmt.Errorf("wampmsg: %s: expected at least %d elements, got %d", t, want, got)
}

func asInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("wampmsg: expected numeric type code, got %T", v)
	}
}

func asUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case float64:
		return uint64(n), nil
	case int:
		return uint64(n), nil
	case int64:
		return uint64(n), nil
	case uint64:
		return n, nil
	case uint:
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("wampmsg: expected numeric id, got %T", v)
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asMap(v interface{}) map[string]interface{} {
	switch m := v.(type) {
	case map[string]interface{}:
		return m
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out
	default:
		return nil
	}
}

func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}
