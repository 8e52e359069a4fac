package handshake

import (
	"context"
	"fmt"

	"github.com/tenzoki/wampcore/internal/serializer"
	"github.com/tenzoki/wampcore/internal/session"
	"github.com/tenzoki/wampcore/internal/transport"
	"github.com/tenzoki/wampcore/internal/wampmsg"
	"github.com/tenzoki/wampcore/public/wamp"
)

// RealmLookup reports whether a realm name is known to the router, and is
// consulted before any challenge is issued.
type RealmLookup func(realm string) bool

// SessionIDAllocator hands out the next session_id for a newly accepted
// session, unique within the realm it is attached to.
type SessionIDAllocator func(realm string) uint64

// Accept runs the server-side handshake state machine over an
// already-connected Transport using the already-negotiated Serializer.
// On success it returns a session.BaseSession parked in ESTABLISHED. On a
// rejected or malformed handshake it has already sent ABORT (where the
// protocol allows a reply) and closed the transport, and returns the error
// describing why. When a transport read, or a send of CHALLENGE or WELCOME,
// fails, it returns the error without closing the transport.
func Accept(ctx context.Context, tr transport.Transport, ser serializer.Serializer, realms RealmLookup, auth Authenticator, allocSessionID SessionIDAllocator) (*session.BaseSession, error) {
	engine := session.NewEngine()

	hello, err := recvAs[*wampmsg.Hello](ctx, tr, ser, engine)
	if err != nil {
		return nil, fmt.Errorf("handshake: accept: %w", err)
	}

	if realms != nil && !realms(hello.Realm) {
		abortAndClose(ctx, tr, ser, engine, wamp.ErrNoSuchRealm)
		return nil, fmt.Errorf("handshake: no such realm %q", hello.Realm)
	}

	if auth == nil {
		auth = AnonymousAuthenticator{}
	}

	authid, _ := hello.Details["authid"].(string)
	method := pickMethod(auth.Methods(), hello.Details)

	var authrole string
	var welcomeExtra map[string]interface{}

	if method == "" || method == "anonymous" {
		role, extra, aerr := auth.Authenticate(hello.Realm, authid, "anonymous", "", nil)
		if aerr != nil {
			abortAndClose(ctx, tr, ser, engine, wamp.ErrAuthenticationFailed)
			return nil, fmt.Errorf("handshake: anonymous auth rejected: %w", aerr)
		}
		authrole = role
		welcomeExtra = extra
	} else {
		extra, cerr := auth.Challenge(hello.Realm, authid, method, hello.Details)
		if cerr != nil {
			abortAndClose(ctx, tr, ser, engine, wamp.ErrAuthenticationFailed)
			return nil, fmt.Errorf("handshake: challenge: %w", cerr)
		}
		if err := sendMsg(ctx, tr, ser, engine, &wampmsg.Challenge{AuthMethod: method, Extra: extra}); err != nil {
			return nil, fmt.Errorf("handshake: accept: %w", err)
		}

		authenticate, err := recvAs[*wampmsg.Authenticate](ctx, tr, ser, engine)
		if err != nil {
			return nil, fmt.Errorf("handshake: accept: %w", err)
		}

		role, welcome, aerr := auth.Authenticate(hello.Realm, authid, method, authenticate.Signature, authenticate.Extra)
		if aerr != nil {
			abortAndClose(ctx, tr, ser, engine, wamp.ErrAuthenticationFailed)
			return nil, fmt.Errorf("handshake: authenticate rejected: %w", aerr)
		}
		authrole = role
		welcomeExtra = welcome
	}

	if authrole == "" {
		authrole = "anonymous"
	}
	if authid == "" {
		authid = fmt.Sprintf("anonymous-%d", allocSessionID(hello.Realm))
	}

	sid := allocSessionID(hello.Realm)
	details := map[string]interface{}{
		"authid":   authid,
		"authrole": authrole,
		"roles":    map[string]interface{}{"broker": map[string]interface{}{}, "dealer": map[string]interface{}{}},
	}
	for k, v := range welcomeExtra {
		details[k] = v
	}

	if err := sendMsg(ctx, tr, ser, engine, &wampmsg.Welcome{Session: sid, Details: details}); err != nil {
		return nil, fmt.Errorf("handshake: accept: %w", err)
	}

	sd := session.SessionDetails{SessionID: sid, Realm: hello.Realm, AuthID: authid, AuthRole: authrole}
	return session.NewBaseSession(tr, ser, sd, engine), nil
}

func pickMethod(supported []string, helloDetails map[string]interface{}) string {
	if len(supported) == 0 {
		return ""
	}
	wanted, _ := helloDetails["authmethods"].([]interface{})
	for _, w := range wanted {
		ws, _ := w.(string)
		for _, s := range supported {
			if ws == s {
				return s
			}
		}
	}
	return ""
}

func recvAs[T wampmsg.Message](ctx context.Context, tr transport.Transport, ser serializer.Serializer, engine *session.Engine) (T, error) {
	var zero T
	data, err := tr.Read(ctx)
	if err != nil {
		engine.ForceClose()
		return zero, fmt.Errorf("read: %w", err)
	}
	msg, err := ser.Decode(data)
	if err != nil {
		tr.Close()
		engine.ForceClose()
		return zero, fmt.Errorf("decode: %w", err)
	}
	if err := engine.Advance(msg.Type()); err != nil {
		tr.Close()
		return zero, err
	}
	typed, ok := msg.(T)
	if !ok {
		tr.Close()
		engine.ForceClose()
		return zero, fmt.Errorf("unexpected message %s", msg.Type())
	}
	return typed, nil
}

func sendMsg(ctx context.Context, tr transport.Transport, ser serializer.Serializer, engine *session.Engine, msg wampmsg.Message) error {
	if err := engine.Advance(msg.Type()); err != nil {
		return err
	}
	data, err := ser.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	if err := tr.Write(ctx, data); err != nil {
		engine.ForceClose()
		return fmt.Errorf("write %s: %w", msg.Type(), err)
	}
	return nil
}

func abortAndClose(ctx context.Context, tr transport.Transport, ser serializer.Serializer, engine *session.Engine, reason string) {
	_ = sendMsg(ctx, tr, ser, engine, &wampmsg.Abort{Details: map[string]interface{}{}, Reason: reason})
	tr.Close()
}
