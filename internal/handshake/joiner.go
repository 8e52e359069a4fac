package handshake

import (
	"context"
	"fmt"

	"github.com/tenzoki/wampcore/internal/serializer"
	"github.com/tenzoki/wampcore/internal/session"
	"github.com/tenzoki/wampcore/internal/transport"
	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// ClientAuthenticator is the client-side dual of Authenticator: given a
// CHALLENGE it produces the AUTHENTICATE signature and extra to send back.
type ClientAuthenticator interface {
	// AuthMethod is the method this authenticator offers in HELLO.
	AuthMethod() string
	// AuthID is the identity to advertise in HELLO.
	AuthID() string
	// SignChallenge computes the AUTHENTICATE signature for a CHALLENGE.
	SignChallenge(extra map[string]interface{}) (signature string, authExtra map[string]interface{}, err error)
}

// Join runs the client-side handshake: sends HELLO, answers a CHALLENGE if
// one arrives via auth, and returns the resulting BaseSession once WELCOME
// lands, or the ABORT reason as an error.
func Join(ctx context.Context, tr transport.Transport, ser serializer.Serializer, realm string, auth ClientAuthenticator) (*session.BaseSession, error) {
	engine := session.NewEngine()

	details := map[string]interface{}{
		"roles": map[string]interface{}{
			"caller":     map[string]interface{}{},
			"callee":     map[string]interface{}{},
			"publisher":  map[string]interface{}{},
			"subscriber": map[string]interface{}{},
		},
	}
	if auth != nil {
		details["authid"] = auth.AuthID()
		details["authmethods"] = []interface{}{auth.AuthMethod()}
	}

	if err := sendMsg(ctx, tr, ser, engine, &wampmsg.Hello{Realm: realm, Details: details}); err != nil {
		return nil, fmt.Errorf("handshake: join: %w", err)
	}

	for {
		data, err := tr.Read(ctx)
		if err != nil {
			engine.ForceClose()
			return nil, fmt.Errorf("handshake: join: read: %w", err)
		}
		msg, err := ser.Decode(data)
		if err != nil {
			tr.Close()
			engine.ForceClose()
			return nil, fmt.Errorf("handshake: join: decode: %w", err)
		}
		if err := engine.Advance(msg.Type()); err != nil {
			tr.Close()
			return nil, fmt.Errorf("handshake: join: %w", err)
		}

		switch m := msg.(type) {
		case *wampmsg.Welcome:
			sd := session.SessionDetails{Realm: realm, SessionID: m.Session}
			if authid, ok := m.Details["authid"].(string); ok {
				sd.AuthID = authid
			}
			if authrole, ok := m.Details["authrole"].(string); ok {
				sd.AuthRole = authrole
			}
			return session.NewBaseSession(tr, ser, sd, engine), nil

		case *wampmsg.Abort:
			tr.Close()
			return nil, fmt.Errorf("handshake: join: aborted: %s", m.Reason)

		case *wampmsg.Challenge:
			if auth == nil {
				tr.Close()
				engine.ForceClose()
				return nil, fmt.Errorf("handshake: join: server issued CHALLENGE but no authenticator configured")
			}
			sig, extra, err := auth.SignChallenge(m.Extra)
			if err != nil {
				tr.Close()
				engine.ForceClose()
				return nil, fmt.Errorf("handshake: join: sign challenge: %w", err)
			}
			if err := sendMsg(ctx, tr, ser, engine, &wampmsg.Authenticate{Signature: sig, Extra: extra}); err != nil {
				return nil, fmt.Errorf("handshake: join: %w", err)
			}

		default:
			tr.Close()
			engine.ForceClose()
			return nil, fmt.Errorf("handshake: join: unexpected message %s during handshake", msg.Type())
		}
	}
}
