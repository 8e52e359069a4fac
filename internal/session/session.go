// Package session implements the sans-I/O WAMP session engine: a state
// machine that validates inbound/outbound message types against the
// session's current phase, plus BaseSession, which binds a live transport
// and serializer to a validated SessionDetails.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/tenzoki/wampcore/internal/serializer"
	"github.com/tenzoki/wampcore/internal/transport"
	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// State is one phase of the session lifecycle.
type State int

const (
	StateConnecting State = iota
	StateHandshaking
	StateEstablished
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// SessionDetails is immutable once the handshake completes.
type SessionDetails struct {
	SessionID uint64
	Realm     string
	AuthID    string
	AuthRole  string
}

// legalInState lists, for each state, which message types may legally be
// sent or received. A message type outside its state's set is a protocol
// violation: the transport is closed with no reply.
var legalInState = map[State]map[wampmsg.Type]bool{
	StateConnecting: {
		wampmsg.TypeHello: true,
	},
	StateHandshaking: {
		wampmsg.TypeHello:        true,
		wampmsg.TypeWelcome:      true,
		wampmsg.TypeAbort:        true,
		wampmsg.TypeChallenge:    true,
		wampmsg.TypeAuthenticate: true,
	},
	StateEstablished: {
		wampmsg.TypeGoodbye:      true,
		wampmsg.TypeError:        true,
		wampmsg.TypePublish:      true,
		wampmsg.TypePublished:    true,
		wampmsg.TypeSubscribe:    true,
		wampmsg.TypeSubscribed:   true,
		wampmsg.TypeUnsubscribe:  true,
		wampmsg.TypeUnsubscribed: true,
		wampmsg.TypeEvent:        true,
		wampmsg.TypeCall:         true,
		wampmsg.TypeCancel:       true,
		wampmsg.TypeResult:       true,
		wampmsg.TypeRegister:     true,
		wampmsg.TypeRegistered:   true,
		wampmsg.TypeUnregister:   true,
		wampmsg.TypeUnregistered: true,
		wampmsg.TypeInvocation:   true,
		wampmsg.TypeInterrupt:   true,
		wampmsg.TypeYield:       true,
	},
	StateClosing: {
		wampmsg.TypeGoodbye: true,
	},
}

// ErrProtocolViolation wraps a message type illegal for the engine's
// current state.
type ErrProtocolViolation struct {
	State State
	Type  wampmsg.Type
}

func (e *ErrProtocolViolation) Error() string {
	return fmt.Sprintf("session: %s illegal in state %s", e.Type, e.State)
}

// Engine is the sans-I/O state machine: it holds no transport reference
// and performs no I/O, only phase tracking and legality checks, so it can
// be driven identically from the router side (acceptor) and the client
// side (joiner).
type Engine struct {
	mu    sync.Mutex
	state State
}

// NewEngine starts an Engine in CONNECTING.
func NewEngine() *Engine {
	return &Engine{state: StateConnecting}
}

// State returns the engine's current phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Validate checks whether msg is legal to send or receive in the current
// state, without mutating it; transition side effects happen in Advance.
func (e *Engine) Validate(t wampmsg.Type) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validateLocked(t)
}

func (e *Engine) validateLocked(t wampmsg.Type) error {
	allowed := legalInState[e.state]
	if allowed == nil || !allowed[t] {
		return &ErrProtocolViolation{State: e.state, Type: t}
	}
	return nil
}

// Advance validates msg type against the current state and applies the
// transition it triggers.
func (e *Engine) Advance(t wampmsg.Type) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.validateLocked(t); err != nil {
		return err
	}

	switch e.state {
	case StateConnecting:
		if t == wampmsg.TypeHello {
			e.state = StateHandshaking
		}
	case StateHandshaking:
		switch t {
		case wampmsg.TypeWelcome:
			e.state = StateEstablished
		case wampmsg.TypeAbort:
			e.state = StateClosed
		}
	case StateEstablished:
		if t == wampmsg.TypeGoodbye {
			e.state = StateClosing
		}
	case StateClosing:
		if t == wampmsg.TypeGoodbye {
			e.state = StateClosed
		}
	}
	return nil
}

// ForceClose transitions directly to CLOSED, used when the transport
// fails out-of-band of any message exchange.
func (e *Engine) ForceClose() {
	e.mu.Lock()
	e.state = StateClosed
	e.mu.Unlock()
}

// BaseSession binds a live Transport and Serializer to a validated
// SessionDetails once the handshake has produced one. Send/Receive run
// the Engine's legality check around
// the transport I/O so neither router nor client code can emit or accept
// a message illegal for the session's current phase.
type BaseSession struct {
	Details    SessionDetails
	Transport  transport.Transport
	Serializer serializer.Serializer
	Engine     *Engine
}

// NewBaseSession wraps an established transport/serializer/details triple.
// The Engine is expected to already be in ESTABLISHED (the caller drove it
// there via the handshake).
func NewBaseSession(tr transport.Transport, ser serializer.Serializer, details SessionDetails, engine *Engine) *BaseSession {
	return &BaseSession{Details: details, Transport: tr, Serializer: ser, Engine: engine}
}

// Send validates msg's legality, encodes it, and writes it to the
// transport, advancing the engine's state if the message is a
// phase-transitioning one (e.g. GOODBYE).
func (b *BaseSession) Send(ctx context.Context, msg wampmsg.Message) error {
	if err := b.Engine.Advance(msg.Type()); err != nil {
		return err
	}
	data, err := b.Serializer.Encode(msg)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", msg.Type(), err)
	}
	if err := b.Transport.Write(ctx, data); err != nil {
		b.Engine.ForceClose()
		return fmt.Errorf("session: write %s: %w", msg.Type(), err)
	}
	return nil
}

// Receive reads one frame, decodes it, and validates/advances the engine.
// A decode failure or a legality violation closes the transport and
// returns the error, with no reply sent to the peer.
func (b *BaseSession) Receive(ctx context.Context) (wampmsg.Message, error) {
	data, err := b.Transport.Read(ctx)
	if err != nil {
		b.Engine.ForceClose()
		return nil, fmt.Errorf("session: read: %w", err)
	}
	msg, err := b.Serializer.Decode(data)
	if err != nil {
		b.Transport.Close()
		b.Engine.ForceClose()
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	if err := b.Engine.Advance(msg.Type()); err != nil {
		b.Transport.Close()
		return nil, err
	}
	return msg, nil
}

// Close shuts down the transport and forces the engine to CLOSED.
func (b *BaseSession) Close() error {
	b.Engine.ForceClose()
	return b.Transport.Close()
}
