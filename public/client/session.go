package client

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tenzoki/wampcore/internal/handshake"
	"github.com/tenzoki/wampcore/internal/serializer"
	"github.com/tenzoki/wampcore/internal/session"
	"github.com/tenzoki/wampcore/internal/transport/rawsocket"
	"github.com/tenzoki/wampcore/internal/transport/websocket"
	"github.com/tenzoki/wampcore/internal/wampmsg"
	"github.com/tenzoki/wampcore/public/wamp"
)

// Session is the application-facing WAMP client: one established session
// over one transport, with request/response correlation for CALL/
// REGISTER/SUBSCRIBE/PUBLISH and dispatch of inbound EVENT/INVOCATION to
// registered handlers.
//
// Thread safety: all exported methods may be called concurrently. The
// single background listener goroutine is the only reader of the
// transport; writers serialize through the underlying BaseSession.
type Session struct {
	base  *session.BaseSession
	realm string
	debug bool

	reqID uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan wampmsg.Message

	registrationsMu sync.Mutex
	registrations   map[uint64]Handler

	subscriptionsMu sync.Mutex
	subscriptions   map[uint64]EventHandler

	closeOnce sync.Once
	closed    chan struct{}
}

// Options configures Connect/ConnectWebSocket.
type Options struct {
	Realm string
	Codec serializer.Name // defaults to serializer.NameJSON
	Auth  handshake.ClientAuthenticator
	Debug bool
}

func newSession(bs *session.BaseSession, realm string, debug bool) *Session {
	s := &Session{
		base:          bs,
		realm:         realm,
		debug:         debug,
		pending:       make(map[uint64]chan wampmsg.Message),
		registrations: make(map[uint64]Handler),
		subscriptions: make(map[uint64]EventHandler),
		closed:        make(chan struct{}),
	}
	go s.listen()
	return s
}

// Connect dials a raw-socket transport at address, negotiates codec, runs
// the client handshake against realm, and returns a live Session.
func Connect(ctx context.Context, network, address string, opts Options) (*Session, error) {
	if opts.Codec == "" {
		opts.Codec = serializer.NameJSON
	}
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s/%s: %w", network, address, err)
	}
	codec, err := rawsocket.HandshakeClient(ctx, conn, opts.Codec)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: raw-socket handshake: %w", err)
	}
	ser, err := serializer.ByName(codec)
	if err != nil {
		conn.Close()
		return nil, err
	}
	tr := rawsocket.New(conn)
	bs, err := handshake.Join(ctx, tr, ser, opts.Realm, opts.Auth)
	if err != nil {
		return nil, fmt.Errorf("client: join: %w", err)
	}
	return newSession(bs, opts.Realm, opts.Debug), nil
}

// ConnectWebSocket dials a WebSocket transport at rawURL (ws:// or wss://)
// and runs the same client handshake as Connect.
func ConnectWebSocket(ctx context.Context, rawURL string, opts Options) (*Session, error) {
	if opts.Codec == "" {
		opts.Codec = serializer.NameJSON
	}
	tr, err := websocket.Dial(ctx, rawURL, opts.Codec)
	if err != nil {
		return nil, fmt.Errorf("client: websocket dial: %w", err)
	}
	bs, err := handshake.Join(ctx, tr, serializerFor(opts.Codec), opts.Realm, opts.Auth)
	if err != nil {
		return nil, fmt.Errorf("client: join: %w", err)
	}
	return newSession(bs, opts.Realm, opts.Debug), nil
}

func serializerFor(name serializer.Name) serializer.Serializer {
	ser, err := serializer.ByName(name)
	if err != nil {
		return serializer.JSON{}
	}
	return ser
}

// SessionID returns the session_id assigned in WELCOME.
func (s *Session) SessionID() uint64 { return s.base.Details.SessionID }

// Realm returns the realm this session joined.
func (s *Session) Realm() string { return s.realm }

func (s *Session) nextReqID() uint64 {
	return atomic.AddUint64(&s.reqID, 1)
}

func (s *Session) register(id uint64) chan wampmsg.Message {
	ch := make(chan wampmsg.Message, 1)
	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()
	return ch
}

func (s *Session) forget(id uint64) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

// await blocks for ch to receive a reply or for ctx/closed to fire first.
func (s *Session) await(ctx context.Context, id uint64, ch chan wampmsg.Message) (wampmsg.Message, error) {
	select {
	case msg := <-ch:
		if msg == nil {
			return nil, &wamp.ConnectionClosedError{}
		}
		return msg, nil
	case <-s.closed:
		s.forget(id)
		return nil, &wamp.ConnectionClosedError{}
	case <-ctx.Done():
		s.forget(id)
		return nil, ctx.Err()
	}
}

// Call invokes procedure and waits for RESULT or ERROR.
func (s *Session) Call(ctx context.Context, procedure string, args []interface{}, kwargs map[string]interface{}, options map[string]interface{}) (*CallResult, error) {
	id := s.nextReqID()
	ch := s.register(id)
	defer s.forget(id)

	if options == nil {
		options = map[string]interface{}{}
	}
	if err := s.base.Send(ctx, &wampmsg.Call{RequestID: id, Options: options, Procedure: procedure, Args: args, Kwargs: kwargs}); err != nil {
		return nil, fmt.Errorf("client: call %s: %w", procedure, err)
	}

	reply, err := s.await(ctx, id, ch)
	if err != nil {
		return nil, err
	}
	switch m := reply.(type) {
	case *wampmsg.Result:
		return &CallResult{Args: m.Args, Kwargs: m.Kwargs, Details: m.Details}, nil
	case *wampmsg.Error:
		return nil, &wamp.ApplicationError{URI: m.URI, Args: m.Args, Kwargs: m.Kwargs}
	default:
		return nil, fmt.Errorf("client: call %s: unexpected reply %T", procedure, reply)
	}
}

// Register registers procedure with the Dealer, dispatching future
// INVOCATIONs to handler. options may set "match" (exact/prefix/wildcard)
// and "invoke" (the invocation policy among multiple registrations).
func (s *Session) Register(ctx context.Context, procedure string, options map[string]interface{}, handler Handler) (*Registration, error) {
	id := s.nextReqID()
	ch := s.register(id)
	defer s.forget(id)

	if options == nil {
		options = map[string]interface{}{}
	}
	if err := s.base.Send(ctx, &wampmsg.Register{RequestID: id, Options: options, Procedure: procedure}); err != nil {
		return nil, fmt.Errorf("client: register %s: %w", procedure, err)
	}

	reply, err := s.await(ctx, id, ch)
	if err != nil {
		return nil, err
	}
	switch m := reply.(type) {
	case *wampmsg.Registered:
		s.registrationsMu.Lock()
		s.registrations[m.RegistrationID] = handler
		s.registrationsMu.Unlock()
		return &Registration{ID: m.RegistrationID, Procedure: procedure, session: s}, nil
	case *wampmsg.Error:
		return nil, &wamp.ApplicationError{URI: m.URI, Args: m.Args, Kwargs: m.Kwargs}
	default:
		return nil, fmt.Errorf("client: register %s: unexpected reply %T", procedure, reply)
	}
}

// Unregister sends UNREGISTER for reg and removes its local handler.
func (s *Session) Unregister(ctx context.Context, reg *Registration) error {
	id := s.nextReqID()
	ch := s.register(id)
	defer s.forget(id)

	if err := s.base.Send(ctx, &wampmsg.Unregister{RequestID: id, RegistrationID: reg.ID}); err != nil {
		return fmt.Errorf("client: unregister %s: %w", reg.Procedure, err)
	}

	reply, err := s.await(ctx, id, ch)
	if err != nil {
		return err
	}
	switch m := reply.(type) {
	case *wampmsg.Unregistered:
		s.registrationsMu.Lock()
		delete(s.registrations, reg.ID)
		s.registrationsMu.Unlock()
		return nil
	case *wampmsg.Error:
		return &wamp.ApplicationError{URI: m.URI, Args: m.Args, Kwargs: m.Kwargs}
	default:
		return fmt.Errorf("client: unregister %s: unexpected reply %T", reg.Procedure, reply)
	}
}

// Subscribe subscribes to topic, dispatching future EVENTs to handler.
func (s *Session) Subscribe(ctx context.Context, topic string, options map[string]interface{}, handler EventHandler) (*Subscription, error) {
	id := s.nextReqID()
	ch := s.register(id)
	defer s.forget(id)

	if options == nil {
		options = map[string]interface{}{}
	}
	if err := s.base.Send(ctx, &wampmsg.Subscribe{RequestID: id, Options: options, Topic: topic}); err != nil {
		return nil, fmt.Errorf("client: subscribe %s: %w", topic, err)
	}

	reply, err := s.await(ctx, id, ch)
	if err != nil {
		return nil, err
	}
	switch m := reply.(type) {
	case *wampmsg.Subscribed:
		s.subscriptionsMu.Lock()
		s.subscriptions[m.SubscriptionID] = handler
		s.subscriptionsMu.Unlock()
		return &Subscription{ID: m.SubscriptionID, Topic: topic, session: s}, nil
	case *wampmsg.Error:
		return nil, &wamp.ApplicationError{URI: m.URI, Args: m.Args, Kwargs: m.Kwargs}
	default:
		return nil, fmt.Errorf("client: subscribe %s: unexpected reply %T", topic, reply)
	}
}

// Unsubscribe sends UNSUBSCRIBE for sub and removes its local handler.
func (s *Session) Unsubscribe(ctx context.Context, sub *Subscription) error {
	id := s.nextReqID()
	ch := s.register(id)
	defer s.forget(id)

	if err := s.base.Send(ctx, &wampmsg.Unsubscribe{RequestID: id, SubscriptionID: sub.ID}); err != nil {
		return fmt.Errorf("client: unsubscribe %s: %w", sub.Topic, err)
	}

	reply, err := s.await(ctx, id, ch)
	if err != nil {
		return err
	}
	switch m := reply.(type) {
	case *wampmsg.Unsubscribed:
		s.subscriptionsMu.Lock()
		delete(s.subscriptions, sub.ID)
		s.subscriptionsMu.Unlock()
		return nil
	case *wampmsg.Error:
		return &wamp.ApplicationError{URI: m.URI, Args: m.Args, Kwargs: m.Kwargs}
	default:
		return fmt.Errorf("client: unsubscribe %s: unexpected reply %T", sub.Topic, reply)
	}
}

// Publish publishes to topic. If options["acknowledge"] is true it waits
// for PUBLISHED; otherwise it is fire-and-forget, the default, matching
// the WAMP Basic Profile.
func (s *Session) Publish(ctx context.Context, topic string, args []interface{}, kwargs map[string]interface{}, options map[string]interface{}) error {
	id := s.nextReqID()
	if options == nil {
		options = map[string]interface{}{}
	}
	ack, _ := options["acknowledge"].(bool)

	var ch chan wampmsg.Message
	if ack {
		ch = s.register(id)
		defer s.forget(id)
	}

	if err := s.base.Send(ctx, &wampmsg.Publish{RequestID: id, Options: options, Topic: topic, Args: args, Kwargs: kwargs}); err != nil {
		return fmt.Errorf("client: publish %s: %w", topic, err)
	}
	if !ack {
		return nil
	}

	reply, err := s.await(ctx, id, ch)
	if err != nil {
		return err
	}
	switch m := reply.(type) {
	case *wampmsg.Published:
		return nil
	case *wampmsg.Error:
		return &wamp.ApplicationError{URI: m.URI, Args: m.Args, Kwargs: m.Kwargs}
	default:
		return fmt.Errorf("client: publish %s: unexpected reply %T", topic, reply)
	}
}

// Ping round-trips a transport-level PING/PONG, independent of any WAMP
// message, and returns the measured round-trip latency.
func (s *Session) Ping(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	return s.base.Transport.Ping(ctx, timeout, rawsocket.RandomPingPayload())
}

// Leave sends GOODBYE, waits up to 10 seconds for the router's GOODBYE reply
// (or for ctx to end), and closes the underlying transport.
func (s *Session) Leave(ctx context.Context, reason string) error {
	if reason == "" {
		reason = wamp.CloseGoodbyeAndOut
	}
	err := s.base.Send(ctx, &wampmsg.Goodbye{Details: map[string]interface{}{}, Reason: reason})
	if err == nil {
		// listen closes s.closed once the router's GOODBYE (or a read error) arrives.
		timer := time.NewTimer(10 * time.Second)
		select {
		case <-s.closed:
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()
	}
	s.Close()
	return err
}

// Close tears down the session unconditionally, waking every pending
// caller with a ConnectionClosedError.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.base.Close()
	})
	return err
}

// listen is the single reader goroutine: it decodes every inbound frame
// and routes it to a pending waiter, a subscription handler, or a
// registered procedure handler.
func (s *Session) listen() {
	ctx := context.Background()
	for {
		msg, err := s.base.Receive(ctx)
		if err != nil {
			if s.debug {
				log.Printf("client: session %d: receive: %v", s.SessionID(), err)
			}
			s.Close()
			return
		}

		switch m := msg.(type) {
		case *wampmsg.Result, *wampmsg.Registered, *wampmsg.Unregistered,
			*wampmsg.Subscribed, *wampmsg.Unsubscribed, *wampmsg.Published:
			s.deliver(requestIDOf(m), msg)

		case *wampmsg.Error:
			s.deliver(m.RequestID, msg)

		case *wampmsg.Event:
			s.dispatchEvent(m)

		case *wampmsg.Invocation:
			go s.dispatchInvocation(ctx, m)

		case *wampmsg.Goodbye:
			_ = s.base.Send(ctx, &wampmsg.Goodbye{Details: map[string]interface{}{}, Reason: wamp.CloseGoodbyeAndOut})
			s.Close()
			return

		default:
			if s.debug {
				log.Printf("client: session %d: unexpected message %s", s.SessionID(), msg.Type())
			}
		}
	}
}

func requestIDOf(msg wampmsg.Message) uint64 {
	switch m := msg.(type) {
	case *wampmsg.Result:
		return m.RequestID
	case *wampmsg.Registered:
		return m.RequestID
	case *wampmsg.Unregistered:
		return m.RequestID
	case *wampmsg.Subscribed:
		return m.RequestID
	case *wampmsg.Unsubscribed:
		return m.RequestID
	case *wampmsg.Published:
		return m.RequestID
	default:
		return 0
	}
}

func (s *Session) deliver(id uint64, msg wampmsg.Message) {
	s.pendingMu.Lock()
	ch, ok := s.pending[id]
	s.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func (s *Session) dispatchEvent(m *wampmsg.Event) {
	s.subscriptionsMu.Lock()
	handler, ok := s.subscriptions[m.SubscriptionID]
	s.subscriptionsMu.Unlock()
	if !ok {
		return
	}
	handler(&Event{Args: m.Args, Kwargs: m.Kwargs, Details: m.Details})
}

func (s *Session) dispatchInvocation(ctx context.Context, m *wampmsg.Invocation) {
	s.registrationsMu.Lock()
	handler, ok := s.registrations[m.RegistrationID]
	s.registrationsMu.Unlock()
	if !ok {
		_ = s.base.Send(ctx, &wampmsg.Error{RequestType: wampmsg.TypeInvocation, RequestID: m.RequestID, Details: map[string]interface{}{}, URI: wamp.ErrNoSuchProcedure})
		return
	}

	procedure, _ := m.Details["procedure"].(string)
	result, err := handler(ctx, &InvocationRequest{Procedure: procedure, Args: m.Args, Kwargs: m.Kwargs, Details: m.Details})
	if err != nil {
		appErr, ok := err.(*wamp.ApplicationError)
		if !ok {
			appErr = &wamp.ApplicationError{URI: wamp.ErrRuntimeError, Args: []interface{}{err.Error()}}
		}
		_ = s.base.Send(ctx, &wampmsg.Error{RequestType: wampmsg.TypeInvocation, RequestID: m.RequestID, Details: map[string]interface{}{}, URI: appErr.URI, Args: appErr.Args, Kwargs: appErr.Kwargs})
		return
	}

	if result == nil {
		result = &InvocationResult{}
	}
	_ = s.base.Send(ctx, &wampmsg.Yield{RequestID: m.RequestID, Options: map[string]interface{}{}, Args: result.Args, Kwargs: result.Kwargs})
}
