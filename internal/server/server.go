// Package server implements the wampd accept loop: it accepts TCP/Unix-
// domain connections, runs the raw-socket or WebSocket handshake, attaches
// the resulting session to the router, and pumps inbound messages until
// the session closes.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tenzoki/wampcore/internal/config"
	"github.com/tenzoki/wampcore/internal/handshake"
	"github.com/tenzoki/wampcore/internal/peer"
	"github.com/tenzoki/wampcore/internal/router"
	"github.com/tenzoki/wampcore/internal/serializer"
	"github.com/tenzoki/wampcore/internal/session"
	"github.com/tenzoki/wampcore/internal/transport"
	rawtransport "github.com/tenzoki/wampcore/internal/transport/rawsocket"
	wstransport "github.com/tenzoki/wampcore/internal/transport/websocket"
	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// Server runs every configured listener against one Router.
type Server struct {
	Router *router.Router
	Auth   handshake.Authenticator // nil => anonymous-only
	Debug  bool

	sessionSeq uint64

	mu       sync.Mutex
	listeners []net.Listener
	httpSrvs  []*http.Server
}

// New creates a Server bound to router r.
func New(r *router.Router) *Server {
	return &Server{Router: r}
}

// Run starts every listener in listeners and blocks until every one has
// stopped (normally because ctx was cancelled).
func (s *Server) Run(ctx context.Context, listeners []config.ListenerConfig) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(listeners))

	for _, l := range listeners {
		l := l
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			switch l.Protocol {
			case "rawsocket":
				err = s.serveRawsocket(ctx, l)
			case "websocket":
				err = s.serveWebsocket(ctx, l)
			default:
				err = fmt.Errorf("server: unknown listener protocol %q", l.Protocol)
			}
			if err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) serveRawsocket(ctx context.Context, l config.ListenerConfig) error {
	ln, err := net.Listen(l.Network, l.Address)
	if err != nil {
		return fmt.Errorf("server: listen %s/%s: %w", l.Network, l.Address, err)
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, ln)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	if s.Debug {
		log.Printf("server: raw-socket listening on %s/%s", l.Network, l.Address)
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("server: accept error on %s: %v", l.Address, err)
			continue
		}
		go s.handleRawsocket(ctx, conn)
	}
}

func (s *Server) handleRawsocket(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	connID := uuid.NewString()

	codec, err := rawtransport.HandshakeServer(ctx, conn)
	if err != nil {
		if s.Debug {
			log.Printf("server: conn %s: raw-socket handshake failed: %v", connID, err)
		}
		return
	}
	ser, err := serializer.ByName(codec)
	if err != nil {
		if s.Debug {
			log.Printf("server: conn %s: unsupported codec %q: %v", connID, codec, err)
		}
		return
	}

	s.runSession(ctx, connID, rawtransport.New(conn), ser)
}

func (s *Server) serveWebsocket(ctx context.Context, l config.ListenerConfig) error {
	path := l.Path
	if path == "" {
		path = "/ws"
	}
	wsRouter := mux.NewRouter()
	wsRouter.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		connID := uuid.NewString()
		tr, name, err := wstransport.Accept(w, r)
		if err != nil {
			if s.Debug {
				log.Printf("server: conn %s: websocket accept failed: %v", connID, err)
			}
			return
		}
		ser, err := serializer.ByName(name)
		if err != nil {
			tr.Close()
			return
		}
		s.runSession(r.Context(), connID, tr, ser)
	})

	httpSrv := &http.Server{Addr: l.Address, Handler: wsRouter}
	s.mu.Lock()
	s.httpSrvs = append(s.httpSrvs, httpSrv)
	s.mu.Unlock()

	ln, err := net.Listen(l.Network, l.Address)
	if err != nil {
		return fmt.Errorf("server: listen %s/%s: %w", l.Network, l.Address, err)
	}

	go func() {
		<-ctx.Done()
		httpSrv.Close()
	}()

	if s.Debug {
		log.Printf("server: websocket listening on %s/%s%s", l.Network, l.Address, path)
	}

	if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: websocket serve: %w", err)
	}
	return nil
}

// runSession drives the handshake and then the message pump for one
// accepted connection, regardless of which transport produced it. connID
// is a per-connection correlation id for debug logging, assigned before
// the handshake even identifies a session_id.
func (s *Server) runSession(ctx context.Context, connID string, tr transport.Transport, ser serializer.Serializer) {
	bs, err := handshake.Accept(ctx, tr, ser, s.Router.HasRealm, s.Auth, s.allocSessionID)
	if err != nil {
		if s.Debug {
			log.Printf("server: conn %s: handshake rejected: %v", connID, err)
		}
		return
	}

	p := &sessionPeer{base: bs}
	if err := s.Router.AttachClient(bs.Details.Realm, p); err != nil {
		if s.Debug {
			log.Printf("server: conn %s: attach failed: %v", connID, err)
		}
		bs.Close()
		return
	}
	if s.Debug {
		log.Printf("server: conn %s: session %d established on realm %q", connID, bs.Details.SessionID, bs.Details.Realm)
	}
	defer s.Router.DetachClient(ctx, bs.Details.Realm, bs.Details.SessionID)
	defer bs.Close()

	for {
		msg, err := bs.Receive(ctx)
		if err != nil {
			if s.Debug {
				log.Printf("server: conn %s: session %d: receive: %v", connID, bs.Details.SessionID, err)
			}
			return
		}

		closeSession, err := s.Router.ReceiveMessage(ctx, bs.Details.Realm, p, msg)
		if err != nil {
			if s.Debug {
				log.Printf("server: conn %s: session %d: dispatch: %v", connID, bs.Details.SessionID, err)
			}
			return
		}
		if closeSession {
			return
		}
	}
}

func (s *Server) allocSessionID(realm string) uint64 {
	return atomic.AddUint64(&s.sessionSeq, 1)
}

// sessionPeer adapts a session.BaseSession to the peer.Peer interface
// the Dealer/Broker route outbound messages through.
type sessionPeer struct {
	base *session.BaseSession
}

func (p *sessionPeer) SessionID() uint64 { return p.base.Details.SessionID }
func (p *sessionPeer) AuthID() string    { return p.base.Details.AuthID }
func (p *sessionPeer) AuthRole() string  { return p.base.Details.AuthRole }

func (p *sessionPeer) Send(ctx context.Context, msg wampmsg.Message) error {
	return p.base.Send(ctx, msg)
}

var _ peer.Peer = (*sessionPeer)(nil)
