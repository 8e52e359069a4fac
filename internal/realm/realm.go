// Package realm implements the thin per-realm dispatcher: it owns one
// Dealer and one Broker plus the set of attached sessions, and routes each
// inbound message to whichever of the two owns its type.
package realm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tenzoki/wampcore/internal/broker"
	"github.com/tenzoki/wampcore/internal/dealer"
	"github.com/tenzoki/wampcore/internal/peer"
	"github.com/tenzoki/wampcore/internal/wampmsg"
	"github.com/tenzoki/wampcore/public/wamp"
)

// Realm owns one WAMP routing namespace: its Dealer, its Broker, and the
// peers currently attached to it.
type Realm struct {
	Name string

	Dealer *dealer.Dealer
	Broker *broker.Broker

	mu    sync.RWMutex
	peers map[uint64]peer.Peer
}

// New creates an empty Realm named name.
func New(name string) *Realm {
	r := &Realm{Name: name, peers: make(map[uint64]peer.Peer)}
	r.Dealer = dealer.New(r.lookup)
	r.Broker = broker.New(r.lookup)
	return r
}

func (r *Realm) lookup(sid uint64) (peer.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[sid]
	return p, ok
}

// Attach registers p as a member of this realm.
func (r *Realm) Attach(p peer.Peer) {
	r.mu.Lock()
	r.peers[p.SessionID()] = p
	r.mu.Unlock()
}

// Detach removes sid's membership and unwinds all of its Dealer/Broker
// state so a disconnected session leaves no registrations or subscriptions
// behind.
func (r *Realm) Detach(ctx context.Context, sid uint64) {
	r.mu.Lock()
	delete(r.peers, sid)
	r.mu.Unlock()

	r.Dealer.RemoveSession(ctx, sid)
	r.Broker.RemoveSession(sid)
}

// Dispatch routes one inbound message from sender to the Dealer or Broker
// by type. It returns (true, nil) when msg was GOODBYE
// and the caller must now tear down the session (the realm has already
// replied GOODBYE and detached it). Any other message type is a protocol
// error returned to the caller, who must close the session.
func (r *Realm) Dispatch(ctx context.Context, sender peer.Peer, msg wampmsg.Message) (closeSession bool, err error) {
	switch m := msg.(type) {
	case *wampmsg.Call:
		r.Dealer.HandleCall(ctx, sender, m)
	case *wampmsg.Yield:
		r.Dealer.HandleYield(ctx, sender, m)
	case *wampmsg.Register:
		r.Dealer.HandleRegister(ctx, sender, m)
	case *wampmsg.Unregister:
		r.Dealer.HandleUnregister(ctx, sender, m)
	case *wampmsg.Cancel:
		r.Dealer.HandleCancel(ctx, sender, m)
	case *wampmsg.Error:
		if m.RequestType == wampmsg.TypeInvocation {
			r.Dealer.HandleInvocationError(ctx, sender, m)
		} else {
			return false, &wamp.ProtocolError{Reason: fmt.Sprintf("unexpected ERROR for request type %s", m.RequestType)}
		}
	case *wampmsg.Publish:
		r.Broker.HandlePublish(ctx, sender, m)
	case *wampmsg.Subscribe:
		r.Broker.HandleSubscribe(ctx, sender, m)
	case *wampmsg.Unsubscribe:
		r.Broker.HandleUnsubscribe(ctx, sender, m)
	case *wampmsg.Goodbye:
		r.Detach(ctx, sender.SessionID())
		_ = sender.Send(ctx, &wampmsg.Goodbye{Details: map[string]interface{}{}, Reason: wamp.CloseGoodbyeAndOut})
		return true, nil
	default:
		return false, &wamp.ProtocolError{Reason: fmt.Sprintf("message type %s not legal post-WELCOME", msg.Type())}
	}
	return false, nil
}
