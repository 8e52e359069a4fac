package broker

import (
	"context"
	"sync"
	"testing"

	"github.com/tenzoki/wampcore/internal/peer"
	"github.com/tenzoki/wampcore/internal/wampmsg"
)

type fakePeer struct {
	sid      uint64
	authid   string
	authrole string

	mu       sync.Mutex
	received []wampmsg.Message
}

func (f *fakePeer) SessionID() uint64 { return f.sid }
func (f *fakePeer) AuthID() string    { return f.authid }
func (f *fakePeer) AuthRole() string  { return f.authrole }
func (f *fakePeer) Send(ctx context.Context, msg wampmsg.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, msg)
	return nil
}
func (f *fakePeer) events() []*wampmsg.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*wampmsg.Event
	for _, m := range f.received {
		if e, ok := m.(*wampmsg.Event); ok {
			out = append(out, e)
		}
	}
	return out
}

func newRegistry(peers ...*fakePeer) func(uint64) (peer.Peer, bool) {
	m := make(map[uint64]*fakePeer)
	for _, p := range peers {
		m[p.sid] = p
	}
	return func(sid uint64) (peer.Peer, bool) {
		p, ok := m[sid]
		return p, ok
	}
}

func TestSubscribePublishDeliversEvent(t *testing.T) {
	pub := &fakePeer{sid: 1}
	sub := &fakePeer{sid: 2}
	b := New(newRegistry(pub, sub))
	ctx := context.Background()

	b.HandleSubscribe(ctx, sub, &wampmsg.Subscribe{RequestID: 1, Options: map[string]interface{}{}, Topic: "io.t"})
	if len(sub.received) != 1 {
		t.Fatalf("expected SUBSCRIBED, got %d messages", len(sub.received))
	}

	b.HandlePublish(ctx, pub, &wampmsg.Publish{RequestID: 2, Options: map[string]interface{}{}, Topic: "io.t", Args: []interface{}{"hi"}})

	events := sub.events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Args[0] != "hi" {
		t.Fatalf("unexpected event args: %v", events[0].Args)
	}
}

func TestExcludeMeDefaultTrue(t *testing.T) {
	pub := &fakePeer{sid: 1}
	b := New(newRegistry(pub))
	ctx := context.Background()

	b.HandleSubscribe(ctx, pub, &wampmsg.Subscribe{RequestID: 1, Options: map[string]interface{}{}, Topic: "io.t"})
	b.HandlePublish(ctx, pub, &wampmsg.Publish{RequestID: 2, Options: map[string]interface{}{}, Topic: "io.t"})

	if len(pub.events()) != 0 {
		t.Fatalf("expected publisher to be excluded by default, got %d events", len(pub.events()))
	}
}

func TestAcknowledge(t *testing.T) {
	pub := &fakePeer{sid: 1}
	b := New(newRegistry(pub))
	ctx := context.Background()

	b.HandlePublish(ctx, pub, &wampmsg.Publish{RequestID: 5, Options: map[string]interface{}{"acknowledge": true}, Topic: "io.t"})

	var published *wampmsg.Published
	for _, m := range pub.received {
		if p, ok := m.(*wampmsg.Published); ok {
			published = p
		}
	}
	if published == nil || published.RequestID != 5 {
		t.Fatalf("expected PUBLISHED(5,...), got %#v", pub.received)
	}
}

func TestUnsubscribeUnknownErrors(t *testing.T) {
	pub := &fakePeer{sid: 1}
	b := New(newRegistry(pub))
	ctx := context.Background()

	b.HandleUnsubscribe(ctx, pub, &wampmsg.Unsubscribe{RequestID: 1, SubscriptionID: 999})

	if len(pub.received) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(pub.received))
	}
	errMsg, ok := pub.received[0].(*wampmsg.Error)
	if !ok {
		t.Fatalf("expected ERROR, got %T", pub.received[0])
	}
	if errMsg.URI != "wamp.error.no_such_subscription" {
		t.Fatalf("unexpected error uri %q", errMsg.URI)
	}
}

func TestWildcardMatch(t *testing.T) {
	pub := &fakePeer{sid: 1}
	sub := &fakePeer{sid: 2}
	b := New(newRegistry(pub, sub))
	ctx := context.Background()

	b.HandleSubscribe(ctx, sub, &wampmsg.Subscribe{RequestID: 1, Options: map[string]interface{}{"match": "wildcard"}, Topic: "io..created"})
	b.HandlePublish(ctx, pub, &wampmsg.Publish{RequestID: 2, Options: map[string]interface{}{}, Topic: "io.user.created"})

	if len(sub.events()) != 1 {
		t.Fatalf("expected wildcard match to deliver 1 event, got %d", len(sub.events()))
	}
}

func TestRemoveSession(t *testing.T) {
	pub := &fakePeer{sid: 1}
	sub := &fakePeer{sid: 2}
	b := New(newRegistry(pub, sub))
	ctx := context.Background()

	b.HandleSubscribe(ctx, sub, &wampmsg.Subscribe{RequestID: 1, Options: map[string]interface{}{}, Topic: "io.t"})
	b.RemoveSession(2)
	b.HandlePublish(ctx, pub, &wampmsg.Publish{RequestID: 2, Options: map[string]interface{}{}, Topic: "io.t"})

	if len(sub.events()) != 0 {
		t.Fatalf("expected no events after session removal, got %d", len(sub.events()))
	}
}
