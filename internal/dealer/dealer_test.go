package dealer

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
func (f *fakePeer) last() wampmsg.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.received) == 0 {
		return nil
	}
	return f.received[len(f.received)-1]
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

func TestRegisterCallYield(t *testing.T) {
	caller := &fakePeer{sid: 1}
	callee := &fakePeer{sid: 2}
	d := New(newRegistry(caller, callee))
	ctx := context.Background()

	d.HandleRegister(ctx, callee, &wampmsg.Register{RequestID: 1, Options: map[string]interface{}{}, Procedure: "io.echo"})
	reg, ok := callee.last().(*wampmsg.Registered)
	if !ok {
		t.Fatalf("expected REGISTERED, got %T", callee.last())
	}

	d.HandleCall(ctx, caller, &wampmsg.Call{RequestID: 10, Options: map[string]interface{}{}, Procedure: "io.echo", Args: []interface{}{"hi"}})
	inv, ok := callee.last().(*wampmsg.Invocation)
	if !ok {
		t.Fatalf("expected INVOCATION, got %T", callee.last())
	}
	if inv.RegistrationID != reg.RegistrationID {
		t.Fatalf("invocation registration id mismatch")
	}

	d.HandleYield(ctx, callee, &wampmsg.Yield{RequestID: inv.RequestID, Options: map[string]interface{}{}, Args: []interface{}{"hi"}})
	result, ok := caller.last().(*wampmsg.Result)
	if !ok {
		t.Fatalf("expected RESULT, got %T", caller.last())
	}
	if result.RequestID != 10 || result.Args[0] != "hi" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestCallNoSuchProcedure(t *testing.T) {
	caller := &fakePeer{sid: 1}
	d := New(newRegistry(caller))
	ctx := context.Background()

	d.HandleCall(ctx, caller, &wampmsg.Call{RequestID: 1, Options: map[string]interface{}{}, Procedure: "io.missing"})
	errMsg, ok := caller.last().(*wampmsg.Error)
	if !ok {
		t.Fatalf("expected ERROR, got %T", caller.last())
	}
	if errMsg.URI != "wamp.error.no_such_procedure" {
		t.Fatalf("unexpected error uri %q", errMsg.URI)
	}
}

func TestSinglePolicyRejectsSecondRegister(t *testing.T) {
	a := &fakePeer{sid: 1}
	b := &fakePeer{sid: 2}
	d := New(newRegistry(a, b))
	ctx := context.Background()

	d.HandleRegister(ctx, a, &wampmsg.Register{RequestID: 1, Options: map[string]interface{}{}, Procedure: "io.echo"})
	d.HandleRegister(ctx, b, &wampmsg.Register{RequestID: 2, Options: map[string]interface{}{}, Procedure: "io.echo"})

	errMsg, ok := b.last().(*wampmsg.Error)
	if !ok {
		t.Fatalf("expected ERROR for second registrant, got %T", b.last())
	}
	if errMsg.URI != "wamp.error.procedure_already_exists" {
		t.Fatalf("unexpected error uri %q", errMsg.URI)
	}
}

func TestRoundRobinPolicy(t *testing.T) {
	caller := &fakePeer{sid: 1}
	c1 := &fakePeer{sid: 2}
	c2 := &fakePeer{sid: 3}
	d := New(newRegistry(caller, c1, c2))
	ctx := context.Background()

	opts := map[string]interface{}{"invoke": "roundrobin"}
	d.HandleRegister(ctx, c1, &wampmsg.Register{RequestID: 1, Options: opts, Procedure: "io.work"})
	d.HandleRegister(ctx, c2, &wampmsg.Register{RequestID: 2, Options: opts, Procedure: "io.work"})

	d.HandleCall(ctx, caller, &wampmsg.Call{RequestID: 10, Options: map[string]interface{}{}, Procedure: "io.work"})
	d.HandleCall(ctx, caller, &wampmsg.Call{RequestID: 11, Options: map[string]interface{}{}, Procedure: "io.work"})

	if _, ok := c1.last().(*wampmsg.Invocation); !ok {
		t.Fatalf("expected c1 to receive first invocation, got %T", c1.last())
	}
	if _, ok := c2.last().(*wampmsg.Invocation); !ok {
		t.Fatalf("expected c2 to receive second invocation, got %T", c2.last())
	}
}

func TestRemoveSessionCancelsInFlight(t *testing.T) {
	caller := &fakePeer{sid: 1}
	callee := &fakePeer{sid: 2}
	d := New(newRegistry(caller, callee))
	ctx := context.Background()

	d.HandleRegister(ctx, callee, &wampmsg.Register{RequestID: 1, Options: map[string]interface{}{}, Procedure: "io.echo"})
	d.HandleCall(ctx, caller, &wampmsg.Call{RequestID: 10, Options: map[string]interface{}{}, Procedure: "io.echo"})

	d.RemoveSession(ctx, callee.sid)

	errMsg, ok := caller.last().(*wampmsg.Error)
	if !ok {
		t.Fatalf("expected ERROR after callee removal, got %T", caller.last())
	}
	if errMsg.URI != "wamp.error.canceled" {
		t.Fatalf("unexpected error uri %q", errMsg.URI)
	}
}
