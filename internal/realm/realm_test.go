package realm

import (
	"context"
	"testing"

	"github.com/tenzoki/wampcore/internal/wampmsg"
)

type fakePeer struct {
	sid      uint64
	received []wampmsg.Message
}

func (f *fakePeer) SessionID() uint64 { return f.sid }
func (f *fakePeer) AuthID() string    { return "" }
func (f *fakePeer) AuthRole() string  { return "anonymous" }
func (f *fakePeer) Send(ctx context.Context, msg wampmsg.Message) error {
	f.received = append(f.received, msg)
	return nil
}

func TestDispatchGoodbyeDetaches(t *testing.T) {
	r := New("realm1")
	p := &fakePeer{sid: 1}
	r.Attach(p)

	closeSession, err := r.Dispatch(context.Background(), p, &wampmsg.Goodbye{Details: map[string]interface{}{}, Reason: "wamp.close.goodbye_and_out"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !closeSession {
		t.Fatal("expected GOODBYE to signal session close")
	}
	if _, ok := r.lookup(1); ok {
		t.Fatal("expected session detached after GOODBYE")
	}
}

func TestDispatchUnknownTypeIsProtocolError(t *testing.T) {
	r := New("realm1")
	p := &fakePeer{sid: 1}
	r.Attach(p)

	_, err := r.Dispatch(context.Background(), p, &wampmsg.Hello{Realm: "realm1", Details: map[string]interface{}{}})
	if err == nil {
		t.Fatal("expected protocol error for HELLO post-WELCOME")
	}
}

func TestDispatchRoutesCallToDealer(t *testing.T) {
	r := New("realm1")
	callee := &fakePeer{sid: 1}
	caller := &fakePeer{sid: 2}
	r.Attach(callee)
	r.Attach(caller)

	ctx := context.Background()
	_, _ = r.Dispatch(ctx, callee, &wampmsg.Register{RequestID: 1, Options: map[string]interface{}{}, Procedure: "io.echo"})
	_, _ = r.Dispatch(ctx, caller, &wampmsg.Call{RequestID: 2, Options: map[string]interface{}{}, Procedure: "io.echo"})

	if len(callee.received) != 2 {
		t.Fatalf("expected REGISTERED + INVOCATION, got %d messages", len(callee.received))
	}
	if _, ok := callee.received[1].(*wampmsg.Invocation); !ok {
		t.Fatalf("expected INVOCATION, got %T", callee.received[1])
	}
}
