package session

import (
	"testing"

	"github.com/tenzoki/wampcore/internal/wampmsg"
)

func TestEngineHappyPath(t *testing.T) {
	e := NewEngine()
	if e.State() != StateConnecting {
		t.Fatalf("initial state = %s", e.State())
	}
	if err := e.Advance(wampmsg.TypeHello); err != nil {
		t.Fatalf("HELLO: %v", err)
	}
	if e.State() != StateHandshaking {
		t.Fatalf("after HELLO state = %s", e.State())
	}
	if err := e.Advance(wampmsg.TypeWelcome); err != nil {
		t.Fatalf("WELCOME: %v", err)
	}
	if e.State() != StateEstablished {
		t.Fatalf("after WELCOME state = %s", e.State())
	}
	if err := e.Advance(wampmsg.TypeCall); err != nil {
		t.Fatalf("CALL: %v", err)
	}
	if e.State() != StateEstablished {
		t.Fatalf("CALL should not transition state, got %s", e.State())
	}
	if err := e.Advance(wampmsg.TypeGoodbye); err != nil {
		t.Fatalf("GOODBYE: %v", err)
	}
	if e.State() != StateClosing {
		t.Fatalf("after GOODBYE state = %s", e.State())
	}
	if err := e.Advance(wampmsg.TypeGoodbye); err != nil {
		t.Fatalf("GOODBYE reply: %v", err)
	}
	if e.State() != StateClosed {
		t.Fatalf("after GOODBYE reply state = %s", e.State())
	}
}

func TestEngineRejectsIllegalTransitions(t *testing.T) {
	e := NewEngine()
	if err := e.Advance(wampmsg.TypeCall); err == nil {
		t.Fatal("expected CALL before HELLO to be rejected")
	}

	e2 := NewEngine()
	_ = e2.Advance(wampmsg.TypeHello)
	_ = e2.Advance(wampmsg.TypeWelcome)
	if err := e2.Advance(wampmsg.TypeHello); err == nil {
		t.Fatal("expected second HELLO in ESTABLISHED to be rejected")
	}
}

func TestEngineAbortClosesFromHandshaking(t *testing.T) {
	e := NewEngine()
	_ = e.Advance(wampmsg.TypeHello)
	if err := e.Advance(wampmsg.TypeAbort); err != nil {
		t.Fatalf("ABORT: %v", err)
	}
	if e.State() != StateClosed {
		t.Fatalf("after ABORT state = %s", e.State())
	}
}

func TestForceClose(t *testing.T) {
	e := NewEngine()
	_ = e.Advance(wampmsg.TypeHello)
	_ = e.Advance(wampmsg.TypeWelcome)
	e.ForceClose()
	if e.State() != StateClosed {
		t.Fatalf("expected CLOSED after ForceClose, got %s", e.State())
	}
	if err := e.Validate(wampmsg.TypeCall); err == nil {
		t.Fatal("expected CALL rejected after force close")
	}
}
