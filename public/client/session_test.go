package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/tenzoki/wampcore/internal/config"
	"github.com/tenzoki/wampcore/internal/handshake"
	"github.com/tenzoki/wampcore/internal/router"
	"github.com/tenzoki/wampcore/internal/server"
)

func startRouter(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	r := router.New("realm1")
	s := server.New(r)
	s.Auth = handshake.AnonymousAuthenticator{}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = s.Run(ctx, []config.ListenerConfig{{Protocol: "rawsocket", Network: "tcp", Address: addr}})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("tcp", addr); err == nil {
			conn.Close()
			return addr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server never came up")
	return ""
}

func TestSessionCallRoundTrip(t *testing.T) {
	addr := startRouter(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	callee, err := Connect(ctx, "tcp", addr, Options{Realm: "realm1"})
	if err != nil {
		t.Fatalf("connect callee: %v", err)
	}
	defer callee.Close()

	caller, err := Connect(ctx, "tcp", addr, Options{Realm: "realm1"})
	if err != nil {
		t.Fatalf("connect caller: %v", err)
	}
	defer caller.Close()

	_, err = callee.Register(ctx, "io.echo", nil, func(ctx context.Context, req *InvocationRequest) (*InvocationResult, error) {
		return &InvocationResult{Args: req.Args}, nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := caller.Call(ctx, "io.echo", []interface{}{"hello"}, nil, nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(res.Args) != 1 || res.Args[0] != "hello" {
		t.Fatalf("unexpected call result: %v", res.Args)
	}
}

func TestSessionPublishSubscribe(t *testing.T) {
	addr := startRouter(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	subscriber, err := Connect(ctx, "tcp", addr, Options{Realm: "realm1"})
	if err != nil {
		t.Fatalf("connect subscriber: %v", err)
	}
	defer subscriber.Close()

	publisher, err := Connect(ctx, "tcp", addr, Options{Realm: "realm1"})
	if err != nil {
		t.Fatalf("connect publisher: %v", err)
	}
	defer publisher.Close()

	received := make(chan *Event, 1)
	if _, err := subscriber.Subscribe(ctx, "io.news", nil, func(ev *Event) {
		received <- ev
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := publisher.Publish(ctx, "io.news", []interface{}{"flash"}, nil, map[string]interface{}{"acknowledge": true}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-received:
		if len(ev.Args) != 1 || ev.Args[0] != "flash" {
			t.Fatalf("unexpected event args: %v", ev.Args)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSessionPing(t *testing.T) {
	addr := startRouter(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sess, err := Connect(ctx, "tcp", addr, Options{Realm: "realm1"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sess.Close()

	latency, err := sess.Ping(ctx, time.Second)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if latency <= 0 {
		t.Fatalf("expected positive round-trip latency, got %s", latency)
	}
}

func TestSessionCallNoSuchProcedure(t *testing.T) {
	addr := startRouter(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	caller, err := Connect(ctx, "tcp", addr, Options{Realm: "realm1"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer caller.Close()

	if _, err := caller.Call(ctx, "io.nosuch", nil, nil, nil); err == nil {
		t.Fatal("expected error calling unregistered procedure")
	}
}
