// Package client provides the application-facing WAMP Session: call,
// register, publish, subscribe, and the handler types those operations
// exchange data through. It wraps the sans-I/O session/handshake layers
// with one background listener goroutine, a request-ID-to-waiter
// correlation table, and thin public methods that marshal into that
// table.
package client

import "context"

// InvocationRequest is handed to a registered procedure's Handler for one
// incoming CALL.
type InvocationRequest struct {
	Procedure string
	Args      []interface{}
	Kwargs    map[string]interface{}
	Details   map[string]interface{}
}

// InvocationResult is what a Handler returns on success; it becomes the
// YIELD sent back to the Dealer.
type InvocationResult struct {
	Args   []interface{}
	Kwargs map[string]interface{}
}

// Handler implements one registered procedure. Returning an error produces
// an ERROR reply to the caller: a *wamp.ApplicationError controls the
// exact URI/Args/Kwargs, any other error maps to wamp.ErrRuntimeError with
// the error text as the sole argument.
type Handler func(ctx context.Context, req *InvocationRequest) (*InvocationResult, error)

// Event is delivered to a topic's EventHandler for one incoming EVENT.
type Event struct {
	Topic   string
	Args    []interface{}
	Kwargs  map[string]interface{}
	Details map[string]interface{}
}

// EventHandler consumes one Event. It runs on the session's dispatch
// goroutine; handlers that block delay delivery of subsequent events and
// invocations and should hand off to their own goroutine if they need to
// do real work.
type EventHandler func(ev *Event)

// CallResult is the outcome of a successful Call.
type CallResult struct {
	Args    []interface{}
	Kwargs  map[string]interface{}
	Details map[string]interface{}
}

// Registration is the client-side handle for one REGISTERed procedure.
type Registration struct {
	ID        uint64
	Procedure string
	session   *Session
}

// Unregister sends UNREGISTER for this registration and removes its local
// handler once UNREGISTERED arrives.
func (r *Registration) Unregister(ctx context.Context) error {
	return r.session.Unregister(ctx, r)
}

// Subscription is the client-side handle for one SUBSCRIBEd topic.
type Subscription struct {
	ID      uint64
	Topic   string
	session *Session
}

// Unsubscribe sends UNSUBSCRIBE for this subscription and removes its
// local handler once UNSUBSCRIBED arrives.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	return s.session.Unsubscribe(ctx, s)
}
