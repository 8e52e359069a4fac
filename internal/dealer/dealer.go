// Package dealer implements the router-side RPC engine: the registration
// table, invocation routing under five invocation policies, and
// CALL/YIELD/ERROR/CANCEL correlation via an in-flight invocation table.
package dealer

import (
	"context"
	"math/rand"
	"sync"

	"github.com/tenzoki/wampcore/internal/peer"
	"github.com/tenzoki/wampcore/internal/uri"
	"github.com/tenzoki/wampcore/internal/wampmsg"
	"github.com/tenzoki/wampcore/public/wamp"
)

// Policy is an invocation policy name.
type Policy string

const (
	PolicySingle     Policy = "single"
	PolicyRoundRobin Policy = "roundrobin"
	PolicyRandom     Policy = "random"
	PolicyFirst      Policy = "first"
	PolicyLast       Policy = "last"
)

// Registration is the Dealer's bookkeeping for one registered procedure.
type Registration struct {
	ID        uint64
	Procedure string
	Match     uri.MatchMode
	Policy    Policy
	Owners    []uint64 // session ids, in insertion order
}

type invocation struct {
	callerSID      uint64
	callerRID      uint64
	calleeSID      uint64
	registrationID uint64
	progress       bool
}

// Dealer owns one realm's RPC state. It is safe for concurrent use from
// many sessions' read loops.
type Dealer struct {
	mu sync.Mutex

	registrations map[uint64]*Registration
	byProcedure   map[uri.MatchMode]map[string]uint64 // pattern -> registration id
	roundRobin    map[uint64]int                      // registration id -> cursor

	invocationsInFlight map[uint64]*invocation

	peers func(sid uint64) (peer.Peer, bool)

	nextRegistrationID uint64
	nextInvocationID   uint64
}

// New creates an empty Dealer. peers resolves a session id to its live
// Peer for outbound delivery; the realm supplies this from its attached
// session set.
func New(peers func(sid uint64) (peer.Peer, bool)) *Dealer {
	return &Dealer{
		registrations:       make(map[uint64]*Registration),
		byProcedure:         map[uri.MatchMode]map[string]uint64{uri.MatchExact: {}, uri.MatchPrefix: {}, uri.MatchWildcard: {}},
		roundRobin:          make(map[uint64]int),
		invocationsInFlight: make(map[uint64]*invocation),
		peers:               peers,
	}
}

// HandleRegister processes a REGISTER from sender.
func (d *Dealer) HandleRegister(ctx context.Context, sender peer.Peer, msg *wampmsg.Register) {
	match := matchMode(msg.Options)
	policy := invocationPolicy(msg.Options)

	d.mu.Lock()
	regID, exists := d.byProcedure[match][msg.Procedure]
	if exists {
		reg := d.registrations[regID]
		if reg.Policy == PolicySingle || policy == PolicySingle {
			d.mu.Unlock()
			d.sendError(ctx, sender, wampmsg.TypeRegister, msg.RequestID, wamp.ErrProcedureAlreadyExist)
			return
		}
		reg.Owners = append(reg.Owners, sender.SessionID())
		d.mu.Unlock()
		d.send(ctx, sender, &wampmsg.Registered{RequestID: msg.RequestID, RegistrationID: regID})
		return
	}

	d.nextRegistrationID++
	regID = d.nextRegistrationID
	d.registrations[regID] = &Registration{
		ID:        regID,
		Procedure: msg.Procedure,
		Match:     match,
		Policy:    policy,
		Owners:    []uint64{sender.SessionID()},
	}
	d.byProcedure[match][msg.Procedure] = regID
	d.mu.Unlock()

	d.send(ctx, sender, &wampmsg.Registered{RequestID: msg.RequestID, RegistrationID: regID})
}

// HandleUnregister processes an UNREGISTER from sender.
func (d *Dealer) HandleUnregister(ctx context.Context, sender peer.Peer, msg *wampmsg.Unregister) {
	d.mu.Lock()
	reg, ok := d.registrations[msg.RegistrationID]
	if !ok || !removeOwner(reg, sender.SessionID()) {
		d.mu.Unlock()
		d.sendError(ctx, sender, wampmsg.TypeUnregister, msg.RequestID, wamp.ErrNoSuchRegistration)
		return
	}
	if len(reg.Owners) == 0 {
		delete(d.registrations, reg.ID)
		delete(d.byProcedure[reg.Match], reg.Procedure)
		delete(d.roundRobin, reg.ID)
	}
	d.mu.Unlock()

	d.send(ctx, sender, &wampmsg.Unregistered{RequestID: msg.RequestID})
}

// HandleCall resolves procedure, picks a callee under its registration's
// policy, and dispatches an INVOCATION.
func (d *Dealer) HandleCall(ctx context.Context, caller peer.Peer, msg *wampmsg.Call) {
	d.mu.Lock()
	reg := d.resolveLocked(msg.Procedure)
	if reg == nil {
		d.mu.Unlock()
		d.sendError(ctx, caller, wampmsg.TypeCall, msg.RequestID, wamp.ErrNoSuchProcedure)
		return
	}
	calleeSID := d.pickCalleeLocked(reg)

	d.nextInvocationID++
	invID := d.nextInvocationID
	d.invocationsInFlight[invID] = &invocation{
		callerSID:      caller.SessionID(),
		callerRID:      msg.RequestID,
		calleeSID:      calleeSID,
		registrationID: reg.ID,
		progress:       truthy(msg.Options, "receive_progress"),
	}
	d.mu.Unlock()

	callee, ok := d.peers(calleeSID)
	if !ok {
		d.mu.Lock()
		delete(d.invocationsInFlight, invID)
		d.mu.Unlock()
		d.sendError(ctx, caller, wampmsg.TypeCall, msg.RequestID, wamp.ErrNoSuchProcedure)
		return
	}

	details := map[string]interface{}{}
	if truthy(msg.Options, "disclose_me") {
		details["caller"] = caller.SessionID()
		details["caller_authid"] = caller.AuthID()
		details["caller_authrole"] = caller.AuthRole()
	}
	if truthy(msg.Options, "receive_progress") {
		details["receive_progress"] = true
	}

	d.send(ctx, callee, &wampmsg.Invocation{
		RequestID:      invID,
		RegistrationID: reg.ID,
		Details:        details,
		Args:           msg.Args,
		Kwargs:         msg.Kwargs,
	})
}

// HandleYield forwards a callee's YIELD to the waiting caller as RESULT.
func (d *Dealer) HandleYield(ctx context.Context, callee peer.Peer, msg *wampmsg.Yield) {
	d.mu.Lock()
	inv, ok := d.invocationsInFlight[msg.RequestID]
	if !ok {
		d.mu.Unlock()
		return
	}
	final := !wampmsg.Progress(msg.Options)
	if final {
		delete(d.invocationsInFlight, msg.RequestID)
	}
	d.mu.Unlock()

	caller, ok := d.peers(inv.callerSID)
	if !ok {
		return
	}
	details := map[string]interface{}{}
	if !final {
		details["progress"] = true
	}
	d.send(ctx, caller, &wampmsg.Result{RequestID: inv.callerRID, Details: details, Args: msg.Args, Kwargs: msg.Kwargs})
}

// HandleInvocationError forwards an ERROR whose request type is
// Invocation from the callee to the caller as ERROR(Call, ...).
func (d *Dealer) HandleInvocationError(ctx context.Context, callee peer.Peer, msg *wampmsg.Error) {
	d.mu.Lock()
	inv, ok := d.invocationsInFlight[msg.RequestID]
	if ok {
		delete(d.invocationsInFlight, msg.RequestID)
	}
	d.mu.Unlock()
	if !ok {
		return
	}

	caller, ok := d.peers(inv.callerSID)
	if !ok {
		return
	}
	d.send(ctx, caller, &wampmsg.Error{
		RequestType: wampmsg.TypeCall,
		RequestID:   inv.callerRID,
		Details:     msg.Details,
		URI:         msg.URI,
		Args:        msg.Args,
		Kwargs:      msg.Kwargs,
	})
}

// HandleCancel forwards CANCEL as INTERRUPT to the callee and, for
// kill/killnowait modes, eagerly resolves the caller with a canceled
// error.
func (d *Dealer) HandleCancel(ctx context.Context, caller peer.Peer, msg *wampmsg.Cancel) {
	d.mu.Lock()
	var invID uint64
	var inv *invocation
	for id, candidate := range d.invocationsInFlight {
		if candidate.callerSID == caller.SessionID() && candidate.callerRID == msg.RequestID {
			invID, inv = id, candidate
			break
		}
	}
	mode, _ := msg.Options["mode"].(string)
	if mode == "" {
		mode = string(wampmsg.CancelSkip)
	}
	if inv != nil && mode != string(wampmsg.CancelSkip) {
		delete(d.invocationsInFlight, invID)
	}
	d.mu.Unlock()

	if inv == nil {
		return
	}

	if callee, ok := d.peers(inv.calleeSID); ok {
		d.send(ctx, callee, &wampmsg.Interrupt{RequestID: invID, Options: map[string]interface{}{"mode": mode}})
	}

	if mode == string(wampmsg.CancelKill) || mode == string(wampmsg.CancelKillNoWait) {
		d.sendError(ctx, caller, wampmsg.TypeCall, msg.RequestID, wamp.ErrCanceled)
	}
}

// RemoveSession detaches a departing session: its registrations are
// dropped (deleting any Registration left without owners), and any
// invocation it was party to is resolved with a canceled error to the
// caller (if it was the callee) or simply dropped (if it was the caller).
func (d *Dealer) RemoveSession(ctx context.Context, sid uint64) {
	d.mu.Lock()
	for regID, reg := range d.registrations {
		if removeOwner(reg, sid) && len(reg.Owners) == 0 {
			delete(d.registrations, regID)
			delete(d.byProcedure[reg.Match], reg.Procedure)
			delete(d.roundRobin, regID)
		}
	}

	var toCancel []*invocation
	for invID, inv := range d.invocationsInFlight {
		if inv.calleeSID == sid {
			toCancel = append(toCancel, inv)
			delete(d.invocationsInFlight, invID)
		} else if inv.callerSID == sid {
			delete(d.invocationsInFlight, invID)
		}
	}
	d.mu.Unlock()

	for _, inv := range toCancel {
		if caller, ok := d.peers(inv.callerSID); ok {
			d.sendError(ctx, caller, wampmsg.TypeCall, inv.callerRID, wamp.ErrCanceled)
		}
	}
}

// resolveLocked finds the Registration matching procedure, preferring
// exact over prefix over wildcard. Caller must hold d.mu.
func (d *Dealer) resolveLocked(procedure string) *Registration {
	for _, mode := range []uri.MatchMode{uri.MatchExact, uri.MatchPrefix, uri.MatchWildcard} {
		if mode == uri.MatchExact {
			if id, ok := d.byProcedure[mode][procedure]; ok {
				return d.registrations[id]
			}
			continue
		}
		for pattern, id := range d.byProcedure[mode] {
			if uri.Match(mode, pattern, procedure) {
				return d.registrations[id]
			}
		}
	}
	return nil
}

// pickCalleeLocked selects an owner under reg's policy. Caller must hold d.mu.
func (d *Dealer) pickCalleeLocked(reg *Registration) uint64 {
	switch reg.Policy {
	case PolicyFirst, PolicySingle:
		return reg.Owners[0]
	case PolicyLast:
		return reg.Owners[len(reg.Owners)-1]
	case PolicyRoundRobin:
		cursor := d.roundRobin[reg.ID]
		sid := reg.Owners[cursor%len(reg.Owners)]
		d.roundRobin[reg.ID] = cursor + 1
		return sid
	case PolicyRandom:
		return reg.Owners[rand.Intn(len(reg.Owners))]
	default:
		return reg.Owners[0]
	}
}

func (d *Dealer) send(ctx context.Context, p peer.Peer, msg wampmsg.Message) {
	_ = p.Send(ctx, msg)
}

func (d *Dealer) sendError(ctx context.Context, p peer.Peer, requestType wampmsg.Type, requestID uint64, uri string) {
	d.send(ctx, p, &wampmsg.Error{RequestType: requestType, RequestID: requestID, Details: map[string]interface{}{}, URI: uri, Args: []interface{}{}})
}

func removeOwner(reg *Registration, sid uint64) bool {
	for i, owner := range reg.Owners {
		if owner == sid {
			reg.Owners = append(reg.Owners[:i], reg.Owners[i+1:]...)
			return true
		}
	}
	return false
}

func matchMode(options map[string]interface{}) uri.MatchMode {
	m, _ := options["match"].(string)
	switch m {
	case string(uri.MatchPrefix):
		return uri.MatchPrefix
	case string(uri.MatchWildcard):
		return uri.MatchWildcard
	default:
		return uri.MatchExact
	}
}

func invocationPolicy(options map[string]interface{}) Policy {
	p, _ := options["invoke"].(string)
	switch Policy(p) {
	case PolicyRoundRobin, PolicyRandom, PolicyFirst, PolicyLast:
		return Policy(p)
	default:
		return PolicySingle
	}
}

func truthy(options map[string]interface{}, key string) bool {
	b, _ := options[key].(bool)
	return b
}
