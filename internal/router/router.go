// Package router implements the multi-realm dispatcher: it owns every
// configured Realm and attaches/detaches sessions to the realm named in
// their SessionDetails.
package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/tenzoki/wampcore/internal/peer"
	"github.com/tenzoki/wampcore/internal/realm"
	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// Router owns every realm known to this process.
type Router struct {
	mu     sync.RWMutex
	realms map[string]*realm.Realm
}

// New creates a Router with the given realm names pre-created, mirroring
// a static realm list from configuration.
func New(realmNames ...string) *Router {
	r := &Router{realms: make(map[string]*realm.Realm)}
	for _, name := range realmNames {
		r.realms[name] = realm.New(name)
	}
	return r
}

// HasRealm reports whether name is a known realm; used by the acceptor's
// RealmLookup hook during the handshake.
func (r *Router) HasRealm(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.realms[name]
	return ok
}

// Realm returns the named realm, or nil if it is not configured.
func (r *Router) Realm(name string) *realm.Realm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.realms[name]
}

// AddRealm registers a new realm at runtime (e.g. from a config reload).
func (r *Router) AddRealm(name string) *realm.Realm {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.realms[name]; ok {
		return existing
	}
	rm := realm.New(name)
	r.realms[name] = rm
	return rm
}

// AttachClient attaches p to the realm named realmName. Fails if the
// realm does not exist.
func (r *Router) AttachClient(realmName string, p peer.Peer) error {
	rm := r.Realm(realmName)
	if rm == nil {
		return fmt.Errorf("router: no such realm %q", realmName)
	}
	rm.Attach(p)
	return nil
}

// DetachClient reverses AttachClient, unwinding the session's Dealer/
// Broker state in its realm.
func (r *Router) DetachClient(ctx context.Context, realmName string, sid uint64) {
	if rm := r.Realm(realmName); rm != nil {
		rm.Detach(ctx, sid)
	}
}

// ReceiveMessage forwards msg to the realm the sending peer belongs to.
func (r *Router) ReceiveMessage(ctx context.Context, realmName string, sender peer.Peer, msg wampmsg.Message) (closeSession bool, err error) {
	rm := r.Realm(realmName)
	if rm == nil {
		return true, fmt.Errorf("router: no such realm %q", realmName)
	}
	return rm.Dispatch(ctx, sender, msg)
}

// Shutdown detaches the sessions listed in sids (realm name -> session ids)
// from their realms. Sessions not listed stay attached; unknown realm names
// are skipped.
func (r *Router) Shutdown(ctx context.Context, sids map[string][]uint64) {
	for realmName, ids := range sids {
		rm := r.Realm(realmName)
		if rm == nil {
			continue
		}
		for _, sid := range ids {
			rm.Detach(ctx, sid)
		}
	}
}
