// Package broker implements the router-side pub/sub engine: the
// subscription table across three match modes, and PUBLISH fan-out with
// exclusion/eligibility filtering.
package broker

import (
	"context"
	"sync"

	"github.com/tenzoki/wampcore/internal/peer"
	"github.com/tenzoki/wampcore/internal/uri"
	"github.com/tenzoki/wampcore/internal/wampmsg"
	"github.com/tenzoki/wampcore/public/wamp"
)

// Subscription is the Broker's bookkeeping for one subscribed topic.
type Subscription struct {
	ID          uint64
	Topic       string
	Match       uri.MatchMode
	Subscribers map[uint64]bool // session ids
}

// Broker owns one realm's pub/sub state. Safe for concurrent use from
// many sessions' read loops.
type Broker struct {
	mu sync.Mutex

	subscriptions map[uint64]*Subscription
	byTopic       map[uri.MatchMode]map[string]uint64 // pattern -> subscription id

	publicationCounter  uint64
	nextSubscriptionID uint64

	peers func(sid uint64) (peer.Peer, bool)
}

// New creates an empty Broker. peers resolves a session id to its live
// Peer for event delivery.
func New(peers func(sid uint64) (peer.Peer, bool)) *Broker {
	return &Broker{
		subscriptions: make(map[uint64]*Subscription),
		byTopic:       map[uri.MatchMode]map[string]uint64{uri.MatchExact: {}, uri.MatchPrefix: {}, uri.MatchWildcard: {}},
		peers:         peers,
	}
}

// HandleSubscribe processes a SUBSCRIBE from sender.
func (b *Broker) HandleSubscribe(ctx context.Context, sender peer.Peer, msg *wampmsg.Subscribe) {
	match := matchMode(msg.Options)

	b.mu.Lock()
	subID, exists := b.byTopic[match][msg.Topic]
	var sub *Subscription
	if exists {
		sub = b.subscriptions[subID]
	} else {
		b.nextSubscriptionID++
		subID = b.nextSubscriptionID
		sub = &Subscription{ID: subID, Topic: msg.Topic, Match: match, Subscribers: make(map[uint64]bool)}
		b.subscriptions[subID] = sub
		b.byTopic[match][msg.Topic] = subID
	}
	sub.Subscribers[sender.SessionID()] = true
	b.mu.Unlock()

	_ = sender.Send(ctx, &wampmsg.Subscribed{RequestID: msg.RequestID, SubscriptionID: subID})
}

// HandleUnsubscribe processes an UNSUBSCRIBE from sender.
func (b *Broker) HandleUnsubscribe(ctx context.Context, sender peer.Peer, msg *wampmsg.Unsubscribe) {
	b.mu.Lock()
	sub, ok := b.subscriptions[msg.SubscriptionID]
	if !ok || !sub.Subscribers[sender.SessionID()] {
		b.mu.Unlock()
		_ = sender.Send(ctx, &wampmsg.Error{RequestType: wampmsg.TypeUnsubscribe, RequestID: msg.RequestID, Details: map[string]interface{}{}, URI: wamp.ErrNoSuchSubscription, Args: []interface{}{}})
		return
	}
	delete(sub.Subscribers, sender.SessionID())
	if len(sub.Subscribers) == 0 {
		delete(b.subscriptions, sub.ID)
		delete(b.byTopic[sub.Match], sub.Topic)
	}
	b.mu.Unlock()

	_ = sender.Send(ctx, &wampmsg.Unsubscribed{RequestID: msg.RequestID})
}

// HandlePublish evaluates the recipient set across all matching
// subscriptions and match modes, applies exclusion/eligibility filters,
// and emits one EVENT per surviving recipient concurrently, so one slow
// or stuck subscriber can't block delivery to the rest. If acknowledge is
// set, PUBLISHED is sent back to the publisher.
func (b *Broker) HandlePublish(ctx context.Context, sender peer.Peer, msg *wampmsg.Publish) {
	type recipient struct {
		sid   uint64
		subID uint64
	}

	b.mu.Lock()
	b.publicationCounter++
	pubID := b.publicationCounter

	var recipients []recipient
	for mode, patterns := range b.byTopic {
		for pattern, subID := range patterns {
			if uri.Match(mode, pattern, msg.Topic) {
				for sid := range b.subscriptions[subID].Subscribers {
					recipients = append(recipients, recipient{sid: sid, subID: subID})
				}
			}
		}
	}
	b.mu.Unlock()

	filter := newPublishFilter(sender, msg.Options)

	var wg sync.WaitGroup
	for _, r := range recipients {
		authid, authrole := b.peerMeta(r.sid)
		if !filter.keep(r.sid, authid, authrole) {
			continue
		}
		p, ok := b.peers(r.sid)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(p peer.Peer, subID uint64) {
			defer wg.Done()
			_ = p.Send(ctx, &wampmsg.Event{
				SubscriptionID: subID,
				PublicationID:  pubID,
				Details:        map[string]interface{}{},
				Args:           msg.Args,
				Kwargs:         msg.Kwargs,
			})
		}(p, r.subID)
	}
	wg.Wait()

	if truthy(msg.Options, "acknowledge") {
		_ = sender.Send(ctx, &wampmsg.Published{RequestID: msg.RequestID, PublicationID: pubID})
	}
}

// RemoveSession detaches a departing session from every subscription it
// held, deleting any Subscription left empty.
func (b *Broker) RemoveSession(sid uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for subID, sub := range b.subscriptions {
		if sub.Subscribers[sid] {
			delete(sub.Subscribers, sid)
			if len(sub.Subscribers) == 0 {
				delete(b.subscriptions, subID)
				delete(b.byTopic[sub.Match], sub.Topic)
			}
		}
	}
}

func (b *Broker) peerMeta(sid uint64) (authid, authrole string) {
	p, ok := b.peers(sid)
	if !ok {
		return "", ""
	}
	return p.AuthID(), p.AuthRole()
}

type publishFilter struct {
	senderSID          uint64
	excludeMe          bool
	exclude            map[uint64]bool
	excludeAuthID      map[string]bool
	excludeAuthRole    map[string]bool
	eligible           map[uint64]bool
	eligibleAuthID     map[string]bool
	eligibleAuthRole   map[string]bool
	hasEligible        bool
}

func newPublishFilter(sender peer.Peer, options map[string]interface{}) *publishFilter {
	f := &publishFilter{
		senderSID:       sender.SessionID(),
		excludeMe:       true,
		exclude:         toUint64Set(options["exclude"]),
		excludeAuthID:   toStringSet(options["exclude_authid"]),
		excludeAuthRole: toStringSet(options["exclude_authrole"]),
	}
	if v, ok := options["exclude_me"].(bool); ok {
		f.excludeMe = v
	}
	f.eligible = toUint64Set(options["eligible"])
	f.eligibleAuthID = toStringSet(options["eligible_authid"])
	f.eligibleAuthRole = toStringSet(options["eligible_authrole"])
	f.hasEligible = len(f.eligible) > 0 || len(f.eligibleAuthID) > 0 || len(f.eligibleAuthRole) > 0
	return f
}

func (f *publishFilter) keep(sid uint64, authid, authrole string) bool {
	if sid == f.senderSID && f.excludeMe {
		return false
	}
	if f.exclude[sid] || f.excludeAuthID[authid] || f.excludeAuthRole[authrole] {
		return false
	}
	if f.hasEligible {
		return f.eligible[sid] || f.eligibleAuthID[authid] || f.eligibleAuthRole[authrole]
	}
	return true
}

func toUint64Set(v interface{}) map[uint64]bool {
	out := make(map[uint64]bool)
	items, _ := v.([]interface{})
	for _, item := range items {
		switch n := item.(type) {
		case float64:
			out[uint64(n)] = true
		case int:
			out[uint64(n)] = true
		case uint64:
			out[n] = true
		}
	}
	return out
}

func toStringSet(v interface{}) map[string]bool {
	out := make(map[string]bool)
	items, _ := v.([]interface{})
	for _, item := range items {
		if s, ok := item.(string); ok {
			out[s] = true
		}
	}
	return out
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

func truthy(options map[string]interface{}, key string) bool {
	b, _ := options[key].(bool)
	return b
}
