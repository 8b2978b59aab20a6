package connection

import (
	"sync/atomic"

	"github.com/sadnxai/chatlink/internal/protocol"
)

// subscriber is one registered callback. active is cleared on unsubscribe or
// registry reset; the dispatcher checks it before every call, so deliveries
// already queued for a removed subscriber are skipped.
type subscriber struct {
	eventType protocol.InboundType
	handler   Handler
	state     StateHandler
	active    atomic.Bool
}

func newSubscriber(s Subscription) *subscriber {
	sub := &subscriber{eventType: s.eventType, handler: s.handler, state: s.state}
	sub.active.Store(true)
	return sub
}

// registry holds event and state subscribers in registration order.
// Owned by the manager goroutine.
type registry struct {
	byType map[protocol.InboundType][]*subscriber
	state  []*subscriber
}

func newRegistry() *registry {
	return &registry{byType: make(map[protocol.InboundType][]*subscriber)}
}

func (r *registry) add(sub *subscriber) {
	if !sub.active.Load() {
		return // unsubscribed before registration ran
	}
	if sub.state != nil {
		r.state = append(r.state, sub)
		return
	}
	r.byType[sub.eventType] = append(r.byType[sub.eventType], sub)
}

func (r *registry) remove(sub *subscriber) {
	sub.active.Store(false)
	if sub.state != nil {
		r.state = without(r.state, sub)
		return
	}
	subs := without(r.byType[sub.eventType], sub)
	if len(subs) == 0 {
		delete(r.byType, sub.eventType)
		return
	}
	r.byType[sub.eventType] = subs
}

// match returns the subscribers for t followed by the wildcard subscribers.
func (r *registry) match(t protocol.InboundType) []*subscriber {
	typed := r.byType[t]
	wild := r.byType[protocol.Wildcard]
	if t == protocol.Wildcard {
		wild = nil
	}
	out := make([]*subscriber, 0, len(typed)+len(wild))
	out = append(out, typed...)
	return append(out, wild...)
}

func (r *registry) stateSubscribers() []*subscriber {
	return append([]*subscriber(nil), r.state...)
}

// reset deactivates and drops every subscriber.
func (r *registry) reset() {
	for _, subs := range r.byType {
		for _, sub := range subs {
			sub.active.Store(false)
		}
	}
	for _, sub := range r.state {
		sub.active.Store(false)
	}
	r.byType = make(map[protocol.InboundType][]*subscriber)
	r.state = nil
}

func (r *registry) len() int {
	n := len(r.state)
	for _, subs := range r.byType {
		n += len(subs)
	}
	return n
}

func without(subs []*subscriber, target *subscriber) []*subscriber {
	out := subs[:0:0]
	for _, s := range subs {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
