// Package hub maps account identities to the live connections interested in
// their event stream and fans published events out to them.
package hub

import (
	"sync"

	"go.uber.org/zap"
)

// Subscriber is one live connection's inbox. Events are delivered through a
// buffered channel; the owning connection drains it into the transport.
type Subscriber struct {
	events chan Event
}

// NewSubscriber returns a subscriber with the given inbox capacity.
func NewSubscriber(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 256
	}
	return &Subscriber{events: make(chan Event, buffer)}
}

// Events exposes the inbox for the connection's write loop.
func (s *Subscriber) Events() <-chan Event { return s.events }

// Send offers an event to the inbox without blocking. It reports whether the
// event was accepted; a full inbox means the connection is stalled and the
// event is dropped.
func (s *Subscriber) Send(e Event) bool {
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

// Hub is the subscription registry. Many subscribers may watch one identity;
// a subscriber watches at most one identity at a time (re-subscribing moves
// it). Publish takes a snapshot of the identity's subscriber set so
// concurrent subscribe/unsubscribe never skips or duplicates a delivery
// within one publish.
type Hub struct {
	logger *zap.Logger

	mu         sync.RWMutex
	byIdentity map[string]map[*Subscriber]struct{}
	identityOf map[*Subscriber]string
}

func New(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		byIdentity: make(map[string]map[*Subscriber]struct{}),
		identityOf: make(map[*Subscriber]string),
	}
}

// Subscribe registers sub under identity. A subscriber already registered
// elsewhere is moved, not duplicated.
func (h *Hub) Subscribe(identity string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.identityOf[sub]; ok {
		h.detachLocked(prev, sub)
	}
	set, ok := h.byIdentity[identity]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.byIdentity[identity] = set
	}
	set[sub] = struct{}{}
	h.identityOf[sub] = identity
}

// Unsubscribe removes sub entirely. Safe to call for a subscriber that was
// never registered.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	identity, ok := h.identityOf[sub]
	if !ok {
		return
	}
	h.detachLocked(identity, sub)
	delete(h.identityOf, sub)
}

func (h *Hub) detachLocked(identity string, sub *Subscriber) {
	if set, ok := h.byIdentity[identity]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.byIdentity, identity)
		}
	}
}

// Publish delivers event to every subscriber currently registered under
// identity. Delivery is best-effort: a subscriber whose inbox is full (a
// stalled or half-dead connection) is skipped without affecting the rest.
// Returns the number of deliveries made.
func (h *Hub) Publish(identity string, event Event) int {
	h.mu.RLock()
	set := h.byIdentity[identity]
	snapshot := make([]*Subscriber, 0, len(set))
	for sub := range set {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range snapshot {
		if sub.Send(event) {
			delivered++
		} else {
			h.logger.Debug("subscriber inbox full, delivery skipped",
				zap.String("identity", identity),
				zap.String("event", event.Type))
		}
	}
	return delivered
}

// Subscribers reports how many connections watch identity.
func (h *Hub) Subscribers(identity string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byIdentity[identity])
}
