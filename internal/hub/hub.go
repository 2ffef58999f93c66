// Package hub is the in-process event bus that carries session
// lifecycle notifications between sessions holding no reference to one
// another.
package hub

import (
	"sync"

	"github.com/rigshare/rigshare/internal/obs"
)

// Event is a session lifecycle notification. Events carry no payload
// beyond their kind.
type Event int

const (
	// SharerClosed fires when the sharer session ends and its dependent
	// sessions are about to be force-released.
	SharerClosed Event = iota
	// ControllerConnected fires when the controller completes its
	// protocol handshake.
	ControllerConnected
	// ControllerClosed fires when an authenticated controller session
	// ends.
	ControllerClosed
)

func (e Event) String() string {
	switch e {
	case SharerClosed:
		return "sharer_closed"
	case ControllerConnected:
		return "controller_connected"
	case ControllerClosed:
		return "controller_closed"
	default:
		return "unknown"
	}
}

type subscription struct {
	id int64
	fn func() error
}

// Hub delivers events synchronously to subscribers in registration
// order. Handler errors are logged and counted, never propagated to the
// publisher.
type Hub struct {
	mu     sync.Mutex
	nextID int64
	subs   map[Event][]subscription
}

func New() *Hub {
	return &Hub{subs: make(map[Event][]subscription)}
}

// Subscribe registers a handler for an event kind and returns an id for
// Unsubscribe.
func (h *Hub) Subscribe(e Event, fn func() error) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.subs[e] = append(h.subs[e], subscription{id: h.nextID, fn: fn})
	return h.nextID
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for e, subs := range h.subs {
		for i, s := range subs {
			if s.id == id {
				h.subs[e] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish invokes the handlers registered for e at the time of the
// call, synchronously and in registration order. Handlers run outside
// the hub lock, so they may subscribe or unsubscribe; such changes take
// effect on the next publish. A failing handler does not stop delivery
// to the rest.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	snapshot := make([]subscription, len(h.subs[e]))
	copy(snapshot, h.subs[e])
	h.mu.Unlock()

	obs.EventsPublishedTotal.WithLabelValues(e.String()).Inc()
	for _, s := range snapshot {
		if err := s.fn(); err != nil {
			obs.EventDeliveryFailures.WithLabelValues(e.String()).Inc()
			obs.Error("event handler failed", obs.Fields{"event": e.String(), "err": err.Error()})
		}
	}
}
