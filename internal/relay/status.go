package relay

import (
	"fmt"
	"sync"

	"github.com/rigshare/rigshare/internal/hub"
	"github.com/rigshare/rigshare/internal/obs"
	"github.com/rigshare/rigshare/internal/wire"
)

// statusBehavior turns controller lifecycle events into notification
// frames for the status transport. It never relays protocol traffic.
type statusBehavior struct {
	hub  *hub.Hub
	mu   sync.Mutex
	subs []int64
}

func newStatusBehavior(h *hub.Hub) *statusBehavior {
	return &statusBehavior{hub: h}
}

func (b *statusBehavior) attach(s *session) error {
	// Holding b.mu across registration: the sharer-closed handler can
	// fire from another goroutine the moment it is registered, and its
	// teardown path must see every id.
	b.mu.Lock()
	b.subs = append(b.subs,
		b.hub.Subscribe(hub.ControllerConnected, func() error {
			return b.notify(s, wire.StatusConnect)
		}),
		b.hub.Subscribe(hub.ControllerClosed, func() error {
			return b.notify(s, wire.StatusDisconnect)
		}),
		b.hub.Subscribe(hub.SharerClosed, func() error {
			s.teardown()
			return nil
		}),
	)
	b.mu.Unlock()
	return nil
}

// notify enqueues a status frame without blocking the publisher; a full
// queue drops the frame and surfaces as a handler failure.
func (b *statusBehavior) notify(s *session, kind string) error {
	if !s.trySend(wire.EncodeStatus(kind)) {
		obs.BatchesDroppedTotal.WithLabelValues(s.role.String(), "queue_full").Inc()
		return fmt.Errorf("status %s frame dropped", kind)
	}
	obs.StatusFramesSentTotal.WithLabelValues(kind).Inc()
	return nil
}

func (b *statusBehavior) handleFrame(s *session, data []byte) {
	// Nothing is expected from the status side after authentication.
	obs.Debug("ignoring inbound status frame", obs.Fields{"bytes": len(data)})
}

func (b *statusBehavior) detach(s *session) {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, id := range subs {
		b.hub.Unsubscribe(id)
	}
	s.srv.gate.Release(s.adm)
}
