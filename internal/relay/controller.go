package relay

import (
	"github.com/rigshare/rigshare/internal/hub"
	"github.com/rigshare/rigshare/internal/obs"
	"github.com/rigshare/rigshare/internal/wire"
)

// controllerBehavior relays the controller's batches to and from the
// engine and announces the controller's presence on the hub.
type controllerBehavior struct {
	engine    Engine
	hub       *hub.Hub
	port      Port
	helloSeen bool
}

func newControllerBehavior(e Engine, h *hub.Hub) *controllerBehavior {
	return &controllerBehavior{engine: e, hub: h}
}

func (b *controllerBehavior) attach(s *session) error {
	b.port = b.engine.BindController()
	go pumpPort(s, b.port)
	return nil
}

func (b *controllerBehavior) handleFrame(s *session, data []byte) {
	batch, err := wire.ParseBatch(data)
	if err != nil {
		obs.BatchesDroppedTotal.WithLabelValues(s.role.String(), "malformed").Inc()
		obs.Info("dropping malformed batch", obs.Fields{"role": s.role.String()})
		return
	}
	if !b.helloSeen && batch.ContainsHello() {
		// The marker announces the controller once per session; later
		// occurrences are relayed like any other payload.
		b.helloSeen = true
		b.hub.Publish(hub.ControllerConnected)
	}
	if err := b.port.Send(batch); err != nil {
		obs.BatchesDroppedTotal.WithLabelValues(s.role.String(), "no_peer").Inc()
		obs.Debug("batch not deliverable", obs.Fields{"role": s.role.String(), "err": err.Error()})
		return
	}
	obs.FramesRelayedTotal.WithLabelValues(s.role.String(), "in").Inc()
}

func (b *controllerBehavior) detach(s *session) {
	if b.port != nil {
		b.port.Close()
	}
	s.srv.gate.Release(s.adm)
	if s.authenticated {
		b.hub.Publish(hub.ControllerClosed)
	}
}
