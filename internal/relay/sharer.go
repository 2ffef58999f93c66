package relay

import (
	"github.com/rigshare/rigshare/internal/obs"
	"github.com/rigshare/rigshare/internal/wire"
)

// sharerBehavior forwards the sharer's batches into the engine and the
// engine's output back to the sharer. Its departure releases the whole
// pairing: the gate cascades over the status and controller slots.
type sharerBehavior struct {
	engine Engine
	port   Port
}

func newSharerBehavior(e Engine) *sharerBehavior {
	return &sharerBehavior{engine: e}
}

func (b *sharerBehavior) attach(s *session) error {
	b.port = b.engine.BindSharer()
	go pumpPort(s, b.port)
	return nil
}

func (b *sharerBehavior) handleFrame(s *session, data []byte) {
	batch, err := wire.ParseBatch(data)
	if err != nil {
		obs.BatchesDroppedTotal.WithLabelValues(s.role.String(), "malformed").Inc()
		obs.Info("dropping malformed batch", obs.Fields{"role": s.role.String()})
		return
	}
	if err := b.port.Send(batch); err != nil {
		obs.BatchesDroppedTotal.WithLabelValues(s.role.String(), "no_peer").Inc()
		obs.Debug("batch not deliverable", obs.Fields{"role": s.role.String(), "err": err.Error()})
		return
	}
	obs.FramesRelayedTotal.WithLabelValues(s.role.String(), "in").Inc()
}

func (b *sharerBehavior) detach(s *session) {
	if b.port != nil {
		b.port.Close()
	}
	s.srv.gate.Release(s.adm)
}
