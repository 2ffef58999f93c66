// Package presence mirrors the relay's slot occupancy into an external
// store, so operators of a fleet can see which instance currently holds
// the rig pairing. The relay itself never reads it back; the gate stays
// the only authority on occupancy.
package presence

import (
	"context"
	"time"

	"github.com/rigshare/rigshare/internal/gate"
	"github.com/rigshare/rigshare/internal/obs"
)

// Publisher records occupancy snapshots somewhere visible.
type Publisher interface {
	Publish(ctx context.Context, occ gate.Occupancy) error
	// Close removes this instance's record and releases the backend.
	Close(ctx context.Context) error
}

// NewPublisher picks the backend from configuration: a Redis mirror
// when an address is set, otherwise a no-op.
func NewPublisher(addr, password string, db int) (Publisher, error) {
	if addr == "" {
		obs.Info("presence.backend", obs.Fields{"type": "disabled"})
		return noopPublisher{}, nil
	}
	obs.Info("presence.backend", obs.Fields{"type": "redis", "addr": addr})
	return newRedisPublisher(addr, password, db)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, gate.Occupancy) error { return nil }
func (noopPublisher) Close(context.Context) error                   { return nil }

// Run publishes a snapshot immediately and then on every tick, so the
// record stays fresh within the backend's TTL. It returns when ctx is
// cancelled.
func Run(ctx context.Context, p Publisher, snapshot func() gate.Occupancy, interval time.Duration) {
	publish := func() {
		if err := p.Publish(ctx, snapshot()); err != nil {
			obs.ErrorsTotal.WithLabelValues("presence").Inc()
			obs.Error("presence publish failed", obs.Fields{"err": err.Error()})
		}
	}
	publish()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
}
