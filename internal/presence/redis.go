package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rigshare/rigshare/internal/gate"
	"github.com/rigshare/rigshare/internal/obs"
)

// record is the JSON form stored in Redis.
type record struct {
	Instance  string         `json:"instance"`
	Occupancy gate.Occupancy `json:"occupancy"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// redisPublisher writes one key per relay instance. The key carries a
// TTL a few heartbeats long, so a crashed instance disappears from the
// mirror on its own.
type redisPublisher struct {
	client     *redis.Client
	instanceID string
	keyTTL     time.Duration
}

func newRedisPublisher(addr, password string, db int) (*redisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &redisPublisher{
		client:     rdb,
		instanceID: fmt.Sprintf("rigshare-%d", time.Now().UnixNano()),
		keyTTL:     90 * time.Second,
	}, nil
}

func (p *redisPublisher) key() string { return "rigshare:presence:" + p.instanceID }

func (p *redisPublisher) Publish(ctx context.Context, occ gate.Occupancy) error {
	data, err := json.Marshal(record{Instance: p.instanceID, Occupancy: occ, UpdatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal presence record: %w", err)
	}
	if err := p.client.Set(ctx, p.key(), data, p.keyTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (p *redisPublisher) Close(ctx context.Context) error {
	if err := p.client.Del(ctx, p.key()).Err(); err != nil {
		obs.Error("presence cleanup failed", obs.Fields{"err": err.Error()})
	}
	return p.client.Close()
}
