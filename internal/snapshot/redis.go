// Package snapshot publishes read-only ledger snapshots to Redis for
// dashboards.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trogers1052/paper-trader/internal/models"
)

type redisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisPublisher stores the latest snapshot under Key with a TTL and
// announces it on the channel of the same name
type RedisPublisher struct {
	client redisClient
	key    string
	ttl    time.Duration
}

// NewRedisPublisher connects to addr and verifies the connection
func NewRedisPublisher(ctx context.Context, addr, password string, db int, key string, ttl time.Duration) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisPublisher{client: client, key: key, ttl: ttl}, nil
}

// Publish stores and announces snapshot
func (p *RedisPublisher) Publish(ctx context.Context, snapshot *models.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := p.client.Set(ctx, p.key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	if err := p.client.Publish(ctx, p.key, data).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Close releases the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
