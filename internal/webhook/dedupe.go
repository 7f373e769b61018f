package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupeTTL bounds how long a delivery claim suppresses redeliveries.
const DefaultDedupeTTL = 10 * time.Minute

// Deduper suppresses concurrent redeliveries of the same event before they
// reach the activity API. The storage uniqueness constraint remains the
// correctness guarantee.
type Deduper interface {
	Claim(ctx context.Context, key, deliveryID string) (bool, error)
	Release(ctx context.Context, key string) error
}

// NoopDeduper claims every delivery.
type NoopDeduper struct{}

// Claim implements Deduper.
func (NoopDeduper) Claim(context.Context, string, string) (bool, error) { return true, nil }

// Release implements Deduper.
func (NoopDeduper) Release(context.Context, string) error { return nil }

// RedisClaimer is the subset of redis.Cmdable used for claims.
type RedisClaimer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisDeduper claims keys with SET NX and a TTL.
type RedisDeduper struct {
	client RedisClaimer
	ttl    time.Duration
}

// NewRedisDeduper constructs a RedisDeduper. A non-positive ttl selects
// DefaultDedupeTTL.
func NewRedisDeduper(client RedisClaimer, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

// Claim implements Deduper.
func (d *RedisDeduper) Claim(ctx context.Context, key, deliveryID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, key, deliveryID, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Release implements Deduper.
func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
