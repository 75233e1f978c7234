package chainpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisVerdictCache is a VerdictCache backed by Redis, for deployments that
// run more than one gate replica. Entries are JSON values keyed by network
// and transaction hash with the TTL applied natively by Redis. Scoping keys
// by network keeps gates for different networks sharing one Redis from
// admitting each other's hashes.
type RedisVerdictCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisVerdictCache creates a Redis-backed cache for one network. A TTL
// of zero means entries never expire.
func NewRedisVerdictCache(client *redis.Client, network Network, ttl time.Duration) *RedisVerdictCache {
	return &RedisVerdictCache{
		client: client,
		ttl:    ttl,
		prefix: fmt.Sprintf("chainpass:verdict:%s:", network),
	}
}

// Get implements VerdictCache.
func (c *RedisVerdictCache) Get(ctx context.Context, txHash string) (Verdict, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+txHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return Verdict{}, false, nil
	}
	if err != nil {
		return Verdict{}, false, fmt.Errorf("redis get: %w", err)
	}

	var v Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return Verdict{}, false, fmt.Errorf("decode cached verdict: %w", err)
	}
	return v, true, nil
}

// Put implements VerdictCache. Non-accepted verdicts are dropped.
func (c *RedisVerdictCache) Put(ctx context.Context, txHash string, v Verdict) error {
	if !v.Status.Accepted() {
		return nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+txHash, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
