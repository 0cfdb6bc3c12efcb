package signature

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// MemoryReplayCache is a bounded in-process replay cache. Expiry is judged
// against the caller's clock; the LRU's own TTL only reclaims memory.
type MemoryReplayCache struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, time.Time]
}

// NewMemoryReplayCache holds at most size entries, each for at most maxTTL
// of wall time.
func NewMemoryReplayCache(size int, maxTTL time.Duration) *MemoryReplayCache {
	if size <= 0 {
		size = 65536
	}
	return &MemoryReplayCache{cache: expirable.NewLRU[string, time.Time](size, nil, maxTTL)}
}

func (c *MemoryReplayCache) MarkSeen(_ context.Context, key string, now time.Time, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if expiresAt, ok := c.cache.Get(key); ok && now.Before(expiresAt) {
		return false, nil
	}
	c.cache.Add(key, now.Add(ttl))
	return true, nil
}

func (c *MemoryReplayCache) Len() int {
	return c.cache.Len()
}

const replayKeyPrefix = "sig:seen:"

// RedisReplayCache shares replay state across processes using SET NX PX.
// Expiry follows the server clock.
type RedisReplayCache struct {
	client *redis.Client
}

func NewRedisReplayCache(client *redis.Client) *RedisReplayCache {
	return &RedisReplayCache{client: client}
}

func (c *RedisReplayCache) MarkSeen(ctx context.Context, key string, _ time.Time, ttl time.Duration) (bool, error) {
	if c.client == nil {
		return false, errors.New("redis client is nil")
	}
	return c.client.SetNX(ctx, replayKeyPrefix+key, "1", ttl).Result()
}
