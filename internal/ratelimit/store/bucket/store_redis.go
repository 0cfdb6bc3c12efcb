package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"warden/internal/ratelimit/models"
)

const bucketKeyPrefix = "rl:bucket:"

// takeScript applies the same refill-then-debit rule as the in-memory store,
// atomically on the server. Timestamps are caller-supplied milliseconds.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'ts', 'waiting')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
local waiting = tonumber(state[3]) or 0
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end
if now > ts then
  tokens = tokens + (now - ts) / 1000 * refill
  ts = now
end
if tokens > capacity then
  tokens = capacity
end
if tokens >= capacity then
  waiting = 0
end

local allowed = 0
local retry = 0
if cost <= capacity and tokens >= cost then
  tokens = tokens - cost
  waiting = math.max(0, waiting - cost)
  allowed = 1
else
  retry = (cost + waiting - tokens) / refill
  if cost <= capacity then
    waiting = math.min(waiting + cost, capacity)
  end
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', tostring(ts), 'waiting', tostring(waiting))
redis.call('PEXPIRE', key, ttl)
return {allowed, tostring(tokens), tostring(retry)}
`)

// RedisBucketStore shares buckets across processes. Unlike the in-memory
// store it can fail; callers treat errors as infrastructure failures.
type RedisBucketStore struct {
	client  *redis.Client
	idleTTL time.Duration
}

// NewRedis constructs a Redis-backed bucket store. Keys expire after idleTTL
// without activity.
func NewRedis(client *redis.Client, idleTTL time.Duration) *RedisBucketStore {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &RedisBucketStore{client: client, idleTTL: idleTTL}
}

func (s *RedisBucketStore) Take(ctx context.Context, key string, limit models.Limit, cost int, now time.Time) (models.Result, error) {
	raw, err := takeScript.Run(ctx, s.client, []string{bucketKeyPrefix + key},
		limit.Capacity,
		strconv.FormatFloat(limit.RefillPerSecond, 'f', -1, 64),
		cost,
		now.UnixMilli(),
		s.idleTTL.Milliseconds(),
	).Slice()
	if err != nil {
		return models.Result{}, fmt.Errorf("run bucket script: %w", err)
	}
	if len(raw) != 3 {
		return models.Result{}, fmt.Errorf("bucket script returned %d values", len(raw))
	}

	allowed, _ := raw[0].(int64)
	tokens, err := parseFloat(raw[1])
	if err != nil {
		return models.Result{}, err
	}
	retry, err := parseFloat(raw[2])
	if err != nil {
		return models.Result{}, err
	}

	res := models.Result{
		Allowed:   allowed == 1,
		Remaining: tokens,
		Limit:     limit.Capacity,
	}
	if !res.Allowed {
		res.RetryAfter = time.Duration(retry * float64(time.Second))
	}
	return res, nil
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, bucketKeyPrefix+key).Err()
}

func parseFloat(v any) (float64, error) {
	str, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected bucket script value %T", v)
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("parse bucket script value: %w", err)
	}
	return f, nil
}
