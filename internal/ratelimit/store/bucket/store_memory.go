package bucket

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"

	"warden/internal/ratelimit/models"
)

// InMemoryBucketStore keeps one token bucket per key in a sharded concurrent
// map. Each bucket has its own mutex, so checks on distinct keys never contend.
type InMemoryBucketStore struct {
	buckets *xsync.MapOf[string, *bucketEntry]
	idleTTL time.Duration
}

type bucketEntry struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	limit    models.Limit
	waiting  float64
	lastSeen time.Time
	// evicted is set under mu when the sweeper removes the entry; a caller
	// holding a stale pointer must look the key up again.
	evicted bool
}

type Option func(*InMemoryBucketStore)

// WithIdleTTL sets how long a bucket may go unused before Sweep drops it.
func WithIdleTTL(d time.Duration) Option {
	return func(s *InMemoryBucketStore) {
		if d > 0 {
			s.idleTTL = d
		}
	}
}

// New creates a new in-memory bucket store.
func New(opts ...Option) *InMemoryBucketStore {
	s := &InMemoryBucketStore{
		buckets: xsync.NewMapOf[string, *bucketEntry](),
		idleTTL: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Take refills the bucket for key up to now and debits cost if enough tokens
// are available. A denied request debits nothing. The in-memory store never
// returns an error.
func (s *InMemoryBucketStore) Take(_ context.Context, key string, limit models.Limit, cost int, now time.Time) (models.Result, error) {
	for {
		e, _ := s.buckets.LoadOrCompute(key, func() *bucketEntry {
			return &bucketEntry{
				limiter: rate.NewLimiter(rate.Limit(limit.RefillPerSecond), limit.Capacity),
				limit:   limit,
			}
		})
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		res := e.take(limit, cost, now)
		e.mu.Unlock()
		return res, nil
	}
}

// Must be called while holding e.mu.
func (e *bucketEntry) take(limit models.Limit, cost int, now time.Time) models.Result {
	// Clock readings from concurrent callers may arrive out of order; refill
	// never runs backwards.
	if now.Before(e.lastSeen) {
		now = e.lastSeen
	}
	e.lastSeen = now
	if e.limit != limit {
		e.limiter.SetLimitAt(now, rate.Limit(limit.RefillPerSecond))
		e.limiter.SetBurstAt(now, limit.Capacity)
		e.limit = limit
	}

	available := e.limiter.TokensAt(now)
	if available >= float64(limit.Capacity) {
		e.waiting = 0
	}

	c := float64(cost)
	if cost <= limit.Capacity && e.limiter.AllowN(now, cost) {
		e.waiting = max(0, e.waiting-c)
		return models.Result{
			Allowed:   true,
			Remaining: e.limiter.TokensAt(now),
			Limit:     limit.Capacity,
		}
	}

	res := models.Result{
		Allowed:    false,
		RetryAfter: limit.WaitFor(c + e.waiting - available),
		Remaining:  available,
		Limit:      limit.Capacity,
	}
	// Oversized requests can never succeed, so they do not queue behind others.
	if cost <= limit.Capacity {
		e.waiting = min(e.waiting+c, float64(limit.Capacity))
	}
	return res
}

// Peek returns the state of key as of now without debiting anything.
func (s *InMemoryBucketStore) Peek(key string, now time.Time) (models.Bucket, bool) {
	e, ok := s.buckets.Load(key)
	if !ok {
		return models.Bucket{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return models.Bucket{}, false
	}
	return models.Bucket{
		Tokens:          e.limiter.TokensAt(now),
		Capacity:        e.limit.Capacity,
		RefillPerSecond: e.limit.RefillPerSecond,
		LastRefill:      e.lastSeen,
		Waiting:         e.waiting,
	}, true
}

// Reset drops the bucket for key; the next check starts full.
func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	if e, ok := s.buckets.LoadAndDelete(key); ok {
		e.mu.Lock()
		e.evicted = true
		e.mu.Unlock()
	}
	return nil
}

// Sweep removes buckets idle for at least the idle TTL and returns how many
// were dropped.
func (s *InMemoryBucketStore) Sweep(now time.Time) int {
	dropped := 0
	s.buckets.Range(func(key string, e *bucketEntry) bool {
		e.mu.Lock()
		if !e.evicted && now.Sub(e.lastSeen) >= s.idleTTL {
			e.evicted = true
			s.buckets.Delete(key)
			dropped++
		}
		e.mu.Unlock()
		return true
	})
	return dropped
}

// Run sweeps idle buckets every interval until ctx is done.
func (s *InMemoryBucketStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// Len returns the number of live buckets.
func (s *InMemoryBucketStore) Len() int {
	return s.buckets.Size()
}
