package bucket

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/ratelimit/models"
)

var testLimit = models.Limit{Capacity: 3, RefillPerSecond: 1}

type InMemoryBucketStoreSuite struct {
	suite.Suite
	store *InMemoryBucketStore
	ctx   context.Context
	t0    time.Time
}

func TestInMemoryBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryBucketStoreSuite))
}

func (s *InMemoryBucketStoreSuite) SetupTest() {
	s.store = New(WithIdleTTL(time.Minute))
	s.ctx = context.Background()
	s.t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (s *InMemoryBucketStoreSuite) take(key string, cost int, at time.Duration) models.Result {
	res, err := s.store.Take(s.ctx, key, testLimit, cost, s.t0.Add(at))
	s.Require().NoError(err)
	return res
}

func (s *InMemoryBucketStoreSuite) TestTake() {
	s.Run("new bucket starts full", func() {
		res := s.take("full", 1, 0)
		s.True(res.Allowed)
		s.Equal(3, res.Limit)
		s.InDelta(2.0, res.Remaining, 1e-9)
		s.Zero(res.RetryAfter)
	})

	s.Run("capacity exhausted then denied with retry hint", func() {
		for range 3 {
			s.True(s.take("exhaust", 1, 0).Allowed)
		}
		res := s.take("exhaust", 1, 0)
		s.False(res.Allowed)
		s.Equal(time.Second, res.RetryAfter)
	})

	s.Run("denied request debits nothing", func() {
		for range 3 {
			s.take("nodebit", 1, 0)
		}
		s.False(s.take("nodebit", 1, 500*time.Millisecond).Allowed)
		b, ok := s.store.Peek("nodebit", s.t0.Add(500*time.Millisecond))
		s.Require().True(ok)
		s.InDelta(0.5, b.Tokens, 1e-9)
	})

	s.Run("refill is capped at capacity", func() {
		s.take("cap", 1, 0)
		b, ok := s.store.Peek("cap", s.t0.Add(time.Hour))
		s.Require().True(ok)
		s.InDelta(3.0, b.Tokens, 1e-9)
	})

	s.Run("cost above capacity is denied", func() {
		res := s.take("oversize", 5, 0)
		s.False(res.Allowed)
		s.Equal(2*time.Second, res.RetryAfter)
		s.True(s.take("oversize", 3, 0).Allowed, "oversized request must not reserve budget")
	})

	s.Run("clock going backwards does not refill twice", func() {
		for range 3 {
			s.take("backwards", 1, 10*time.Second)
		}
		s.False(s.take("backwards", 1, 5*time.Second).Allowed)
		s.False(s.take("backwards", 1, 10*time.Second).Allowed)
	})
}

// Denied callers are told to retry behind those already waiting, so a later
// denial gets a longer hint even though tokens have accrued meanwhile.
func (s *InMemoryBucketStoreSuite) TestRetryHintsQueueBehindEarlierDenials() {
	for range 3 {
		s.True(s.take("queue", 1, 0).Allowed)
	}
	fourth := s.take("queue", 1, time.Second/3)
	fifth := s.take("queue", 1, 2*time.Second/3)

	s.False(fourth.Allowed)
	s.False(fifth.Allowed)
	s.InDelta(0.667, fourth.RetryAfter.Seconds(), 0.01)
	s.Greater(fifth.RetryAfter, fourth.RetryAfter)

	s.Run("waiting demand never blocks an affordable request", func() {
		s.True(s.take("queue", 1, 2*time.Second).Allowed)
	})
	s.Run("full bucket forgets stale waiters", func() {
		s.take("queue", 1, time.Hour)
		b, _ := s.store.Peek("queue", s.t0.Add(time.Hour))
		s.Zero(b.Waiting)
	})
}

func (s *InMemoryBucketStoreSuite) TestTokensStayWithinBounds() {
	rates := []time.Duration{0, 90 * time.Millisecond, 130 * time.Millisecond, 700 * time.Millisecond, 2 * time.Second}
	var (
		at      time.Duration
		allowed int
	)
	for i := range 200 {
		at += rates[i%len(rates)]
		if s.take("bounded", 1+i%2, at).Allowed {
			allowed += 1 + i%2
		}
		b, ok := s.store.Peek("bounded", s.t0.Add(at))
		s.Require().True(ok)
		s.GreaterOrEqual(b.Tokens, 0.0)
		s.LessOrEqual(b.Tokens, 3.0)
	}
	budget := float64(testLimit.Capacity) + testLimit.RefillPerSecond*at.Seconds()
	s.LessOrEqual(float64(allowed), budget)
}

func (s *InMemoryBucketStoreSuite) TestConcurrentTakeIsLinearizable() {
	const callers = 64
	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _ := s.store.Take(s.ctx, "contended", testLimit, 1, s.t0)
			if res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(testLimit.Capacity), allowed.Load())
}

func (s *InMemoryBucketStoreSuite) TestKeysAreIndependent() {
	for range 3 {
		s.take("a", 1, 0)
	}
	s.False(s.take("a", 1, 0).Allowed)
	s.True(s.take("b", 1, 0).Allowed)
}

func (s *InMemoryBucketStoreSuite) TestLimitChangeAppliesToExistingBucket() {
	s.take("resize", 1, 0)
	res, err := s.store.Take(s.ctx, "resize", models.Limit{Capacity: 1, RefillPerSecond: 1}, 1, s.t0)
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Equal(1, res.Limit)
	res, _ = s.store.Take(s.ctx, "resize", models.Limit{Capacity: 1, RefillPerSecond: 1}, 1, s.t0)
	s.False(res.Allowed)
}

func (s *InMemoryBucketStoreSuite) TestSweepAndReset() {
	s.Run("idle buckets are collected", func() {
		s.take("idle", 1, 0)
		s.take("busy", 1, 50*time.Second)
		s.Equal(1, s.store.Sweep(s.t0.Add(70*time.Second)))
		_, ok := s.store.Peek("idle", s.t0)
		s.False(ok)
		_, ok = s.store.Peek("busy", s.t0)
		s.True(ok)
	})

	s.Run("collected bucket restarts full", func() {
		res := s.take("idle", 1, 80*time.Second)
		s.True(res.Allowed)
		s.InDelta(2.0, res.Remaining, 1e-9)
	})

	s.Run("reset drops state", func() {
		for range 3 {
			s.take("reset", 1, 0)
		}
		s.Require().NoError(s.store.Reset(s.ctx, "reset"))
		s.True(s.take("reset", 1, 0).Allowed)
	})
}

func (s *InMemoryBucketStoreSuite) TestRunStopsWithContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	go func() {
		s.store.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	s.Eventually(func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}
