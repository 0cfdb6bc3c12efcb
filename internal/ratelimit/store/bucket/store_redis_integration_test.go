//go:build integration

package bucket_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/ratelimit/models"
	"warden/internal/ratelimit/store/bucket"
	"warden/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *bucket.RedisBucketStore
	t0    time.Time
}

func TestRedisBucketStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = bucket.NewRedis(s.redis.Client, time.Minute)
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.t0 = time.Now().Truncate(time.Second)
}

// The Lua script must agree with the in-memory store on every decision.
func (s *RedisBucketStoreSuite) TestMatchesInMemorySemantics() {
	ctx := context.Background()
	limit := models.Limit{Capacity: 3, RefillPerSecond: 1}
	mem := bucket.New()

	steps := []struct {
		at   time.Duration
		cost int
	}{
		{0, 1}, {0, 1}, {0, 1},
		{time.Second / 3, 1},
		{2 * time.Second / 3, 1},
		{2 * time.Second, 1},
		{2 * time.Second, 5},
		{10 * time.Second, 3},
	}
	for i, step := range steps {
		now := s.t0.Add(step.at)
		want, _ := mem.Take(ctx, "k", limit, step.cost, now)
		got, err := s.store.Take(ctx, "k", limit, step.cost, now)
		s.Require().NoError(err)
		s.Equal(want.Allowed, got.Allowed, "step %d", i)
		s.InDelta(want.Remaining, got.Remaining, 0.01, "step %d", i)
		s.InDelta(want.RetryAfter.Seconds(), got.RetryAfter.Seconds(), 0.01, "step %d", i)
	}
}

func (s *RedisBucketStoreSuite) TestConcurrentTakeIsLinearizable() {
	ctx := context.Background()
	limit := models.Limit{Capacity: 5, RefillPerSecond: 0.001}
	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.store.Take(ctx, "contended", limit, 1, s.t0)
			s.NoError(err)
			if res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(5), allowed.Load())
}

func (s *RedisBucketStoreSuite) TestKeysExpireWhenIdle() {
	ctx := context.Background()
	_, err := s.store.Take(ctx, "ttl", models.Limit{Capacity: 1, RefillPerSecond: 1}, 1, s.t0)
	s.Require().NoError(err)

	ttl, err := s.redis.Client.PTTL(ctx, "rl:bucket:ttl").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)

	s.Require().NoError(s.store.Reset(ctx, "ttl"))
	n, err := s.redis.Client.Exists(ctx, "rl:bucket:ttl").Result()
	s.Require().NoError(err)
	s.Zero(n)
}
