//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	ratelimitredis "contribgate/internal/ratelimit/store/redis"
	"contribgate/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *ratelimitredis.Store
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = ratelimitredis.New(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestLimitIsShared() {
	ctx := context.Background()
	other := ratelimitredis.New(s.redis.Client)

	for range 3 {
		result, err := s.store.AllowN(ctx, "caller:write:0xabc", 1, 5, time.Minute)
		s.Require().NoError(err)
		s.True(result.Allowed)
	}
	result, err := other.AllowN(ctx, "caller:write:0xabc", 2, 5, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Zero(result.Remaining)

	result, err = s.store.AllowN(ctx, "caller:write:0xabc", 1, 5, time.Minute)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.True(result.ResetAt.After(time.Now()))
}

func (s *RedisStoreSuite) TestWindowExpires() {
	ctx := context.Background()
	window := 200 * time.Millisecond

	result, err := s.store.AllowN(ctx, "ip:read:10.0.0.1", 1, 1, window)
	s.Require().NoError(err)
	s.True(result.Allowed)

	result, err = s.store.AllowN(ctx, "ip:read:10.0.0.1", 1, 1, window)
	s.Require().NoError(err)
	s.False(result.Allowed)

	s.Eventually(func() bool {
		r, err := s.store.AllowN(ctx, "ip:read:10.0.0.1", 1, 1, window)
		return err == nil && r.Allowed
	}, 2*time.Second, 50*time.Millisecond)
}

func (s *RedisStoreSuite) TestReset() {
	ctx := context.Background()
	_, err := s.store.AllowN(ctx, "k", 1, 1, time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reset(ctx, "k"))

	result, err := s.store.AllowN(ctx, "k", 1, 1, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed)
}
