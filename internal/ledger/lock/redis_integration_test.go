//go:build integration

package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"contribgate/internal/ledger/lock"
	"contribgate/pkg/testutil/containers"
)

type RedisLockSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisLockSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockSuite))
}

func (s *RedisLockSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
}

func (s *RedisLockSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockSuite) TestExclusive() {
	ctx := context.Background()
	a := lock.NewRedis(s.redis.Client, lock.WithRetryInterval(5*time.Millisecond))
	b := lock.NewRedis(s.redis.Client, lock.WithWait(50*time.Millisecond))

	release, err := a.Lock(ctx, "party:alice")
	s.Require().NoError(err)

	_, err = b.Lock(ctx, "party:alice")
	s.ErrorIs(err, lock.ErrNotAcquired)

	release()
	again, err := b.Lock(ctx, "party:alice")
	s.Require().NoError(err)
	again()
}

func (s *RedisLockSuite) TestPartialAcquisitionIsReleased() {
	ctx := context.Background()
	holder := lock.NewRedis(s.redis.Client)
	batch := lock.NewRedis(s.redis.Client, lock.WithWait(50*time.Millisecond))

	hold, err := holder.Lock(ctx, "party:b")
	s.Require().NoError(err)

	_, err = batch.Lock(ctx, "party:a", "party:b")
	s.Require().Error(err)

	exists, err := s.redis.Client.Exists(ctx, "contribgate:lock:party:a").Result()
	s.Require().NoError(err)
	s.Zero(exists, "keys acquired before the failure must be released")
	hold()
}

func (s *RedisLockSuite) TestExpiredLockIsNotStolenBack() {
	ctx := context.Background()
	short := lock.NewRedis(s.redis.Client, lock.WithTTL(30*time.Millisecond))
	other := lock.NewRedis(s.redis.Client, lock.WithWait(time.Second), lock.WithRetryInterval(5*time.Millisecond))

	stale, err := short.Lock(ctx, "config")
	s.Require().NoError(err)

	fresh, err := other.Lock(ctx, "config")
	s.Require().NoError(err, "expired lock should be acquirable")

	stale()
	exists, err := s.redis.Client.Exists(ctx, "contribgate:lock:config").Result()
	s.Require().NoError(err)
	s.Equal(int64(1), exists, "stale release must not delete the new holder's key")
	fresh()
}
