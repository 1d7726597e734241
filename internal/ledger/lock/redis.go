package lock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefix for ledger locks
	lockKeyPrefix = "contribgate:lock:"

	defaultTTL   = 30 * time.Second
	defaultRetry = 25 * time.Millisecond
)

// ErrNotAcquired is returned when a key stays held past the wait budget.
var ErrNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the key only while it still carries our token, so a
// lock that expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every instance using the same Redis. Locks are
// SET NX PX keys with a per-acquisition token; the TTL bounds how long a
// crashed holder can block a party.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

type RedisOption func(*Redis)

// WithTTL sets how long an unreleased lock survives.
func WithTTL(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithWait caps how long Lock waits for a held key. Zero waits until ctx is done.
func WithWait(d time.Duration) RedisOption {
	return func(r *Redis) {
		r.wait = d
	}
}

func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.retry = d
		}
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		ttl:    defaultTTL,
		retry:  defaultRetry,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Lock acquires every key in sorted order. On failure nothing stays held.
func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	if r.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.wait)
		defer cancel()
	}

	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	token := uuid.NewString()
	held := make([]string, 0, len(sorted))
	for _, k := range sorted {
		if err := r.acquire(ctx, lockKeyPrefix+k, token); err != nil {
			r.release(held, token)
			return nil, err
		}
		held = append(held, lockKeyPrefix+k)
	}
	return sync.OnceFunc(func() { r.release(held, token) }), nil
}

func (r *Redis) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
			}
			return fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// release runs detached from the caller's context so a cancelled request
// still frees its keys.
func (r *Redis) release(keys []string, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := len(keys) - 1; i >= 0; i-- {
		_ = releaseScript.Run(ctx, r.client, []string{keys[i]}, token).Err()
	}
}
