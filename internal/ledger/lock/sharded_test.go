package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardedLock(t *testing.T) {
	t.Run("same key is exclusive", func(t *testing.T) {
		l := NewSharded()
		release, err := l.Lock(context.Background(), "party:a")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = l.Lock(ctx, "party:a")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		release()
		release() // second call is a no-op
		again, err := l.Lock(context.Background(), "party:a")
		require.NoError(t, err)
		again()
	})

	t.Run("multi-key lock tolerates shard collisions and duplicates", func(t *testing.T) {
		l := NewSharded()
		keys := make([]string, 0, numShards+10)
		for i := 0; i < numShards+10; i++ {
			keys = append(keys, "party:"+string(rune('a'+i%26))+time.Duration(i).String())
		}
		keys = append(keys, keys[0])

		release, err := l.Lock(context.Background(), keys...)
		require.NoError(t, err)
		release()
	})

	t.Run("failed multi-key lock holds nothing", func(t *testing.T) {
		l := NewSharded()
		hold, err := l.Lock(context.Background(), "config")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = l.Lock(ctx, "party:x", "config", "party:y")
		require.Error(t, err)
		hold()

		release, err := l.Lock(context.Background(), "party:x", "party:y")
		require.NoError(t, err)
		release()
	})

	t.Run("overlapping batches do not deadlock", func(t *testing.T) {
		l := NewSharded()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				r, err := l.Lock(context.Background(), "party:a", "party:b", "party:c")
				if assert.NoError(t, err) {
					r()
				}
			}()
			go func() {
				defer wg.Done()
				r, err := l.Lock(context.Background(), "party:c", "party:a")
				if assert.NoError(t, err) {
					r()
				}
			}()
		}
		wg.Wait()
	})
}
