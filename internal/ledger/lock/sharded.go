// Package lock provides exclusive locks on ledger keys (a party address or
// the campaign configuration).
package lock

import (
	"context"
	"slices"
	"sync"
)

// numShards spreads keys across independent locks so unrelated parties
// rarely contend.
const numShards = 128

// Sharded is an in-process Locker. Keys hash to one of numShards slots with
// FNV-1a; two keys sharing a slot serialize, which is safe but coarser.
type Sharded struct {
	shards [numShards]chan struct{}
}

func NewSharded() *Sharded {
	l := &Sharded{}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

// Lock acquires every key, waiting until all are held or ctx is done.
// Keys are acquired in shard order so concurrent multi-key callers cannot
// deadlock.
func (l *Sharded) Lock(ctx context.Context, keys ...string) (func(), error) {
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		idx = append(idx, int(hashKey(k)%numShards))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	held := make([]int, 0, len(idx))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-l.shards[held[i]]
		}
	}
	for _, i := range idx {
		select {
		case l.shards[i] <- struct{}{}:
			held = append(held, i)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return sync.OnceFunc(release), nil
}

// hashKey is FNV-1a.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
