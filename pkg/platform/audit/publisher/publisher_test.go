package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contribgate/pkg/domain"
	audit "contribgate/pkg/platform/audit"
	"contribgate/pkg/platform/audit/store/memory"
)

var (
	alice = domain.MustParseAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = domain.MustParseAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Party:  alice,
		Action: string(audit.EventContributionAccepted),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventContributionAccepted), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Party:  alice,
		Action: string(audit.EventContributionRejected),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, err := pub.List(context.Background(), alice)
		return err == nil && len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			Party:  alice,
			Action: string(audit.EventContributionAccepted),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListByParty(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(4))
	pub.Close()
	pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventCampaignPaused)})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{
				Party:  alice,
				Action: string(audit.EventContributionRejected),
			})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_Timestamps(t *testing.T) {
	s := memory.NewInMemoryStore()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub := NewPublisher(s, WithClock(func() time.Time { return fixed }))
	defer pub.Close()

	custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Party:  alice,
		Action: string(audit.EventVerificationStatusChanged),
	}))
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Party:     alice,
		Action:    string(audit.EventContributionAccepted),
		Timestamp: custom,
	}))

	events, err := pub.List(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, fixed, events[0].Timestamp, "unset timestamp comes from the clock")
	assert.Equal(t, custom, events[1].Timestamp, "existing timestamp is preserved")
}

func TestPublisher_PartiesAreSeparated(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Party:  alice,
		Action: string(audit.EventVerificationStatusChanged),
	}))
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Party:  bob,
		Action: string(audit.EventContributionRejected),
	}))
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Action: string(audit.EventExchangeRateUpdated),
	}))

	events, err := pub.List(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventVerificationStatusChanged), events[0].Action)

	recent, err := pub.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, string(audit.EventExchangeRateUpdated), recent[0].Action)
	assert.Equal(t, string(audit.EventContributionRejected), recent[1].Action)
}
