package compliance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contribgate/pkg/domain"
	audit "contribgate/pkg/platform/audit"
	"contribgate/pkg/platform/audit/store/memory"
)

type failingStore struct {
	*memory.InMemoryStore
}

func (failingStore) Append(context.Context, audit.Event) error {
	return errors.New("outbox unavailable")
}

func TestPublisher_Emit(t *testing.T) {
	party := domain.MustParseAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	t.Run("persists party event", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := New(store)

		err := pub.Emit(context.Background(), audit.Event{
			Action: string(audit.EventVerificationStatusChanged),
			Party:  party,
		})
		require.NoError(t, err)

		events, err := store.ListByParty(context.Background(), party)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	})

	t.Run("party scoped event without party is rejected", func(t *testing.T) {
		pub := New(memory.NewInMemoryStore())
		err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventContributionAccepted)})
		assert.Error(t, err)
	})

	t.Run("campaign event needs no party", func(t *testing.T) {
		pub := New(memory.NewInMemoryStore())
		err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventExchangeRateUpdated)})
		assert.NoError(t, err)
	})

	t.Run("store failure fails closed", func(t *testing.T) {
		pub := New(failingStore{memory.NewInMemoryStore()})
		err := pub.Emit(context.Background(), audit.Event{
			Action: string(audit.EventContributionAccepted),
			Party:  party,
		})
		assert.ErrorContains(t, err, "compliance audit persistence failed")
	})
}
