package memory

import (
	"context"
	"sync"
	"time"

	"contribgate/pkg/domain"
	audit "contribgate/pkg/platform/audit"
)

// InMemoryStore keeps events in append order. Events are also indexed by
// party so per-party trails stay cheap.
type InMemoryStore struct {
	mu      sync.RWMutex
	events  []audit.Event
	byParty map[domain.Address][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byParty: make(map[domain.Address][]int)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.byParty = make(map[domain.Address][]int)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event = event.Normalize(time.Now())
	s.events = append(s.events, event)
	if !event.Party.IsZero() {
		s.byParty[event.Party] = append(s.byParty[event.Party], len(s.events)-1)
	}
	return nil
}

// ListByParty returns a party's events, oldest first.
func (s *InMemoryStore) ListByParty(_ context.Context, party domain.Address) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.byParty[party]
	out := make([]audit.Event, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.events[i])
	}
	return out, nil
}

// ListRecent returns the most recent N events, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]audit.Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// ListAll returns every event in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...), nil
}
