// Package memory is the in-process ledger store. Transactions stage their
// writes and apply them atomically on commit; a failed transaction leaves
// nothing behind.
package memory

import (
	"context"
	"errors"
	"sync"

	"contribgate/internal/ledger/models"
	"contribgate/internal/ledger/service"
	"contribgate/pkg/domain"
	audit "contribgate/pkg/platform/audit"
	"contribgate/pkg/platform/sentinel"
)

// ErrConfigUpgrade is returned when a transaction that read the
// configuration shared later asks for it exclusively.
var ErrConfigUpgrade = errors.New("configuration lock upgrade not supported")

// EventSink receives events of committed transactions, typically the
// compliance publisher.
type EventSink interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Store struct {
	mu      sync.RWMutex
	parties map[domain.Address]models.PartyRecord
	config  *models.CampaignConfig
	stats   models.CampaignStats

	// cfgLock is held for the life of a transaction: shared by Config,
	// exclusive by ConfigForUpdate.
	cfgLock sync.RWMutex
	sink    EventSink
}

type Option func(*Store)

// WithEventSink forwards committed events to sink. A sink error aborts the
// commit.
func WithEventSink(sink EventSink) Option {
	return func(s *Store) {
		s.sink = sink
	}
}

func New(opts ...Option) *Store {
	s := &Store{parties: make(map[domain.Address]models.PartyRecord)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{store: s, parties: make(map[domain.Address]models.PartyRecord)}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(ctx, tx)
}

func (s *Store) commit(ctx context.Context, tx *memTx) error {
	if s.sink != nil {
		for _, event := range tx.events {
			if err := s.sink.Emit(ctx, event); err != nil {
				return err
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, next := range tx.parties {
		prev := s.parties[addr]
		if next.CumulativeAmount.GreaterThan(prev.CumulativeAmount) {
			added := next.CumulativeAmount.SubFloor(prev.CumulativeAmount)
			total, err := s.stats.TotalReceived.Add(added)
			if err != nil {
				return err
			}
			s.stats.TotalReceived = total
		}
		if next.HasContributed && !prev.HasContributed {
			s.stats.UniqueContributorCount++
		}
		s.parties[addr] = next
	}
	if tx.config != nil {
		s.config = tx.config
	}
	return nil
}

func (s *Store) FindParty(_ context.Context, party domain.Address) (*models.PartyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.party(party), nil
}

// party returns a copy of the committed record or the zero record. Callers
// hold s.mu.
func (s *Store) party(addr domain.Address) *models.PartyRecord {
	if rec, ok := s.parties[addr]; ok {
		return &rec
	}
	return models.NewPartyRecord(addr)
}

func (s *Store) Config(_ context.Context) (*models.CampaignConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return nil, sentinel.ErrNotFound
	}
	return s.config.Clone(), nil
}

func (s *Store) Stats(_ context.Context) (models.CampaignStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats, nil
}

func (s *Store) Bootstrap(_ context.Context, cfg *models.CampaignConfig) (*models.CampaignConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil {
		s.config = cfg.Clone()
	}
	return s.config.Clone(), nil
}

type cfgState int

const (
	cfgNone cfgState = iota
	cfgShared
	cfgExclusive
)

type memTx struct {
	store   *Store
	parties map[domain.Address]models.PartyRecord
	config  *models.CampaignConfig
	events  []audit.Event
	state   cfgState
}

func (t *memTx) release() {
	switch t.state {
	case cfgShared:
		t.store.cfgLock.RUnlock()
	case cfgExclusive:
		t.store.cfgLock.Unlock()
	}
	t.state = cfgNone
}

func (t *memTx) FindParty(_ context.Context, party domain.Address) (*models.PartyRecord, error) {
	if rec, ok := t.parties[party]; ok {
		return &rec, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.party(party), nil
}

func (t *memTx) SaveParty(_ context.Context, record *models.PartyRecord) error {
	t.parties[record.Address] = *record
	return nil
}

func (t *memTx) Config(ctx context.Context) (*models.CampaignConfig, error) {
	if t.state == cfgNone {
		t.store.cfgLock.RLock()
		t.state = cfgShared
	}
	return t.current(ctx)
}

func (t *memTx) ConfigForUpdate(ctx context.Context) (*models.CampaignConfig, error) {
	switch t.state {
	case cfgShared:
		return nil, ErrConfigUpgrade
	case cfgNone:
		t.store.cfgLock.Lock()
		t.state = cfgExclusive
	}
	return t.current(ctx)
}

func (t *memTx) current(ctx context.Context) (*models.CampaignConfig, error) {
	if t.config != nil {
		return t.config.Clone(), nil
	}
	return t.store.Config(ctx)
}

func (t *memTx) SaveConfig(_ context.Context, cfg *models.CampaignConfig) error {
	if t.state != cfgExclusive {
		return sentinel.ErrInvalidState
	}
	t.config = cfg.Clone()
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, event audit.Event) error {
	t.events = append(t.events, event)
	return nil
}
