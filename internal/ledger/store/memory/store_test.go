package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"contribgate/internal/ledger/models"
	"contribgate/internal/ledger/service"
	"contribgate/pkg/domain"
	audit "contribgate/pkg/platform/audit"
	"contribgate/pkg/platform/sentinel"
)

var (
	owner = domain.MustParseAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	alice = domain.MustParseAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

type recordingSink struct {
	events []audit.Event
	err    error
}

func (r *recordingSink) Emit(_ context.Context, e audit.Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

type MemoryStoreSuite struct {
	suite.Suite
	sink  *recordingSink
	store *Store
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupSubTest() {
	s.sink = &recordingSink{}
	s.store = New(WithEventSink(s.sink))
	_, err := s.store.Bootstrap(context.Background(), &models.CampaignConfig{
		Owner:               owner,
		Treasury:            owner,
		ExchangeRate:        domain.MustParseRate("3000"),
		MaxContributionFiat: domain.MustParseRate("3300"),
	})
	s.Require().NoError(err)
}

func (s *MemoryStoreSuite) contribute(ctx context.Context, tx service.Tx, units string) error {
	rec, err := tx.FindParty(ctx, alice)
	if err != nil {
		return err
	}
	if _, err := rec.RecordContribution(domain.MustParseUnits(units), time.Now()); err != nil {
		return err
	}
	if err := tx.SaveParty(ctx, rec); err != nil {
		return err
	}
	return tx.AppendEvent(ctx, audit.Event{Action: string(audit.EventContributionAccepted), Party: alice})
}

func (s *MemoryStoreSuite) TestRunInTx() {
	ctx := context.Background()

	s.Run("commit applies records stats and events", func() {
		for _, units := range []string{"0.5", "0.25"} {
			err := s.store.RunInTx(ctx, func(ctx context.Context, tx service.Tx) error {
				return s.contribute(ctx, tx, units)
			})
			s.Require().NoError(err)
		}

		rec, err := s.store.FindParty(ctx, alice)
		s.Require().NoError(err)
		s.Equal(domain.MustParseUnits("0.75"), rec.CumulativeAmount)
		s.Equal(uint64(2), rec.ContributionCount)

		stats, err := s.store.Stats(ctx)
		s.Require().NoError(err)
		s.Equal(domain.MustParseUnits("0.75"), stats.TotalReceived)
		s.Equal(uint64(1), stats.UniqueContributorCount)
		s.Len(s.sink.events, 2)
	})

	s.Run("callback error discards staged writes", func() {
		boom := errors.New("forward failed")
		err := s.store.RunInTx(ctx, func(ctx context.Context, tx service.Tx) error {
			if err := s.contribute(ctx, tx, "0.5"); err != nil {
				return err
			}
			staged, err := tx.FindParty(ctx, alice)
			s.Require().NoError(err)
			s.Equal(domain.MustParseUnits("0.5"), staged.CumulativeAmount, "tx sees its own writes")
			return boom
		})
		s.ErrorIs(err, boom)

		rec, err := s.store.FindParty(ctx, alice)
		s.Require().NoError(err)
		s.True(rec.CumulativeAmount.IsZero())
		s.Empty(s.sink.events)
	})

	s.Run("sink failure aborts the commit", func() {
		s.sink.err = errors.New("audit down")
		err := s.store.RunInTx(ctx, func(ctx context.Context, tx service.Tx) error {
			return s.contribute(ctx, tx, "0.5")
		})
		s.Error(err)

		stats, err := s.store.Stats(ctx)
		s.Require().NoError(err)
		s.True(stats.TotalReceived.IsZero())
	})

	s.Run("configuration changes require an exclusive read", func() {
		err := s.store.RunInTx(ctx, func(ctx context.Context, tx service.Tx) error {
			cfg, err := tx.Config(ctx)
			s.Require().NoError(err)
			cfg.Paused = true
			s.ErrorIs(tx.SaveConfig(ctx, cfg), sentinel.ErrInvalidState)
			_, err = tx.ConfigForUpdate(ctx)
			return err
		})
		s.ErrorIs(err, ErrConfigUpgrade)

		err = s.store.RunInTx(ctx, func(ctx context.Context, tx service.Tx) error {
			cfg, err := tx.ConfigForUpdate(ctx)
			s.Require().NoError(err)
			cfg.Paused = true
			return tx.SaveConfig(ctx, cfg)
		})
		s.Require().NoError(err)

		cfg, err := s.store.Config(ctx)
		s.Require().NoError(err)
		s.True(cfg.Paused)
	})

	s.Run("exclusive config access waits for shared readers", func() {
		entered := make(chan struct{})
		release := make(chan struct{})
		go func() {
			_ = s.store.RunInTx(ctx, func(ctx context.Context, tx service.Tx) error {
				_, err := tx.Config(ctx)
				close(entered)
				<-release
				return err
			})
		}()
		<-entered

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = s.store.RunInTx(ctx, func(ctx context.Context, tx service.Tx) error {
				_, err := tx.ConfigForUpdate(ctx)
				return err
			})
		}()

		select {
		case <-done:
			s.Fail("writer entered while a reader held the configuration")
		case <-time.After(30 * time.Millisecond):
		}
		close(release)
		<-done
	})
}

func (s *MemoryStoreSuite) TestBootstrapAndReads() {
	ctx := context.Background()

	s.Run("bootstrap keeps the first configuration", func() {
		cfg, err := s.store.Bootstrap(ctx, &models.CampaignConfig{Owner: alice})
		s.Require().NoError(err)
		s.Equal(owner, cfg.Owner)
	})

	s.Run("unknown party reads as the zero record", func() {
		rec, err := s.store.FindParty(ctx, alice)
		s.Require().NoError(err)
		s.Equal(alice, rec.Address)
		s.False(rec.Verified)
	})

	s.Run("config before bootstrap is not found", func() {
		_, err := New().Config(ctx)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned configuration is a copy", func() {
		cfg, err := s.store.Config(ctx)
		s.Require().NoError(err)
		cfg.Verifiers[alice] = struct{}{}

		again, err := s.store.Config(ctx)
		s.Require().NoError(err)
		s.False(again.IsVerifier(alice))
	})
}
