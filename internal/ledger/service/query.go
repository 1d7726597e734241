package service

import (
	"context"

	"contribgate/internal/ledger/models"
	"contribgate/pkg/domain"
	dErrors "contribgate/pkg/domain-errors"
	audit "contribgate/pkg/platform/audit"
)

func (s *Service) committedParty(ctx context.Context, party domain.Address) (*models.PartyRecord, error) {
	rec, err := s.store.FindParty(ctx, party)
	if err != nil {
		return nil, translateStoreErr(err, "failed to load party")
	}
	return rec, nil
}

// GetPartyInfo reports a party's totals against the current cap. Unknown
// parties report zero values.
func (s *Service) GetPartyInfo(ctx context.Context, party domain.Address) (*models.PartyInfo, error) {
	cfg, err := s.committedConfig(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.committedParty(ctx, party)
	if err != nil {
		return nil, err
	}
	maxAsset, err := cfg.MaxContributionAsset()
	if err != nil {
		return nil, err
	}
	return &models.PartyInfo{
		Party:             party,
		CumulativeAmount:  rec.CumulativeAmount,
		RemainingCapacity: maxAsset.SubFloor(rec.CumulativeAmount),
		Verified:          rec.Verified,
		HasContributed:    rec.HasContributed,
	}, nil
}

// GetRemainingCapacity returns max(0, cap - cumulative) for party.
func (s *Service) GetRemainingCapacity(ctx context.Context, party domain.Address) (domain.Amount, error) {
	info, err := s.GetPartyInfo(ctx, party)
	if err != nil {
		return domain.Amount{}, err
	}
	return info.RemainingCapacity, nil
}

// CanContribute runs the admissibility checks without mutating anything and
// returns the first failing reason, or models.EligibleReason.
func (s *Service) CanContribute(ctx context.Context, party domain.Address, amount domain.Amount) (*models.Eligibility, error) {
	cfg, err := s.committedConfig(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.committedParty(ctx, party)
	if err != nil {
		return nil, err
	}
	if _, err := evaluate(cfg, rec, amount); err != nil {
		if !isRejection(err) {
			return nil, err
		}
		de, _ := dErrors.As(err)
		return &models.Eligibility{Allowed: false, Reason: de.Message}, nil
	}
	return &models.Eligibility{Allowed: true, Reason: models.EligibleReason}, nil
}

// GetCampaignStats reports the campaign aggregates with the current cap and rate.
func (s *Service) GetCampaignStats(ctx context.Context) (*models.StatsView, error) {
	cfg, err := s.committedConfig(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, translateStoreErr(err, "failed to load campaign stats")
	}
	maxAsset, err := cfg.MaxContributionAsset()
	if err != nil {
		return nil, err
	}
	return &models.StatsView{
		TotalReceived:          stats.TotalReceived,
		UniqueContributorCount: stats.UniqueContributorCount,
		MaxContributionAsset:   maxAsset,
		ExchangeRate:           cfg.ExchangeRate,
	}, nil
}

func (s *Service) IsVerified(ctx context.Context, party domain.Address) (bool, error) {
	rec, err := s.committedParty(ctx, party)
	if err != nil {
		return false, err
	}
	return rec.Verified, nil
}

func (s *Service) IsPaused(ctx context.Context) (bool, error) {
	cfg, err := s.committedConfig(ctx)
	if err != nil {
		return false, err
	}
	return cfg.Paused, nil
}

// Treasury returns the current treasury address.
func (s *Service) Treasury(ctx context.Context) (domain.Address, error) {
	cfg, err := s.committedConfig(ctx)
	if err != nil {
		return domain.ZeroAddress, err
	}
	return cfg.Treasury, nil
}

// ListEvents returns the party's audit trail, oldest first. Rejected attempts
// appear once the best-effort auditor has persisted them.
func (s *Service) ListEvents(ctx context.Context, party domain.Address) ([]audit.Event, error) {
	if s.events == nil {
		return []audit.Event{}, nil
	}
	events, err := s.events.ListByParty(ctx, party)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events")
	}
	if events == nil {
		events = []audit.Event{}
	}
	return events, nil
}
