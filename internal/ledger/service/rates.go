package service

import (
	"context"

	"contribgate/internal/ledger/models"
	"contribgate/pkg/domain"
	dErrors "contribgate/pkg/domain-errors"
	audit "contribgate/pkg/platform/audit"
)

// SetExchangeRate replaces the fiat-per-asset rate. The new rate applies to
// subsequent evaluations only; accepted totals are never revisited, so a
// party may end up above the new cap.
//
// Errors: CodeForbidden unless caller is the owner; CodeInvalidConfiguration
// for a zero rate.
func (s *Service) SetExchangeRate(ctx context.Context, caller domain.Address, rate domain.Rate) (*models.RateChange, error) {
	var change models.RateChange
	_, err := s.updateConfig(ctx, caller, audit.EventExchangeRateUpdated, func(cfg *models.CampaignConfig) (*audit.Event, error) {
		if !rate.IsPositive() {
			return nil, dErrors.New(dErrors.CodeInvalidConfiguration, "exchange rate must be greater than zero")
		}
		newCap, err := domain.AssetCap(cfg.MaxContributionFiat, rate)
		if err != nil {
			return nil, err
		}
		change = models.RateChange{
			OldRate:   cfg.ExchangeRate,
			NewRate:   rate,
			NewCap:    newCap,
			UpdatedBy: caller,
			UpdatedAt: s.now(ctx),
		}
		cfg.ExchangeRate = rate
		event := s.newEvent(ctx, audit.EventExchangeRateUpdated, domain.ZeroAddress, caller, map[string]string{
			"old_rate":                 change.OldRate.Raw(),
			"new_rate":                 change.NewRate.Raw(),
			"new_max_contribution_wei": newCap.String(),
		})
		event.Timestamp = change.UpdatedAt
		return &event, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "exchange rate updated",
		"old_rate", change.OldRate.String(),
		"new_rate", change.NewRate.String(),
		"max_contribution", change.NewCap.Units(),
	)
	return &change, nil
}

// GetMaxContributionAsset derives the current per-party cap in base units.
func (s *Service) GetMaxContributionAsset(ctx context.Context) (domain.Amount, error) {
	cfg, err := s.committedConfig(ctx)
	if err != nil {
		return domain.Amount{}, err
	}
	return cfg.MaxContributionAsset()
}
