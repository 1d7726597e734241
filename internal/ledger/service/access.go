package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"contribgate/internal/ledger/models"
	"contribgate/pkg/domain"
	dErrors "contribgate/pkg/domain-errors"
	audit "contribgate/pkg/platform/audit"
)

func requireOwner(cfg *models.CampaignConfig, caller domain.Address) error {
	if caller.IsZero() || caller != cfg.Owner {
		return dErrors.New(dErrors.CodeForbidden, "caller is not the owner")
	}
	return nil
}

func requireVerifier(cfg *models.CampaignConfig, caller domain.Address) error {
	if caller.IsZero() || !cfg.IsVerifier(caller) {
		return dErrors.New(dErrors.CodeForbidden, "caller is not a verifier")
	}
	return nil
}

// configChange mutates cfg in place. It returns the audit event to record,
// or nil when the change is a no-op.
type configChange func(cfg *models.CampaignConfig) (*audit.Event, error)

// updateConfig runs change under the config lock with the configuration
// locked for update. Only the owner may change configuration.
func (s *Service) updateConfig(ctx context.Context, caller domain.Address, action audit.AuditEvent, change configChange) (*models.CampaignConfig, error) {
	ctx, span := startSpan(ctx, "ledger."+string(action),
		attribute.String("caller", caller.Hex()),
	)
	var err error
	defer func() { endSpan(span, err) }()

	release, err := s.lock(ctx, configLockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		updated *models.CampaignConfig
		event   *audit.Event
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := tx.ConfigForUpdate(ctx)
		if err != nil {
			return translateStoreErr(err, "failed to load campaign configuration")
		}
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}

		next := cfg.Clone()
		event, err = change(next)
		if err != nil {
			return err
		}
		updated = next
		if event == nil {
			return nil
		}
		if err := tx.SaveConfig(ctx, next); err != nil {
			return translateStoreErr(err, "failed to save campaign configuration")
		}
		if err := tx.AppendEvent(ctx, *event); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record configuration change")
		}
		return nil
	})
	if err != nil {
		s.denied(ctx, caller, action, err)
		return nil, err
	}
	if event != nil {
		s.metrics.IncConfigChange(string(action))
		s.logger.InfoContext(ctx, "campaign configuration changed",
			"action", string(action),
			"caller", caller.Hex(),
		)
	}
	return updated, nil
}

// denied records role failures as access_denied audit events.
func (s *Service) denied(ctx context.Context, caller domain.Address, action audit.AuditEvent, err error) {
	if !dErrors.HasCode(err, dErrors.CodeForbidden) {
		return
	}
	event := s.newEvent(ctx, audit.EventAccessDenied, domain.ZeroAddress, caller, map[string]string{
		"operation": string(action),
	})
	event.Decision = "denied"
	event.Reason = err.Error()
	s.logAudit(ctx, event)
}

// SetTreasury replaces the destination of accepted funds.
//
// Errors: CodeForbidden unless caller is the owner; CodeInvalidConfiguration
// for the zero address.
func (s *Service) SetTreasury(ctx context.Context, caller, treasury domain.Address) (*models.TreasuryChange, error) {
	var change models.TreasuryChange
	_, err := s.updateConfig(ctx, caller, audit.EventTreasuryUpdated, func(cfg *models.CampaignConfig) (*audit.Event, error) {
		if treasury.IsZero() {
			return nil, dErrors.New(dErrors.CodeInvalidConfiguration, "treasury cannot be the zero address")
		}
		change = models.TreasuryChange{
			OldTreasury: cfg.Treasury,
			NewTreasury: treasury,
			UpdatedBy:   caller,
		}
		cfg.Treasury = treasury
		event := s.newEvent(ctx, audit.EventTreasuryUpdated, domain.ZeroAddress, caller, map[string]string{
			"old_treasury": change.OldTreasury.Hex(),
			"new_treasury": change.NewTreasury.Hex(),
		})
		return &event, nil
	})
	if err != nil {
		return nil, err
	}
	return &change, nil
}

// Pause stops the accept path. Pausing a paused campaign is a no-op.
func (s *Service) Pause(ctx context.Context, caller domain.Address) error {
	return s.setPaused(ctx, caller, true)
}

// Unpause resumes the accept path. Unpausing a running campaign is a no-op.
func (s *Service) Unpause(ctx context.Context, caller domain.Address) error {
	return s.setPaused(ctx, caller, false)
}

func (s *Service) setPaused(ctx context.Context, caller domain.Address, paused bool) error {
	action := audit.EventCampaignUnpaused
	if paused {
		action = audit.EventCampaignPaused
	}
	_, err := s.updateConfig(ctx, caller, action, func(cfg *models.CampaignConfig) (*audit.Event, error) {
		if cfg.Paused == paused {
			return nil, nil
		}
		cfg.Paused = paused
		event := s.newEvent(ctx, action, domain.ZeroAddress, caller, nil)
		return &event, nil
	})
	return err
}

// AddVerifier grants the verifier role. Adding an existing verifier, or the
// owner, is a no-op.
func (s *Service) AddVerifier(ctx context.Context, caller, verifier domain.Address) error {
	_, err := s.updateConfig(ctx, caller, audit.EventVerifierAdded, func(cfg *models.CampaignConfig) (*audit.Event, error) {
		if verifier.IsZero() {
			return nil, dErrors.New(dErrors.CodeInvalidConfiguration, "verifier cannot be the zero address")
		}
		if cfg.IsVerifier(verifier) {
			return nil, nil
		}
		cfg.Verifiers[verifier] = struct{}{}
		event := s.newEvent(ctx, audit.EventVerifierAdded, domain.ZeroAddress, caller, map[string]string{
			"verifier": verifier.Hex(),
		})
		return &event, nil
	})
	return err
}

// RemoveVerifier revokes the verifier role. The owner always keeps it.
// Parties already verified stay verified.
func (s *Service) RemoveVerifier(ctx context.Context, caller, verifier domain.Address) error {
	_, err := s.updateConfig(ctx, caller, audit.EventVerifierRemoved, func(cfg *models.CampaignConfig) (*audit.Event, error) {
		if verifier == cfg.Owner {
			return nil, dErrors.New(dErrors.CodeInvalidConfiguration, "owner cannot be removed as verifier")
		}
		if _, ok := cfg.Verifiers[verifier]; !ok {
			return nil, nil
		}
		delete(cfg.Verifiers, verifier)
		event := s.newEvent(ctx, audit.EventVerifierRemoved, domain.ZeroAddress, caller, map[string]string{
			"verifier": verifier.Hex(),
		})
		return &event, nil
	})
	return err
}

// Verifiers lists the addresses holding the verifier role, owner first.
func (s *Service) Verifiers(ctx context.Context) ([]domain.Address, error) {
	cfg, err := s.committedConfig(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.VerifierList(), nil
}
