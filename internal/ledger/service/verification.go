package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"contribgate/internal/ledger/models"
	"contribgate/pkg/domain"
	dErrors "contribgate/pkg/domain-errors"
	audit "contribgate/pkg/platform/audit"
)

// MaxBatchSize bounds one batch verification.
const MaxBatchSize = 500

// VerifyParty records the caller's attestation that party completed KYC.
// It is idempotent: the first call marks the party verified and records one
// verification_status_changed event; later calls succeed without effect.
// It reports whether this call changed the party's status.
//
// Errors: CodeForbidden unless caller is a verifier; CodeValidation for the
// zero address.
func (s *Service) VerifyParty(ctx context.Context, caller, party domain.Address) (bool, error) {
	ctx, span := startSpan(ctx, "ledger.verify_party",
		attribute.String("caller", caller.Hex()),
		attribute.String("party", party.Hex()),
	)
	var err error
	defer func() { endSpan(span, err) }()

	release, err := s.lock(ctx, partyLockKey(party))
	if err != nil {
		return false, err
	}
	defer release()

	var changed bool
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return translateStoreErr(err, "failed to load campaign configuration")
		}
		if err := requireVerifier(cfg, caller); err != nil {
			return err
		}
		if party.IsZero() {
			return dErrors.New(dErrors.CodeValidation, "party cannot be the zero address")
		}
		changed, err = s.markVerified(ctx, tx, caller, party)
		return err
	})
	if err != nil {
		s.denied(ctx, caller, audit.EventVerificationStatusChanged, err)
		return false, err
	}
	if changed {
		s.metrics.AddVerified(1)
		s.logger.InfoContext(ctx, "party verified",
			"party", party.Hex(),
			"verified_by", caller.Hex(),
		)
	}
	return changed, nil
}

// BatchVerifyParties verifies many parties at once. The batch is
// all-or-nothing: every address is validated first, and if any is invalid
// the whole batch fails with one error naming every failing index. Repeated
// addresses are verified once.
//
// Errors: CodeForbidden unless caller is a verifier; CodeValidation for an
// empty or oversized batch or any invalid address.
func (s *Service) BatchVerifyParties(ctx context.Context, caller domain.Address, addresses []string) (*models.BatchResult, error) {
	ctx, span := startSpan(ctx, "ledger.batch_verify",
		attribute.String("caller", caller.Hex()),
		attribute.Int("batch_size", len(addresses)),
	)
	var err error
	defer func() { endSpan(span, err) }()

	parties, invalid := parseBatch(addresses)

	keys := make([]string, 0, len(parties))
	for _, p := range parties {
		keys = append(keys, partyLockKey(p))
	}
	release, err := s.lock(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &models.BatchResult{Verified: []domain.Address{}}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return translateStoreErr(err, "failed to load campaign configuration")
		}
		if err := requireVerifier(cfg, caller); err != nil {
			return err
		}
		if err := batchError(len(addresses), invalid); err != nil {
			return err
		}
		for _, party := range parties {
			changed, err := s.markVerified(ctx, tx, caller, party)
			if err != nil {
				return err
			}
			if changed {
				result.Verified = append(result.Verified, party)
			} else {
				result.AlreadyVerified++
			}
		}
		return nil
	})
	if err != nil {
		s.denied(ctx, caller, audit.EventVerificationStatusChanged, err)
		return nil, err
	}

	s.metrics.AddVerified(len(result.Verified))
	s.logger.InfoContext(ctx, "batch verification applied",
		"verified_by", caller.Hex(),
		"newly_verified", len(result.Verified),
		"already_verified", result.AlreadyVerified,
	)
	return result, nil
}

func (s *Service) markVerified(ctx context.Context, tx Tx, caller, party domain.Address) (bool, error) {
	rec, err := tx.FindParty(ctx, party)
	if err != nil {
		return false, translateStoreErr(err, "failed to load party")
	}
	now := s.now(ctx)
	if !rec.MarkVerified(caller, now) {
		return false, nil
	}
	if err := tx.SaveParty(ctx, rec); err != nil {
		return false, translateStoreErr(err, "failed to save party")
	}
	event := s.newEvent(ctx, audit.EventVerificationStatusChanged, party, caller, map[string]string{
		"verified": "true",
	})
	event.Decision = "verified"
	if err := tx.AppendEvent(ctx, event); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record verification")
	}
	return true, nil
}

// parseBatch returns the distinct valid parties in first-seen order and the
// indices of invalid entries.
func parseBatch(addresses []string) ([]domain.Address, []int) {
	seen := make(map[domain.Address]struct{}, len(addresses))
	parties := make([]domain.Address, 0, len(addresses))
	var invalid []int
	for i, raw := range addresses {
		addr, err := domain.ParseAddress(raw)
		if err != nil {
			invalid = append(invalid, i)
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		parties = append(parties, addr)
	}
	return parties, invalid
}

func batchError(size int, invalid []int) error {
	switch {
	case size == 0:
		return dErrors.New(dErrors.CodeValidation, "addresses cannot be empty")
	case size > MaxBatchSize:
		return dErrors.Newf(dErrors.CodeValidation, "batch exceeds %d addresses", MaxBatchSize)
	case len(invalid) > 0:
		idx := make([]string, len(invalid))
		for i, n := range invalid {
			idx[i] = fmt.Sprint(n)
		}
		return dErrors.Newf(dErrors.CodeValidation, "invalid address at index %s", strings.Join(idx, ", "))
	}
	return nil
}
