package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"contribgate/internal/ledger/models"
	"contribgate/internal/treasury"
	"contribgate/pkg/domain"
	dErrors "contribgate/pkg/domain-errors"
	audit "contribgate/pkg/platform/audit"
	"contribgate/pkg/platform/sentinel"
)

// Rejection reasons, reported verbatim by CanContribute and carried as the
// message of the matching error.
const (
	ReasonPaused          = "contributions are paused"
	ReasonNotVerified     = "contributor must complete KYC verification"
	ReasonZeroAmount      = "contribution amount must be greater than zero"
	ReasonPerTransaction  = "contribution exceeds per-transaction limit"
	ReasonCumulativeLimit = "contribution would exceed cumulative limit"
)

// evaluate runs the admissibility checks in order and returns the first
// failure. On success it returns the cap the amount was checked against.
func evaluate(cfg *models.CampaignConfig, rec *models.PartyRecord, amount domain.Amount) (domain.Amount, error) {
	if cfg.Paused {
		return domain.Amount{}, dErrors.New(dErrors.CodeSystemPaused, ReasonPaused)
	}
	if !rec.Verified {
		return domain.Amount{}, dErrors.New(dErrors.CodeIdentityNotVerified, ReasonNotVerified)
	}
	if amount.IsZero() {
		return domain.Amount{}, dErrors.New(dErrors.CodeInvalidAmount, ReasonZeroAmount)
	}
	maxAsset, err := cfg.MaxContributionAsset()
	if err != nil {
		return domain.Amount{}, err
	}
	if amount.GreaterThan(maxAsset) {
		return domain.Amount{}, dErrors.New(dErrors.CodeExceedsPerTransactionLimit, ReasonPerTransaction)
	}
	total, err := rec.CumulativeAmount.Add(amount)
	if err != nil || total.GreaterThan(maxAsset) {
		return domain.Amount{}, dErrors.New(dErrors.CodeExceedsCumulativeLimit, ReasonCumulativeLimit)
	}
	return maxAsset, nil
}

// isRejection reports whether err is one of the admissibility outcomes.
func isRejection(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeSystemPaused,
		dErrors.CodeIdentityNotVerified,
		dErrors.CodeInvalidAmount,
		dErrors.CodeExceedsPerTransactionLimit,
		dErrors.CodeExceedsCumulativeLimit:
		return true
	}
	return false
}

// Contribute accepts amount from party, forwards it to the treasury, and
// returns a receipt.
//
// Errors: CodeSystemPaused, CodeIdentityNotVerified, CodeInvalidAmount,
// CodeExceedsPerTransactionLimit, CodeExceedsCumulativeLimit (checked in that
// order), CodeForwardingFailure when the treasury forward fails or times out.
// A failed call leaves no trace in the ledger.
func (s *Service) Contribute(ctx context.Context, party domain.Address, amount domain.Amount) (*models.Receipt, error) {
	return s.accept(ctx, party, amount, false)
}

// ContributeDirect handles a plain transfer that did not go through
// Contribute. It applies exactly the same checks.
func (s *Service) ContributeDirect(ctx context.Context, party domain.Address, amount domain.Amount) (*models.Receipt, error) {
	return s.accept(ctx, party, amount, true)
}

func (s *Service) accept(ctx context.Context, party domain.Address, amount domain.Amount, direct bool) (*models.Receipt, error) {
	ctx, span := startSpan(ctx, "ledger.accept",
		attribute.String("party", party.Hex()),
		attribute.String("amount", amount.String()),
		attribute.Bool("direct", direct),
	)
	var err error
	defer func() { endSpan(span, err) }()

	release, err := s.lock(ctx, partyLockKey(party))
	if err != nil {
		return nil, err
	}
	defer release()

	// Once the party lock is held the accept step completes or rolls back;
	// the caller can no longer cancel it.
	ctx = context.WithoutCancel(ctx)

	var (
		receipt  *models.Receipt
		transfer treasury.Transfer
		// undo is set once the treasury may hold the funds: after a
		// successful forward, or after a forward whose outcome is unknown.
		undo bool
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return translateStoreErr(err, "failed to load campaign configuration")
		}
		rec, err := tx.FindParty(ctx, party)
		if err != nil {
			return translateStoreErr(err, "failed to load party")
		}
		if _, err := evaluate(cfg, rec, amount); err != nil {
			return err
		}

		now := s.now(ctx)
		first, err := rec.RecordContribution(amount, now)
		if err != nil {
			return err
		}
		if err := tx.SaveParty(ctx, rec); err != nil {
			return translateStoreErr(err, "failed to save party")
		}

		transfer = treasury.Transfer{
			From:        party,
			To:          cfg.Treasury,
			Amount:      amount,
			ReferenceID: domain.NewReferenceID(party, amount, s.nonce()),
		}
		event := s.newEvent(ctx, audit.EventContributionAccepted, party, domain.ZeroAddress, map[string]string{
			"cumulative_amount":  rec.CumulativeAmount.String(),
			"reference_id":       transfer.ReferenceID.Hex(),
			"treasury":           cfg.Treasury.Hex(),
			"direct":             strconv.FormatBool(direct),
			"first_contribution": strconv.FormatBool(first),
		})
		event.Timestamp = now
		event.Amount = amount.String()
		event.Decision = "accepted"
		if err := tx.AppendEvent(ctx, event); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record contribution")
		}

		if err := s.forward(ctx, transfer); err != nil {
			undo = !definitive(err)
			return err
		}
		undo = true

		receipt = &models.Receipt{
			Party:            party,
			Amount:           amount,
			CumulativeAmount: rec.CumulativeAmount,
			Treasury:         cfg.Treasury,
			ReferenceID:      transfer.ReferenceID,
			Direct:           direct,
			Timestamp:        now,
		}
		return nil
	})
	if err != nil {
		if undo {
			s.reverse(ctx, transfer, err)
		}
		if _, coded := dErrors.As(err); !coded {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit contribution")
		}
		s.rejected(ctx, party, amount, direct, err)
		return nil, err
	}

	s.metrics.IncAccepted(assetUnits(amount))
	s.logger.InfoContext(ctx, "contribution accepted",
		"party", party.Hex(),
		"amount", amount.String(),
		"cumulative_amount", receipt.CumulativeAmount.String(),
		"reference_id", receipt.ReferenceID.Hex(),
		"direct", direct,
	)
	return receipt, nil
}

// forward sends t to the treasury under the forward timeout.
func (s *Service) forward(ctx context.Context, t treasury.Transfer) error {
	fctx, cancel := context.WithTimeout(ctx, s.forwardTimeout)
	defer cancel()

	start := time.Now()
	err := s.forwarder.Forward(fctx, t)
	s.metrics.ObserveForward(time.Since(start).Seconds(), err != nil)
	if err == nil {
		return nil
	}

	s.logger.ErrorContext(ctx, "treasury forward failed",
		"party", t.From.Hex(),
		"treasury", t.To.Hex(),
		"amount", t.Amount.String(),
		"reference_id", t.ReferenceID.Hex(),
		"error", err,
	)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(fctx.Err(), context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeForwardingFailure, "treasury forwarding timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeForwardingFailure, "treasury forwarding failed")
}

// definitive reports whether a forward error proves the treasury never
// applied the transfer. Timeouts, transport errors and 5xx answers do not.
func definitive(err error) bool {
	return errors.Is(err, treasury.ErrRejected) || errors.Is(err, sentinel.ErrUnavailable)
}

// reverse undoes a forward that may have reached the treasury while the
// ledger transaction rolled back. Reversal is keyed on the reference ID, so a
// forward that never landed answers ErrUnknownTransfer.
func (s *Service) reverse(ctx context.Context, t treasury.Transfer, cause error) {
	r, ok := s.forwarder.(treasury.Reverser)
	if !ok {
		s.metrics.IncReversal("unsupported")
		s.logger.ErrorContext(ctx, "CRITICAL: forwarded funds without ledger record and no reversal available",
			"reference_id", t.ReferenceID.Hex(),
			"amount", t.Amount.String(),
			"error", cause,
		)
		return
	}
	rctx, cancel := context.WithTimeout(ctx, s.forwardTimeout)
	defer cancel()
	err := r.Reverse(rctx, t)
	if errors.Is(err, treasury.ErrUnknownTransfer) {
		s.metrics.IncReversal("not_applied")
		s.logger.InfoContext(ctx, "treasury holds no transfer to reverse",
			"reference_id", t.ReferenceID.Hex(),
			"cause", cause,
		)
		return
	}
	if err != nil {
		s.metrics.IncReversal("failed")
		s.logger.ErrorContext(ctx, "CRITICAL: treasury reversal failed",
			"reference_id", t.ReferenceID.Hex(),
			"amount", t.Amount.String(),
			"error", err,
			"cause", cause,
		)
		return
	}
	s.metrics.IncReversal("reversed")
	s.logger.WarnContext(ctx, "treasury forward reversed after rollback",
		"reference_id", t.ReferenceID.Hex(),
		"error", cause,
	)
}

// rejected records a failed attempt. The event is written outside the rolled
// back transaction.
func (s *Service) rejected(ctx context.Context, party domain.Address, amount domain.Amount, direct bool, err error) {
	code := dErrors.CodeOf(err)
	s.metrics.IncRejected(string(code))
	if !isRejection(err) && code != dErrors.CodeForwardingFailure {
		s.logger.ErrorContext(ctx, "contribution failed",
			"party", party.Hex(),
			"amount", amount.String(),
			"error", err,
		)
		return
	}

	reason := err.Error()
	if de, ok := dErrors.As(err); ok {
		reason = de.Message
	}
	event := s.newEvent(ctx, audit.EventContributionRejected, party, domain.ZeroAddress, map[string]string{
		"code":   string(code),
		"direct": strconv.FormatBool(direct),
	})
	event.Amount = amount.String()
	event.Decision = "rejected"
	event.Reason = reason
	s.logAudit(ctx, event)
}

func assetUnits(a domain.Amount) float64 {
	f, _ := strconv.ParseFloat(a.Units(), 64)
	return f
}
