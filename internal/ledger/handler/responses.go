package handler

import (
	"time"

	"contribgate/internal/ledger/models"
	"contribgate/pkg/domain"
	audit "contribgate/pkg/platform/audit"
)

// Amounts are rendered twice: base units for exact arithmetic and whole
// asset units for display.

type ReceiptResponse struct {
	Party            string    `json:"party"`
	Amount           string    `json:"amount"`
	AmountUnits      string    `json:"amount_units"`
	CumulativeAmount string    `json:"cumulative_amount"`
	Treasury         string    `json:"treasury"`
	ReferenceID      string    `json:"reference_id"`
	Direct           bool      `json:"direct"`
	Timestamp        time.Time `json:"timestamp"`
}

func toReceiptResponse(r *models.Receipt) ReceiptResponse {
	return ReceiptResponse{
		Party:            r.Party.Hex(),
		Amount:           r.Amount.String(),
		AmountUnits:      r.Amount.Units(),
		CumulativeAmount: r.CumulativeAmount.String(),
		Treasury:         r.Treasury.Hex(),
		ReferenceID:      r.ReferenceID.Hex(),
		Direct:           r.Direct,
		Timestamp:        r.Timestamp.UTC(),
	}
}

type PartyInfoResponse struct {
	Party             string `json:"party"`
	CumulativeAmount  string `json:"cumulative_amount"`
	RemainingCapacity string `json:"remaining_capacity"`
	Verified          bool   `json:"verified"`
	HasContributed    bool   `json:"has_contributed"`
}

func toPartyInfoResponse(p *models.PartyInfo) PartyInfoResponse {
	return PartyInfoResponse{
		Party:             p.Party.Hex(),
		CumulativeAmount:  p.CumulativeAmount.String(),
		RemainingCapacity: p.RemainingCapacity.String(),
		Verified:          p.Verified,
		HasContributed:    p.HasContributed,
	}
}

type EligibilityResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

type CapacityResponse struct {
	Party             string `json:"party"`
	RemainingCapacity string `json:"remaining_capacity"`
	RemainingUnits    string `json:"remaining_units"`
}

type VerifiedResponse struct {
	Party    string `json:"party"`
	Verified bool   `json:"verified"`
}

type StatsResponse struct {
	TotalReceived          string `json:"total_received"`
	UniqueContributorCount uint64 `json:"unique_contributor_count"`
	MaxContributionAsset   string `json:"max_contribution_asset"`
	ExchangeRate           string `json:"exchange_rate"`
}

func toStatsResponse(v *models.StatsView) StatsResponse {
	return StatsResponse{
		TotalReceived:          v.TotalReceived.String(),
		UniqueContributorCount: v.UniqueContributorCount,
		MaxContributionAsset:   v.MaxContributionAsset.String(),
		ExchangeRate:           v.ExchangeRate.String(),
	}
}

type LimitResponse struct {
	MaxContributionAsset string `json:"max_contribution_asset"`
	MaxContributionUnits string `json:"max_contribution_units"`
}

type PausedResponse struct {
	Paused bool `json:"paused"`
}

type TreasuryResponse struct {
	Treasury string `json:"treasury"`
}

type VerifiersResponse struct {
	Verifiers []string `json:"verifiers"`
}

func toVerifiersResponse(addrs []domain.Address) VerifiersResponse {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Hex())
	}
	return VerifiersResponse{Verifiers: out}
}

type VerifyResponse struct {
	Party         string `json:"party"`
	NewlyVerified bool   `json:"newly_verified"`
}

type BatchVerifyResponse struct {
	Verified        []string `json:"verified"`
	AlreadyVerified int      `json:"already_verified"`
}

func toBatchVerifyResponse(r *models.BatchResult) BatchVerifyResponse {
	out := make([]string, 0, len(r.Verified))
	for _, a := range r.Verified {
		out = append(out, a.Hex())
	}
	return BatchVerifyResponse{Verified: out, AlreadyVerified: r.AlreadyVerified}
}

type RateChangeResponse struct {
	OldRate              string    `json:"old_rate"`
	NewRate              string    `json:"new_rate"`
	MaxContributionAsset string    `json:"max_contribution_asset"`
	UpdatedBy            string    `json:"updated_by"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func toRateChangeResponse(c *models.RateChange) RateChangeResponse {
	return RateChangeResponse{
		OldRate:              c.OldRate.String(),
		NewRate:              c.NewRate.String(),
		MaxContributionAsset: c.NewCap.String(),
		UpdatedBy:            c.UpdatedBy.Hex(),
		UpdatedAt:            c.UpdatedAt.UTC(),
	}
}

type TreasuryChangeResponse struct {
	OldTreasury string `json:"old_treasury"`
	NewTreasury string `json:"new_treasury"`
}

type EventResponse struct {
	ID        string            `json:"id"`
	Category  string            `json:"category"`
	Action    string            `json:"action"`
	Timestamp time.Time         `json:"timestamp"`
	Party     string            `json:"party,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	Amount    string            `json:"amount,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

type EventsResponse struct {
	Events []EventResponse `json:"events"`
}

func toEventsResponse(events []audit.Event) EventsResponse {
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		r := EventResponse{
			ID:        e.ID.String(),
			Category:  string(e.Category),
			Action:    e.Action,
			Timestamp: e.Timestamp.UTC(),
			Amount:    e.Amount,
			Reason:    e.Reason,
			RequestID: e.RequestID,
			Details:   e.Details,
		}
		if !e.Party.IsZero() {
			r.Party = e.Party.Hex()
		}
		if !e.Actor.IsZero() {
			r.Actor = e.Actor.Hex()
		}
		out = append(out, r)
	}
	return EventsResponse{Events: out}
}
