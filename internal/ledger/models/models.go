package models

import (
	"bytes"
	"maps"
	"slices"
	"time"

	"contribgate/pkg/domain"
)

// EligibleReason is the canContribute reason when every check passes.
const EligibleReason = "Contribution is allowed"

// PartyRecord is the ledger state of one contributor. Records are created
// implicitly (zero value) and never deleted.
type PartyRecord struct {
	Address           domain.Address
	Verified          bool
	VerifiedBy        domain.Address
	VerifiedAt        time.Time
	CumulativeAmount  domain.Amount
	HasContributed    bool
	ContributionCount uint64

	FirstContributionAt time.Time
	LastContributionAt  time.Time
}

// NewPartyRecord returns the implicit zero record for a party.
func NewPartyRecord(addr domain.Address) *PartyRecord {
	return &PartyRecord{Address: addr}
}

// MarkVerified flips the record to verified. It reports false when the
// party was already verified; verification is never cleared.
func (p *PartyRecord) MarkVerified(by domain.Address, at time.Time) bool {
	if p.Verified {
		return false
	}
	p.Verified = true
	p.VerifiedBy = by
	p.VerifiedAt = at
	return true
}

// RecordContribution adds an accepted amount. It reports whether this was the
// party's first contribution.
func (p *PartyRecord) RecordContribution(amount domain.Amount, at time.Time) (first bool, err error) {
	total, err := p.CumulativeAmount.Add(amount)
	if err != nil {
		return false, err
	}
	first = !p.HasContributed
	p.CumulativeAmount = total
	p.HasContributed = true
	p.ContributionCount++
	if first {
		p.FirstContributionAt = at
	}
	p.LastContributionAt = at
	return first, nil
}

// CampaignConfig is the single global configuration instance.
type CampaignConfig struct {
	Owner    domain.Address
	Treasury domain.Address
	// Verifiers holds explicitly added verifiers; the owner is always a
	// verifier and is never stored here.
	Verifiers           map[domain.Address]struct{}
	ExchangeRate        domain.Rate
	MaxContributionFiat domain.Rate
	Paused              bool
}

// IsVerifier reports whether addr may attest identities.
func (c *CampaignConfig) IsVerifier(addr domain.Address) bool {
	if addr == c.Owner {
		return true
	}
	_, ok := c.Verifiers[addr]
	return ok
}

// MaxContributionAsset derives the per-party asset cap from the fiat cap and
// the current rate. It is recomputed on every call.
func (c *CampaignConfig) MaxContributionAsset() (domain.Amount, error) {
	return domain.AssetCap(c.MaxContributionFiat, c.ExchangeRate)
}

// VerifierList returns the owner followed by the explicit verifiers in
// address order.
func (c *CampaignConfig) VerifierList() []domain.Address {
	rest := make([]domain.Address, 0, len(c.Verifiers))
	for v := range c.Verifiers {
		rest = append(rest, v)
	}
	slices.SortFunc(rest, func(a, b domain.Address) int {
		return bytes.Compare(a.Bytes(), b.Bytes())
	})
	return append([]domain.Address{c.Owner}, rest...)
}

// Clone returns a deep copy safe to mutate.
func (c *CampaignConfig) Clone() *CampaignConfig {
	out := *c
	out.Verifiers = maps.Clone(c.Verifiers)
	if out.Verifiers == nil {
		out.Verifiers = make(map[domain.Address]struct{})
	}
	return &out
}

// CampaignStats are the aggregates maintained with each accepted contribution.
type CampaignStats struct {
	TotalReceived          domain.Amount
	UniqueContributorCount uint64
}

// Receipt acknowledges an accepted contribution.
type Receipt struct {
	Party            domain.Address
	Amount           domain.Amount
	CumulativeAmount domain.Amount
	Treasury         domain.Address
	ReferenceID      domain.ReferenceID
	Direct           bool
	Timestamp        time.Time
}

// PartyInfo is the reporting view of one party.
type PartyInfo struct {
	Party             domain.Address
	CumulativeAmount  domain.Amount
	RemainingCapacity domain.Amount
	Verified          bool
	HasContributed    bool
}

// Eligibility is the result of a dry-run admissibility check.
type Eligibility struct {
	Allowed bool
	Reason  string
}

// StatsView is the campaign reporting view.
type StatsView struct {
	TotalReceived          domain.Amount
	UniqueContributorCount uint64
	MaxContributionAsset   domain.Amount
	ExchangeRate           domain.Rate
}

// RateChange describes an applied exchange rate update.
type RateChange struct {
	OldRate   domain.Rate
	NewRate   domain.Rate
	NewCap    domain.Amount
	UpdatedBy domain.Address
	UpdatedAt time.Time
}

// TreasuryChange describes an applied treasury update.
type TreasuryChange struct {
	OldTreasury domain.Address
	NewTreasury domain.Address
	UpdatedBy   domain.Address
}

// BatchResult reports a batch verification.
type BatchResult struct {
	// Verified lists parties newly verified by this batch, in input order.
	Verified []domain.Address
	// AlreadyVerified counts distinct parties that were verified before.
	AlreadyVerified int
}
