package handler

import (
	"strings"

	"contribgate/pkg/domain"
	dErrors "contribgate/pkg/domain-errors"
)

// ContributeRequest is the body of POST /v1/contributions and
// POST /v1/transfers. Amount is in base units (wei) as a decimal string.
type ContributeRequest struct {
	Amount string `json:"amount"`

	parsed domain.Amount
}

func (r *ContributeRequest) Normalize() {
	r.Amount = strings.TrimSpace(r.Amount)
}

func (r *ContributeRequest) Validate() error {
	if r.Amount == "" {
		return dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	amount, err := domain.ParseAmount(r.Amount)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "amount must be a base-unit integer")
	}
	r.parsed = amount
	return nil
}

// VerifyRequest is the body of POST /v1/admin/verifications. Party is parsed
// by the service so a zero address reports a validation error there.
type VerifyRequest struct {
	Party string `json:"party"`

	parsed domain.Address
}

func (r *VerifyRequest) Normalize() {
	r.Party = strings.TrimSpace(r.Party)
}

func (r *VerifyRequest) Validate() error {
	if r.Party == "" {
		return dErrors.New(dErrors.CodeValidation, "party is required")
	}
	addr, err := parseAddressAllowZero(r.Party)
	if err != nil {
		return err
	}
	r.parsed = addr
	return nil
}

// BatchVerifyRequest is the body of POST /v1/admin/verifications/batch.
// Addresses are validated by the service so every bad index is reported.
type BatchVerifyRequest struct {
	Parties []string `json:"parties"`
}

func (r *BatchVerifyRequest) Normalize() {
	for i, p := range r.Parties {
		r.Parties[i] = strings.TrimSpace(p)
	}
}

func (r *BatchVerifyRequest) Validate() error {
	if r.Parties == nil {
		return dErrors.New(dErrors.CodeValidation, "parties is required")
	}
	return nil
}

// ExchangeRateRequest is the body of PUT /v1/admin/exchange-rate. Rate is
// fiat per whole asset unit ("3000", "2999.5").
type ExchangeRateRequest struct {
	Rate string `json:"rate"`

	parsed domain.Rate
}

func (r *ExchangeRateRequest) Normalize() {
	r.Rate = strings.TrimSpace(r.Rate)
}

func (r *ExchangeRateRequest) Validate() error {
	if r.Rate == "" {
		return dErrors.New(dErrors.CodeValidation, "rate is required")
	}
	rate, err := domain.ParseRate(r.Rate)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "rate must be a decimal number")
	}
	r.parsed = rate
	return nil
}

// TreasuryRequest is the body of PUT /v1/admin/treasury.
type TreasuryRequest struct {
	Treasury string `json:"treasury"`

	parsed domain.Address
}

func (r *TreasuryRequest) Normalize() {
	r.Treasury = strings.TrimSpace(r.Treasury)
}

func (r *TreasuryRequest) Validate() error {
	if r.Treasury == "" {
		return dErrors.New(dErrors.CodeValidation, "treasury is required")
	}
	addr, err := parseAddressAllowZero(r.Treasury)
	if err != nil {
		return err
	}
	r.parsed = addr
	return nil
}

// VerifierRequest is the body of POST /v1/admin/verifiers.
type VerifierRequest struct {
	Verifier string `json:"verifier"`

	parsed domain.Address
}

func (r *VerifierRequest) Normalize() {
	r.Verifier = strings.TrimSpace(r.Verifier)
}

func (r *VerifierRequest) Validate() error {
	if r.Verifier == "" {
		return dErrors.New(dErrors.CodeValidation, "verifier is required")
	}
	addr, err := parseAddressAllowZero(r.Verifier)
	if err != nil {
		return err
	}
	r.parsed = addr
	return nil
}

// parseAddressAllowZero accepts the zero address so the service can apply
// its own role and configuration checks before rejecting it.
func parseAddressAllowZero(s string) (domain.Address, error) {
	addr, err := domain.ParseAddress(s)
	if err == nil {
		return addr, nil
	}
	if isZeroHex(s) {
		return domain.ZeroAddress, nil
	}
	return domain.ZeroAddress, dErrors.Wrap(err, dErrors.CodeValidation, "invalid address")
}

func isZeroHex(s string) bool {
	hex, ok := strings.CutPrefix(strings.ToLower(s), "0x")
	if !ok || len(hex) != 40 {
		return false
	}
	return strings.Trim(hex, "0") == ""
}
