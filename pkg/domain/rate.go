package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	dErrors "contribgate/pkg/domain-errors"
)

// RateDecimals is the fixed-point scale of fiat values (exchange rates and
// fiat caps).
const RateDecimals = 18

// Rate is a non-negative fiat value with RateDecimals of precision. It holds
// both exchange rates (fiat per whole asset unit) and fiat caps.
type Rate struct {
	v uint256.Int
}

// RateFromUnits builds a Rate from a whole fiat value (3000 → 3000.00).
func RateFromUnits(units uint64) Rate {
	var r Rate
	r.v.Mul(uint256.NewInt(units), scale(RateDecimals))
	return r
}

// ParseRate parses a decimal fiat value ("3000", "3300.50").
//
// Errors: CodeInvalidInput for malformed input or more than RateDecimals
// fractional digits. A zero rate parses; positivity is a configuration
// concern checked by the ledger.
func ParseRate(s string) (Rate, error) {
	v, err := parseFixed(s, RateDecimals)
	if err != nil {
		return Rate{}, err
	}
	return Rate{v: v}, nil
}

// MustParseRate is ParseRate for constants and tests.
func MustParseRate(s string) Rate {
	r, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Rate) IsPositive() bool {
	return !r.v.IsZero()
}

func (r Rate) Equal(o Rate) bool {
	return r.v.Eq(&o.v)
}

// String renders the rate as a trimmed decimal ("3000", "0.5").
func (r Rate) String() string {
	return formatFixed(r.v, RateDecimals)
}

// Raw renders the scaled integer, the form persisted in storage.
func (r Rate) Raw() string {
	return r.v.Dec()
}

func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

func (r *Rate) UnmarshalJSON(data []byte) error {
	parsed, err := ParseRate(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Rate) Value() (driver.Value, error) {
	return r.Raw(), nil
}

func (r *Rate) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("scan rate: unsupported type %T", src)
	}
	if err := requireDigits(s); err != nil {
		return fmt.Errorf("scan rate: %w", err)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return fmt.Errorf("scan rate: %w", err)
	}
	r.v = *v
	return nil
}

// AssetCap converts a fiat cap into the settlement asset at the given rate:
// floor(capFiat * 10^AssetDecimals / rate).
//
// Rounding is always down so a contribution exactly at the displayed cap is
// accepted and anything above it is rejected, independent of how many times
// the rate has changed.
//
// Errors: CodeInvalidConfiguration when the rate is zero or the result does not
// fit in 256 bits.
func AssetCap(capFiat, rate Rate) (Amount, error) {
	if !rate.IsPositive() {
		return Amount{}, dErrors.New(dErrors.CodeInvalidConfiguration, "exchange rate must be positive")
	}
	var out Amount
	if _, overflow := out.v.MulDivOverflow(&capFiat.v, scale(AssetDecimals), &rate.v); overflow {
		return Amount{}, dErrors.New(dErrors.CodeInvalidConfiguration, "asset cap overflows 256 bits")
	}
	return out, nil
}

func scale(decimals int) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
}

func parseFixed(s string, decimals int) (uint256.Int, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return uint256.Int{}, dErrors.New(dErrors.CodeInvalidInput, "value is required")
	}
	if hasDot && frac == "" {
		return uint256.Int{}, dErrors.New(dErrors.CodeInvalidInput, "missing digits after decimal point")
	}
	if whole == "" {
		whole = "0"
	}
	if err := requireDigits(whole); err != nil {
		return uint256.Int{}, err
	}
	if frac != "" {
		if err := requireDigits(frac); err != nil {
			return uint256.Int{}, err
		}
	}
	if len(frac) > decimals {
		return uint256.Int{}, dErrors.Newf(dErrors.CodeInvalidInput, "at most %d fractional digits are supported", decimals)
	}
	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", decimals-len(frac)), "0")
	if digits == "" {
		return uint256.Int{}, nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return uint256.Int{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "value out of range")
	}
	return *v, nil
}

func formatFixed(v uint256.Int, decimals int) string {
	var whole, frac uint256.Int
	whole.DivMod(&v, scale(decimals), &frac)
	if frac.IsZero() {
		return whole.Dec()
	}
	fs := frac.Dec()
	fs = strings.Repeat("0", decimals-len(fs)) + fs
	return whole.Dec() + "." + strings.TrimRight(fs, "0")
}
