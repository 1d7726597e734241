package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	dErrors "contribgate/pkg/domain-errors"
)

// AssetDecimals is the number of base units per whole settlement asset unit
// expressed as a power of ten (wei per ether).
const AssetDecimals = 18

// Amount is a non-negative quantity of the settlement asset in base units.
// All arithmetic is integer-only; there is no floating point anywhere in the
// ledger path.
type Amount struct {
	v uint256.Int
}

// NewAmount builds an Amount from a base-unit count.
func NewAmount(baseUnits uint64) Amount {
	var a Amount
	a.v.SetUint64(baseUnits)
	return a
}

// ParseAmount parses a base-unit decimal integer string ("500000000000000000").
//
// Errors: CodeInvalidInput for empty, signed, fractional, or >256-bit input.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if err := requireDigits(s); err != nil {
		return Amount{}, err
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "amount out of range")
	}
	return Amount{v: *v}, nil
}

// ParseUnits parses a human-readable asset quantity ("0.5") into base units.
//
// Errors: CodeInvalidInput when the value has more than AssetDecimals
// fractional digits or is otherwise malformed.
func ParseUnits(s string) (Amount, error) {
	v, err := parseFixed(s, AssetDecimals)
	if err != nil {
		return Amount{}, err
	}
	return Amount{v: v}, nil
}

// MustParseUnits is ParseUnits for constants and tests.
func MustParseUnits(s string) Amount {
	a, err := ParseUnits(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Cmp returns -1, 0, or +1.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) GreaterThan(b Amount) bool {
	return a.Cmp(b) > 0
}

// Add returns a+b, failing on 256-bit overflow instead of wrapping.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, dErrors.New(dErrors.CodeInvalidAmount, "amount overflows 256 bits")
	}
	return out, nil
}

// SubFloor returns max(0, a-b).
func (a Amount) SubFloor(b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return Amount{}
	}
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out
}

// String renders base units as a decimal integer.
func (a Amount) String() string {
	return a.v.Dec()
}

// Units renders the amount as whole asset units ("0.5").
func (a Amount) Units() string {
	return formatFixed(a.v, AssetDecimals)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value stores amounts as NUMERIC text so Postgres keeps full precision.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

func (a *Amount) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("scan amount: negative value %d", v)
		}
		*a = NewAmount(uint64(v))
		return nil
	default:
		return fmt.Errorf("scan amount: unsupported type %T", src)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return fmt.Errorf("scan amount: %w", err)
	}
	*a = parsed
	return nil
}

func requireDigits(s string) error {
	if s == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "amount cannot be empty")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return dErrors.New(dErrors.CodeInvalidInput, "amount must be an unsigned decimal integer")
		}
	}
	return nil
}
