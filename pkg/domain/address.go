package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	dErrors "contribgate/pkg/domain-errors"
)

// Address identifies a party, verifier, owner, or treasury account.
// Invariant: addresses built by ParseAddress are well-formed and non-zero.
//
// Usage: construct via ParseAddress at trust boundaries. Decoding from JSON
// accepts the zero address so callers can report it with a domain code.
type Address common.Address

// ZeroAddress is the unset address.
var ZeroAddress Address

// ParseAddress constructs an Address from a 0x-prefixed hex string.
//
// Errors: returns CodeInvalidInput for empty, malformed, or zero addresses.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroAddress, dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	if !common.IsHexAddress(s) {
		return ZeroAddress, dErrors.New(dErrors.CodeInvalidInput, "invalid address format")
	}
	a := Address(common.HexToAddress(s))
	if a.IsZero() {
		return ZeroAddress, dErrors.New(dErrors.CodeInvalidInput, "address cannot be the zero address")
	}
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Hex returns the EIP-55 checksummed form.
func (a Address) Hex() string {
	return common.Address(a).Hex()
}

func (a Address) String() string {
	return a.Hex()
}

// Bytes returns the raw 20 bytes.
func (a Address) Bytes() []byte {
	return common.Address(a).Bytes()
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if !common.IsHexAddress(s) {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid address format")
	}
	*a = Address(common.HexToAddress(s))
	return nil
}
