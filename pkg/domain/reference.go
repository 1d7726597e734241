package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	dErrors "contribgate/pkg/domain-errors"
)

// ReferenceID is the 32-byte reference attached to an accepted contribution
// and to its treasury transfer, so both sides of the pass-through can be
// reconciled.
type ReferenceID common.Hash

// NewReferenceID derives a reference from the party, amount, and a fresh
// nonce. Two acceptances never share a reference.
func NewReferenceID(party Address, amount Amount, nonce uuid.UUID) ReferenceID {
	return ReferenceID(crypto.Keccak256Hash(party.Bytes(), []byte(amount.String()), nonce[:]))
}

// ParseReferenceID parses a 0x-prefixed 32-byte hex string.
func ParseReferenceID(s string) (ReferenceID, error) {
	s = strings.TrimSpace(s)
	if len(s) != 2+2*common.HashLength || !strings.HasPrefix(s, "0x") {
		return ReferenceID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid reference id")
	}
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return ReferenceID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid reference id")
	}
	return ReferenceID(common.BytesToHash(b)), nil
}

func (r ReferenceID) IsZero() bool {
	return r == ReferenceID{}
}

func (r ReferenceID) Hex() string {
	return common.Hash(r).Hex()
}

func (r ReferenceID) String() string {
	return r.Hex()
}

func (r ReferenceID) MarshalText() ([]byte, error) {
	return []byte(r.Hex()), nil
}

func (r *ReferenceID) UnmarshalText(text []byte) error {
	parsed, err := ParseReferenceID(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
