// Package treasury moves accepted funds to the campaign treasury. The ledger
// never retains funds: every accepted contribution is forwarded in full
// before the ledger transaction commits.
package treasury

import (
	"context"
	"errors"

	"contribgate/pkg/domain"
)

// Transfer is one forwarding instruction.
type Transfer struct {
	From        domain.Address
	To          domain.Address
	Amount      domain.Amount
	ReferenceID domain.ReferenceID
}

// Forwarder forwards funds to a treasury. Implementations must honor ctx
// cancellation so the ledger can bound the call with a timeout.
type Forwarder interface {
	Forward(ctx context.Context, t Transfer) error
}

// Reverser undoes a forward whose ledger transaction failed to commit.
type Reverser interface {
	Reverse(ctx context.Context, t Transfer) error
}

var (
	// ErrRejected means the destination refused the funds.
	ErrRejected = errors.New("treasury rejected transfer")
	// ErrUnknownTransfer means a reversal referenced no completed forward.
	ErrUnknownTransfer = errors.New("unknown transfer reference")
)
