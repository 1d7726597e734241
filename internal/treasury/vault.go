package treasury

import (
	"context"
	"fmt"
	"sync"

	"contribgate/pkg/domain"
)

// Vault is an in-process custody ledger of treasury balances. It backs the
// development profile and tests; RejectDestination simulates a treasury that
// refuses funds.
type Vault struct {
	mu        sync.Mutex
	balances  map[domain.Address]domain.Amount
	completed map[domain.ReferenceID]Transfer
	rejecting map[domain.Address]bool
}

func NewVault() *Vault {
	return &Vault{
		balances:  make(map[domain.Address]domain.Amount),
		completed: make(map[domain.ReferenceID]Transfer),
		rejecting: make(map[domain.Address]bool),
	}
}

// RejectDestination makes future forwards to addr fail with ErrRejected.
func (v *Vault) RejectDestination(addr domain.Address, reject bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rejecting[addr] = reject
}

func (v *Vault) Forward(ctx context.Context, t Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.rejecting[t.To] {
		return fmt.Errorf("%w: destination %s", ErrRejected, t.To.Hex())
	}
	if _, dup := v.completed[t.ReferenceID]; dup {
		return nil
	}
	total, err := v.balances[t.To].Add(t.Amount)
	if err != nil {
		return err
	}
	v.balances[t.To] = total
	v.completed[t.ReferenceID] = t
	return nil
}

func (v *Vault) Reverse(_ context.Context, t Transfer) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	done, ok := v.completed[t.ReferenceID]
	if !ok {
		return ErrUnknownTransfer
	}
	v.balances[done.To] = v.balances[done.To].SubFloor(done.Amount)
	delete(v.completed, t.ReferenceID)
	return nil
}

// Balance returns the funds held for addr.
func (v *Vault) Balance(addr domain.Address) domain.Amount {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[addr]
}
