package audit

import (
	"context"

	"contribgate/pkg/domain"
)

// Store persists audit events. Postgres implementations participate in the
// caller's transaction when one is carried in the context.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByParty(ctx context.Context, party domain.Address) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
