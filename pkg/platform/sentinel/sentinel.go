package sentinel

import "errors"

// Infrastructure facts returned by stores and adapters, optionally wrapped.
// Services translate them into coded domain errors; input validation uses
// pkg/domain-errors directly.
var (
	// ErrNotFound: the row or key does not exist, e.g. the campaign
	// configuration before bootstrap.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState: a store was used outside the state it allows, such as
	// writing through a read-only transaction.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable: a dependency such as the treasury custody API refused
	// the call or its breaker is open.
	ErrUnavailable = errors.New("unavailable")
)
