package service

import (
	"context"

	"contribgate/internal/ledger/models"
	"contribgate/internal/treasury"
	"contribgate/pkg/domain"
	audit "contribgate/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Store,Tx,Locker,Forwarder,AuditEmitter,EventReader

// Store persists party records and the campaign configuration.
// Reads outside RunInTx see committed state only.
type Store interface {
	// RunInTx runs fn in one transaction. Writes made through tx become visible
	// only when fn returns nil; any error discards all of them.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// FindParty returns the committed record, or the zero record when the
	// party has never been seen.
	FindParty(ctx context.Context, party domain.Address) (*models.PartyRecord, error)

	// Config returns the committed campaign configuration.
	// Returns sentinel.ErrNotFound before Bootstrap.
	Config(ctx context.Context) (*models.CampaignConfig, error)

	// Stats returns the committed campaign aggregates.
	Stats(ctx context.Context) (models.CampaignStats, error)

	// Bootstrap stores cfg when no configuration exists yet and returns the
	// configuration in effect.
	Bootstrap(ctx context.Context, cfg *models.CampaignConfig) (*models.CampaignConfig, error)
}

// Tx is the transactional view handed to RunInTx callbacks.
type Tx interface {
	// FindParty returns the party record for update, or the zero record.
	FindParty(ctx context.Context, party domain.Address) (*models.PartyRecord, error)
	SaveParty(ctx context.Context, record *models.PartyRecord) error

	// Config returns a configuration snapshot that stays stable until the
	// transaction ends.
	Config(ctx context.Context) (*models.CampaignConfig, error)
	// ConfigForUpdate returns the configuration locked for modification.
	ConfigForUpdate(ctx context.Context) (*models.CampaignConfig, error)
	SaveConfig(ctx context.Context, cfg *models.CampaignConfig) error

	// AppendEvent records an audit event that commits with the transaction.
	AppendEvent(ctx context.Context, event audit.Event) error
}

// Locker provides exclusive locks on ledger keys. Lock holds every key or
// none; implementations order multi-key acquisition to avoid deadlock.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (release func(), err error)
}

// Forwarder moves accepted funds to the treasury.
type Forwarder interface {
	Forward(ctx context.Context, t treasury.Transfer) error
}

// AuditEmitter receives best-effort audit events that live outside a ledger
// transaction, such as rejected contribution attempts.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// EventReader serves a party's audit trail.
type EventReader interface {
	ListByParty(ctx context.Context, party domain.Address) ([]audit.Event, error)
}
