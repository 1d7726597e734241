package audit

import (
	"time"

	"github.com/google/uuid"

	"contribgate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// accepted contributions, identity attestations, cap-changing rate updates.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to monitoring and forensics:
	// rejected contributions, role changes, treasury changes, pause toggles.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from ledger logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// Party is the contributor the event is about. Zero for campaign-level
	// events such as rate changes.
	Party domain.Address
	// Actor is who performed the action when different from Party
	// (the verifier for attestations, the owner for admin changes).
	Actor     domain.Address
	Amount    string
	Decision  string
	Reason    string
	RequestID string
	// Details carries event-specific fields (cumulative_amount,
	// reference_id, old_rate, new_rate...) as strings.
	Details map[string]string
}

type AuditEvent string

const (
	// Ledger events
	EventContributionAccepted      AuditEvent = "contribution_accepted"
	EventContributionRejected      AuditEvent = "contribution_rejected"
	EventVerificationStatusChanged AuditEvent = "verification_status_changed"

	// Configuration events
	EventExchangeRateUpdated AuditEvent = "exchange_rate_updated"
	EventTreasuryUpdated     AuditEvent = "treasury_updated"
	EventCampaignPaused      AuditEvent = "campaign_paused"
	EventCampaignUnpaused    AuditEvent = "campaign_unpaused"
	EventVerifierAdded       AuditEvent = "verifier_added"
	EventVerifierRemoved     AuditEvent = "verifier_removed"

	// Access control
	EventAccessDenied AuditEvent = "access_denied"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventContributionAccepted:      CategoryCompliance,
	EventVerificationStatusChanged: CategoryCompliance,
	EventExchangeRateUpdated:       CategoryCompliance,

	EventContributionRejected: CategorySecurity,
	EventTreasuryUpdated:      CategorySecurity,
	EventCampaignPaused:       CategorySecurity,
	EventCampaignUnpaused:     CategorySecurity,
	EventVerifierAdded:        CategorySecurity,
	EventVerifierRemoved:      CategorySecurity,
	EventAccessDenied:         CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Normalize fills ID, Category, and Timestamp when unset.
func (e Event) Normalize(now time.Time) Event {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Category == "" {
		e.Category = AuditEvent(e.Action).Category()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	return e
}
