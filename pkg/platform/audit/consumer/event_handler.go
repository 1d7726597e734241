package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"contribgate/internal/platform/kafka/consumer"
	audit "contribgate/pkg/platform/audit"
	auditpg "contribgate/pkg/platform/audit/store/postgres"
)

// EventStore materializes relayed events. Implementations must be idempotent
// on event ID since Kafka delivers at least once.
type EventStore interface {
	AppendWithID(ctx context.Context, event audit.Event) error
}

// EventHandler writes audit events from Kafka into the queryable
// audit_events table.
type EventHandler struct {
	store  EventStore
	logger *slog.Logger
}

func NewEventHandler(store EventStore, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		store:  store,
		logger: logger,
	}
}

// Handle processes one relayed audit event.
func (h *EventHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var payload auditpg.Payload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		h.logger.ErrorContext(ctx, "CRITICAL: failed to unmarshal audit payload",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		// Return nil to commit - malformed messages should not block
		return nil
	}

	event, err := auditpg.FromPayload(payload)
	if err != nil {
		h.logger.ErrorContext(ctx, "CRITICAL: malformed audit event",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if event.Action == "" {
		h.logger.ErrorContext(ctx, "CRITICAL: audit event missing action",
			"event_id", event.ID,
		)
		return nil
	}

	if err := h.store.AppendWithID(ctx, event); err != nil {
		h.logger.ErrorContext(ctx, "failed to store audit event",
			"event_id", event.ID,
			"action", event.Action,
			"error", err,
		)
		return fmt.Errorf("store audit event: %w", err)
	}

	h.logger.DebugContext(ctx, "stored audit event",
		"event_id", event.ID,
		"action", event.Action,
		"party", event.Party.Hex(),
	)
	return nil
}
