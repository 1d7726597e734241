package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"contribgate/pkg/domain"
	audit "contribgate/pkg/platform/audit"
	txcontext "contribgate/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table inside the caller's transaction and
// relayed to Kafka by the outbox relay; the Kafka consumer materializes them
// into audit_events for querying.
//
// Deployments without Kafka enable inline materialization so audit_events is
// written in the same transaction as the outbox row.
type Store struct {
	db     *sql.DB
	inline bool
}

// Option configures the Store.
type Option func(*Store)

// WithInlineMaterialization writes audit_events alongside the outbox row.
func WithInlineMaterialization() Option {
	return func(s *Store) {
		s.inline = true
	}
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Payload is the JSON structure published to Kafka. Field names match
// audit.Event for deserialization by the consumer.
type Payload struct {
	ID        string            `json:"ID"`
	Category  string            `json:"Category"`
	Timestamp string            `json:"Timestamp"`
	Action    string            `json:"Action"`
	Party     string            `json:"Party,omitempty"`
	Actor     string            `json:"Actor,omitempty"`
	Amount    string            `json:"Amount,omitempty"`
	Decision  string            `json:"Decision,omitempty"`
	Reason    string            `json:"Reason,omitempty"`
	RequestID string            `json:"RequestID,omitempty"`
	Details   map[string]string `json:"Details,omitempty"`
}

// ToPayload flattens an event for the wire.
func ToPayload(event audit.Event) Payload {
	p := Payload{
		ID:        event.ID.String(),
		Category:  string(event.Category),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:    event.Action,
		Amount:    event.Amount,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		Details:   event.Details,
	}
	if !event.Party.IsZero() {
		p.Party = event.Party.Hex()
	}
	if !event.Actor.IsZero() {
		p.Actor = event.Actor.Hex()
	}
	return p
}

// FromPayload rebuilds an event from the wire form.
func FromPayload(p Payload) (audit.Event, error) {
	eventID, err := uuid.Parse(p.ID)
	if err != nil {
		return audit.Event{}, fmt.Errorf("parse event id: %w", err)
	}
	event := audit.Event{
		ID:        eventID,
		Category:  audit.EventCategory(p.Category),
		Action:    p.Action,
		Amount:    p.Amount,
		Decision:  p.Decision,
		Reason:    p.Reason,
		RequestID: p.RequestID,
		Details:   p.Details,
	}
	if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
		event.Timestamp = ts
	}
	if p.Party != "" {
		if err := event.Party.UnmarshalText([]byte(p.Party)); err != nil {
			return audit.Event{}, fmt.Errorf("parse party: %w", err)
		}
	}
	if p.Actor != "" {
		if err := event.Actor.UnmarshalText([]byte(p.Actor)); err != nil {
			return audit.Event{}, fmt.Errorf("parse actor: %w", err)
		}
	}
	return event, nil
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	event = event.Normalize(time.Now())
	// Always derive category from action - eventCategories map is the source of truth
	event.Category = audit.AuditEvent(event.Action).Category()

	payloadBytes, err := json.Marshal(ToPayload(event))
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "campaign"
	aggregateID := event.ID.String()
	if !event.Party.IsZero() {
		aggregateType = "party"
		aggregateID = event.Party.Hex()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		aggregateType,
		aggregateID,
		event.Action,
		string(payloadBytes),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}

	if s.inline {
		if err := s.insertEvent(ctx, s.execer(ctx), event); err != nil {
			return err
		}
	}
	return nil
}

// AppendWithID inserts an event into audit_events with its own ID.
// Used by the Kafka consumer to materialize events for querying.
// Idempotent: duplicate deliveries are ignored via ON CONFLICT DO NOTHING.
func (s *Store) AppendWithID(ctx context.Context, event audit.Event) error {
	return s.insertEvent(ctx, s.db, event)
}

func (s *Store) insertEvent(ctx context.Context, exec dbExecutor, event audit.Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, action, party, actor,
			amount, decision, reason, request_id, details
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = exec.ExecContext(ctx, query,
		event.ID,
		string(event.Category),
		event.Timestamp,
		event.Action,
		nullableAddress(event.Party),
		nullableAddress(event.Actor),
		event.Amount,
		event.Decision,
		event.Reason,
		event.RequestID,
		string(details),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByParty returns a party's events, oldest first.
func (s *Store) ListByParty(ctx context.Context, party domain.Address) ([]audit.Event, error) {
	query := `
		SELECT id, category, timestamp, action, party, actor,
			   amount, decision, reason, request_id, details
		FROM audit_events
		WHERE party = $1
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, party.Hex())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, category, timestamp, action, party, actor,
			   amount, decision, reason, request_id, details
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category string
			event    audit.Event
			party    sql.NullString
			actor    sql.NullString
			details  []byte
		)
		err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&event.Action,
			&party,
			&actor,
			&event.Amount,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&details,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		if party.Valid {
			if err := event.Party.UnmarshalText([]byte(party.String)); err != nil {
				return nil, fmt.Errorf("scan audit party: %w", err)
			}
		}
		if actor.Valid {
			if err := event.Actor.UnmarshalText([]byte(actor.String)); err != nil {
				return nil, fmt.Errorf("scan audit actor: %w", err)
			}
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullableAddress(a domain.Address) any {
	if a.IsZero() {
		return nil
	}
	return a.Hex()
}
