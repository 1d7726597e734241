// Package outbox relays audit events written to the transactional outbox
// table into Kafka. Rows are claimed with FOR UPDATE SKIP LOCKED so several
// relays can run against the same database.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"contribgate/internal/platform/kafka/producer"
	audit "contribgate/pkg/platform/audit"
	"contribgate/pkg/platform/circuit"
	txcontext "contribgate/pkg/platform/tx"
)

// Publisher is the Kafka side of the relay.
type Publisher interface {
	Publish(ctx context.Context, msgs ...producer.Message) error
}

// Relay polls unpublished outbox rows and publishes them in batches.
type Relay struct {
	db          *sql.DB
	publisher   Publisher
	topicPrefix string
	batchSize   int
	interval    time.Duration
	breaker     *circuit.Breaker
	metrics     *Metrics
	logger      *slog.Logger
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) {
		r.breaker = b
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func NewRelay(db *sql.DB, publisher Publisher, topicPrefix string, opts ...Option) *Relay {
	r := &Relay{
		db:          db,
		publisher:   publisher,
		topicPrefix: topicPrefix,
		batchSize:   100,
		interval:    time.Second,
		breaker:     circuit.New("audit-outbox", circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled. A full batch triggers an immediate
// follow-up instead of waiting for the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for {
			n, err := r.RelayOnce(ctx)
			if err != nil {
				r.logger.WarnContext(ctx, "outbox relay failed", "error", err)
				break
			}
			if n < r.batchSize {
				break
			}
		}
	}
}

type row struct {
	id          string
	aggregateID string
	eventType   string
	payload     []byte
}

// RelayOnce publishes one batch and returns how many rows were marked
// published. Rows stay unpublished when Kafka rejects the batch.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	if !r.breaker.Allow() {
		r.metrics.IncCircuitSkipped()
		return 0, nil
	}

	published := 0
	err := txcontext.Run(ctx, r.db, "outbox", func(ctx context.Context, tx *sql.Tx) error {
		batch, err := claim(ctx, tx, r.batchSize)
		if err != nil || len(batch) == 0 {
			return err
		}

		msgs := make([]producer.Message, 0, len(batch))
		ids := make([]string, 0, len(batch))
		for _, rw := range batch {
			msgs = append(msgs, producer.Message{
				Topic:   r.TopicFor(rw.eventType),
				Key:     []byte(rw.aggregateID),
				Value:   rw.payload,
				Headers: map[string]string{"event_type": rw.eventType, "outbox_id": rw.id},
			})
			ids = append(ids, rw.id)
		}
		if err := r.publish(ctx, msgs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE outbox SET published_at = NOW() WHERE id = ANY($1::uuid[])`, pq.Array(ids)); err != nil {
			return fmt.Errorf("mark outbox rows published: %w", err)
		}
		published = len(batch)
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.metrics.AddPublished(published)
	return published, nil
}

// claim locks up to limit unpublished rows, oldest first.
func claim(ctx context.Context, tx *sql.Tx, limit int) ([]row, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox rows: %w", err)
	}
	defer rows.Close()

	var batch []row
	for rows.Next() {
		var rw row
		if err := rows.Scan(&rw.id, &rw.aggregateID, &rw.eventType, &rw.payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return batch, nil
}

// publish sends a batch and feeds the outcome to the breaker.
func (r *Relay) publish(ctx context.Context, msgs []producer.Message) error {
	if err := r.publisher.Publish(ctx, msgs...); err != nil {
		r.metrics.IncPublishFailures()
		if _, change := r.breaker.RecordFailure(); change.Opened {
			r.metrics.SetCircuitBreakerState(true)
			r.logger.ErrorContext(ctx, "audit outbox circuit opened", "error", err)
		}
		return fmt.Errorf("publish outbox batch: %w", err)
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.metrics.SetCircuitBreakerState(false)
		r.logger.InfoContext(ctx, "audit outbox circuit closed")
	}
	return nil
}

// TopicFor routes an event type to its category topic.
func (r *Relay) TopicFor(eventType string) string {
	return r.topicPrefix + "." + string(audit.AuditEvent(eventType).Category())
}
