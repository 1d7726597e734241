// Package postgres persists the ledger in PostgreSQL. Party rows are locked
// with an upsert for the life of a transaction; audit events go to the
// outbox in the same transaction.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"contribgate/internal/ledger/models"
	"contribgate/internal/ledger/service"
	"contribgate/pkg/domain"
	dErrors "contribgate/pkg/domain-errors"
	audit "contribgate/pkg/platform/audit"
	"contribgate/pkg/platform/sentinel"
	txcontext "contribgate/pkg/platform/tx"
)

const defaultTxTimeout = 30 * time.Second

// EventSink writes audit events. It receives a context carrying the open
// *sql.Tx so outbox rows commit with the ledger change.
type EventSink interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Store struct {
	db      *sql.DB
	events  EventSink
	timeout time.Duration
}

type Option func(*Store)

// WithTxTimeout bounds transactions whose context has no deadline. It must
// exceed the treasury forward timeout.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(db *sql.DB, events EventSink, opts ...Option) *Store {
	s := &Store{db: db, events: events, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	return txcontext.Run(ctx, s.db, "ledger", func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &pgTx{tx: tx, events: s.events})
	})
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const partyColumns = `address, verified, verified_by, verified_at, cumulative_amount,
		has_contributed, contribution_count, first_contribution_at, last_contribution_at`

func (s *Store) FindParty(ctx context.Context, party domain.Address) (*models.PartyRecord, error) {
	query := `SELECT ` + partyColumns + ` FROM parties WHERE address = $1`
	rec, err := scanParty(s.db.QueryRowContext(ctx, query, party.Hex()))
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewPartyRecord(party), nil
	}
	if err != nil {
		return nil, fmt.Errorf("find party: %w", err)
	}
	return rec, nil
}

func (s *Store) Config(ctx context.Context) (*models.CampaignConfig, error) {
	return loadConfig(ctx, s.db, "")
}

func (s *Store) Stats(ctx context.Context) (models.CampaignStats, error) {
	var stats models.CampaignStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cumulative_amount), 0), COUNT(*) FILTER (WHERE has_contributed)
		FROM parties
	`).Scan(&stats.TotalReceived, &stats.UniqueContributorCount)
	if err != nil {
		return models.CampaignStats{}, fmt.Errorf("campaign stats: %w", err)
	}
	return stats, nil
}

func (s *Store) Bootstrap(ctx context.Context, cfg *models.CampaignConfig) (*models.CampaignConfig, error) {
	var out *models.CampaignConfig
	err := s.RunInTx(ctx, func(ctx context.Context, _ service.Tx) error {
		tx, _ := txcontext.From(ctx)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_config (id, owner, treasury, exchange_rate, max_fiat, paused)
			VALUES (1, $1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, cfg.Owner.Hex(), cfg.Treasury.Hex(), cfg.ExchangeRate, cfg.MaxContributionFiat, cfg.Paused)
		if err != nil {
			return fmt.Errorf("bootstrap campaign: %w", err)
		}
		out, err = loadConfig(ctx, tx, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type pgTx struct {
	tx     *sql.Tx
	events EventSink
}

// FindParty creates the row when absent and locks it until the transaction ends.
func (t *pgTx) FindParty(ctx context.Context, party domain.Address) (*models.PartyRecord, error) {
	query := `
		INSERT INTO parties (address) VALUES ($1)
		ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		RETURNING ` + partyColumns
	rec, err := scanParty(t.tx.QueryRowContext(ctx, query, party.Hex()))
	if err != nil {
		return nil, fmt.Errorf("lock party: %w", err)
	}
	return rec, nil
}

func (t *pgTx) SaveParty(ctx context.Context, rec *models.PartyRecord) error {
	query := `
		UPDATE parties SET
			verified = $2,
			verified_by = $3,
			verified_at = $4,
			cumulative_amount = $5,
			has_contributed = $6,
			contribution_count = $7,
			first_contribution_at = $8,
			last_contribution_at = $9
		WHERE address = $1
	`
	res, err := t.tx.ExecContext(ctx, query,
		rec.Address.Hex(),
		rec.Verified,
		nullableAddress(rec.VerifiedBy),
		nullableTime(rec.VerifiedAt),
		rec.CumulativeAmount,
		rec.HasContributed,
		int64(rec.ContributionCount),
		nullableTime(rec.FirstContributionAt),
		nullableTime(rec.LastContributionAt),
	)
	if err != nil {
		return fmt.Errorf("save party: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save party %s: %w", rec.Address.Hex(), sentinel.ErrNotFound)
	}
	return nil
}

func (t *pgTx) Config(ctx context.Context) (*models.CampaignConfig, error) {
	return loadConfig(ctx, t.tx, "FOR SHARE")
}

func (t *pgTx) ConfigForUpdate(ctx context.Context) (*models.CampaignConfig, error) {
	return loadConfig(ctx, t.tx, "FOR UPDATE")
}

func (t *pgTx) SaveConfig(ctx context.Context, cfg *models.CampaignConfig) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE campaign_config
		SET treasury = $1, exchange_rate = $2, max_fiat = $3, paused = $4, updated_at = NOW()
		WHERE id = 1
	`, cfg.Treasury.Hex(), cfg.ExchangeRate, cfg.MaxContributionFiat, cfg.Paused)
	if err != nil {
		return fmt.Errorf("save campaign config: %w", err)
	}

	verifiers := make([]string, 0, len(cfg.Verifiers))
	for v := range cfg.Verifiers {
		verifiers = append(verifiers, v.Hex())
	}
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM campaign_verifiers WHERE NOT (address = ANY($1::text[]))`, pq.Array(verifiers)); err != nil {
		return fmt.Errorf("prune verifiers: %w", err)
	}
	for _, v := range verifiers {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO campaign_verifiers (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`, v); err != nil {
			return fmt.Errorf("insert verifier: %w", err)
		}
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, event audit.Event) error {
	if t.events == nil {
		return nil
	}
	return t.events.Emit(txcontext.WithTx(ctx, t.tx), event)
}

// loadConfig reads the single configuration row and the verifier set.
// lockClause is empty, "FOR SHARE", or "FOR UPDATE".
func loadConfig(ctx context.Context, q queryer, lockClause string) (*models.CampaignConfig, error) {
	var (
		cfg      models.CampaignConfig
		owner    string
		treasury string
	)
	err := q.QueryRowContext(ctx, `
		SELECT owner, treasury, exchange_rate, max_fiat, paused
		FROM campaign_config WHERE id = 1 `+lockClause,
	).Scan(&owner, &treasury, &cfg.ExchangeRate, &cfg.MaxContributionFiat, &cfg.Paused)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load campaign config: %w", err)
	}
	if err := cfg.Owner.UnmarshalText([]byte(owner)); err != nil {
		return nil, fmt.Errorf("decode owner: %w", err)
	}
	if err := cfg.Treasury.UnmarshalText([]byte(treasury)); err != nil {
		return nil, fmt.Errorf("decode treasury: %w", err)
	}

	rows, err := q.QueryContext(ctx, `SELECT address FROM campaign_verifiers`)
	if err != nil {
		return nil, fmt.Errorf("load verifiers: %w", err)
	}
	defer rows.Close()
	cfg.Verifiers = make(map[domain.Address]struct{})
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan verifier: %w", err)
		}
		var v domain.Address
		if err := v.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("decode verifier: %w", err)
		}
		cfg.Verifiers[v] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifiers: %w", err)
	}
	return &cfg, nil
}

func scanParty(row *sql.Row) (*models.PartyRecord, error) {
	var (
		rec        models.PartyRecord
		address    string
		verifiedBy sql.NullString
		verifiedAt sql.NullTime
		firstAt    sql.NullTime
		lastAt     sql.NullTime
		count      int64
	)
	err := row.Scan(
		&address,
		&rec.Verified,
		&verifiedBy,
		&verifiedAt,
		&rec.CumulativeAmount,
		&rec.HasContributed,
		&count,
		&firstAt,
		&lastAt,
	)
	if err != nil {
		return nil, err
	}
	if err := rec.Address.UnmarshalText([]byte(address)); err != nil {
		return nil, fmt.Errorf("decode party address: %w", err)
	}
	if verifiedBy.Valid {
		if err := rec.VerifiedBy.UnmarshalText([]byte(verifiedBy.String)); err != nil {
			return nil, fmt.Errorf("decode verified_by: %w", err)
		}
	}
	rec.VerifiedAt = verifiedAt.Time
	rec.FirstContributionAt = firstAt.Time
	rec.LastContributionAt = lastAt.Time
	rec.ContributionCount = uint64(count)
	return &rec, nil
}

func nullableAddress(a domain.Address) any {
	if a.IsZero() {
		return nil
	}
	return a.Hex()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
