package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one forward-only schema step.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// advisoryLockID serializes migrations across replicas starting together.
const advisoryLockID = 7_356_201

// Migrations is the ordered schema history.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "create_campaign_config",
		Up: `
CREATE TABLE IF NOT EXISTS campaign_config (
    id             SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    owner          TEXT NOT NULL,
    treasury       TEXT NOT NULL,
    exchange_rate  NUMERIC(78, 0) NOT NULL CHECK (exchange_rate > 0),
    max_fiat       NUMERIC(78, 0) NOT NULL CHECK (max_fiat > 0),
    paused         BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS campaign_verifiers (
    address    TEXT PRIMARY KEY,
    added_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	},
	{
		Version: 2,
		Name:    "create_parties",
		Up: `
CREATE TABLE IF NOT EXISTS parties (
    address                TEXT PRIMARY KEY,
    verified               BOOLEAN NOT NULL DEFAULT FALSE,
    verified_by            TEXT,
    verified_at            TIMESTAMPTZ,
    cumulative_amount      NUMERIC(78, 0) NOT NULL DEFAULT 0 CHECK (cumulative_amount >= 0),
    has_contributed        BOOLEAN NOT NULL DEFAULT FALSE,
    contribution_count     BIGINT NOT NULL DEFAULT 0,
    first_contribution_at  TIMESTAMPTZ,
    last_contribution_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_parties_contributed ON parties (has_contributed) WHERE has_contributed;
`,
	},
	{
		Version: 3,
		Name:    "create_audit_outbox",
		Up: `
CREATE TABLE IF NOT EXISTS outbox (
    id              UUID PRIMARY KEY,
    aggregate_type  TEXT NOT NULL,
    aggregate_id    TEXT NOT NULL,
    event_type      TEXT NOT NULL,
    payload         JSONB NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    published_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox (created_at) WHERE published_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_events (
    id          UUID PRIMARY KEY,
    category    TEXT NOT NULL,
    timestamp   TIMESTAMPTZ NOT NULL,
    action      TEXT NOT NULL,
    party       TEXT,
    actor       TEXT,
    amount      TEXT NOT NULL DEFAULT '',
    decision    TEXT NOT NULL DEFAULT '',
    reason      TEXT NOT NULL DEFAULT '',
    request_id  TEXT NOT NULL DEFAULT '',
    details     JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_events_party ON audit_events (party, timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events (timestamp DESC);
`,
	},
}

// Migrate applies pending migrations in version order, each in its own
// transaction, and records them in schema_migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, advisoryLockID)
	}()

	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INT PRIMARY KEY,
			name        TEXT NOT NULL,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate migrations: %w", err)
	}

	for _, m := range Migrations {
		if applied[m.Version] {
			continue
		}
		if err := apply(ctx, conn, m); err != nil {
			return err
		}
	}
	return nil
}

func apply(ctx context.Context, conn *sql.Conn, m Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}
