package postgres

import (
	"context"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Name    string
	Version string
	Up      string
	Down    string
}

// Migrations lists the schema changes for the crowdsale store, oldest first.
var Migrations = []Migration{
	{
		Name:    "create_crowdsale_sale",
		Version: "20260301000001",
		Up: `
CREATE TABLE IF NOT EXISTS crowdsale_sale (
    id               SMALLINT PRIMARY KEY CHECK (id = 1),
    initialized      BOOLEAN NOT NULL DEFAULT FALSE,
    owner            TEXT NOT NULL DEFAULT '',
    treasury         TEXT NOT NULL DEFAULT '',
    current_round_id BIGINT NOT NULL DEFAULT 0,
    balance          NUMERIC(78, 0) NOT NULL DEFAULT 0,
    implementation   TEXT NOT NULL DEFAULT '',
    layout           TEXT[] NOT NULL DEFAULT '{}',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
		Down: `DROP TABLE IF EXISTS crowdsale_sale`,
	},
	{
		Name:    "create_crowdsale_rounds",
		Version: "20260301000002",
		Up: `
CREATE TABLE IF NOT EXISTS crowdsale_rounds (
    id              BIGINT PRIMARY KEY,
    rate            NUMERIC(78, 0) NOT NULL,
    soft_cap        NUMERIC(78, 0) NOT NULL,
    end_time        TIMESTAMPTZ NOT NULL,
    total_raised    NUMERIC(78, 0) NOT NULL DEFAULT 0,
    finalized       BOOLEAN NOT NULL DEFAULT FALSE,
    successful      BOOLEAN NOT NULL DEFAULT FALSE,
    funds_withdrawn BOOLEAN NOT NULL DEFAULT FALSE,
    title           TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
		Down: `DROP TABLE IF EXISTS crowdsale_rounds`,
	},
	{
		Name:    "create_crowdsale_contributions",
		Version: "20260301000003",
		Up: `
CREATE TABLE IF NOT EXISTS crowdsale_contributions (
    round_id            BIGINT NOT NULL REFERENCES crowdsale_rounds (id),
    contributor         TEXT NOT NULL,
    contribution_wei    NUMERIC(78, 0) NOT NULL DEFAULT 0,
    entitlement_tokens  NUMERIC(78, 0) NOT NULL DEFAULT 0,
    claimed_or_refunded BOOLEAN NOT NULL DEFAULT FALSE,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (round_id, contributor)
);`,
		Down: `DROP TABLE IF EXISTS crowdsale_contributions`,
	},
	{
		Name:    "create_crowdsale_events",
		Version: "20260301000004",
		Up: `
CREATE TABLE IF NOT EXISTS crowdsale_events (
    seq          BIGINT PRIMARY KEY,
    id           TEXT NOT NULL UNIQUE,
    kind         TEXT NOT NULL,
    round_id     BIGINT NOT NULL DEFAULT 0,
    account      TEXT NOT NULL DEFAULT '',
    amount       NUMERIC(78, 0) NOT NULL DEFAULT 0,
    tokens       NUMERIC(78, 0) NOT NULL DEFAULT 0,
    rate         NUMERIC(78, 0) NOT NULL DEFAULT 0,
    soft_cap     NUMERIC(78, 0) NOT NULL DEFAULT 0,
    end_time     TIMESTAMPTZ,
    title        TEXT NOT NULL DEFAULT '',
    description  TEXT NOT NULL DEFAULT '',
    successful   BOOLEAN NOT NULL DEFAULT FALSE,
    version      TEXT NOT NULL DEFAULT '',
    prev_version TEXT NOT NULL DEFAULT '',
    at           TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crowdsale_events_round ON crowdsale_events (round_id, seq);
CREATE INDEX IF NOT EXISTS idx_crowdsale_events_kind ON crowdsale_events (kind, seq);`,
		Down: `DROP TABLE IF EXISTS crowdsale_events`,
	},
	{
		Name:    "create_crowdsale_token",
		Version: "20260301000005",
		Up: `
CREATE TABLE IF NOT EXISTS crowdsale_token_balances (
    account TEXT PRIMARY KEY,
    balance NUMERIC(78, 0) NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS crowdsale_token_supply (
    id     SMALLINT PRIMARY KEY CHECK (id = 1),
    supply NUMERIC(78, 0) NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS crowdsale_token_roles (
    role    SMALLINT NOT NULL,
    account TEXT NOT NULL,
    PRIMARY KEY (role, account)
);`,
		Down: `
DROP TABLE IF EXISTS crowdsale_token_roles;
DROP TABLE IF EXISTS crowdsale_token_supply;
DROP TABLE IF EXISTS crowdsale_token_balances;`,
	},
}

// migrate applies every migration whose version is not yet recorded.
func migrate(ctx context.Context, conn querier, migrations []Migration) error {
	if _, err := conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS crowdsale_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		if err := conn.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM crowdsale_migrations WHERE version = $1)`, m.Version,
		).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", m.Name, err)
		}
		if applied {
			continue
		}
		if _, err := conn.Exec(ctx, m.Up); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		if _, err := conn.Exec(ctx,
			`INSERT INTO crowdsale_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name,
		); err != nil {
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}
	}
	return nil
}
