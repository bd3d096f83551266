package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/carriage/carriage-api/internal/config"
)

func NewDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Schema creates the tables the repositories rely on. Rides are stored as JSON documents
// with the columns that scans filter on lifted out beside them.
const Schema = `
CREATE TABLE IF NOT EXISTS riders (
	id          TEXT PRIMARY KEY,
	first_name  TEXT NOT NULL DEFAULT '',
	last_name   TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT '',
	phone       TEXT NOT NULL DEFAULT '',
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS drivers (
	id            TEXT PRIMARY KEY,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	availability  JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS rides (
	id                TEXT PRIMARY KEY,
	data              JSONB NOT NULL,
	type              TEXT NOT NULL,
	status            TEXT NOT NULL,
	scheduling_state  TEXT NOT NULL,
	is_recurring      BOOLEAN NOT NULL DEFAULT FALSE,
	driver_id         TEXT,
	rider_ids         TEXT[] NOT NULL DEFAULT '{}',
	parent_ride_id    TEXT,
	recurrence_id     TIMESTAMPTZ,
	start_time        TIMESTAMPTZ NOT NULL,
	end_time          TIMESTAMPTZ NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS rides_occurrence_uniq
	ON rides (parent_ride_id, recurrence_id)
	WHERE parent_ride_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS rides_recurring_idx ON rides (is_recurring) WHERE is_recurring;
CREATE INDEX IF NOT EXISTS rides_rider_ids_idx ON rides USING GIN (rider_ids);
`

// Migrate applies Schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
