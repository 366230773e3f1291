package database

import (
	"context"
	"fmt"
)

// schema is applied at startup when the database is enabled. Valuations and
// edges are archived, never deleted, so both tables carry an archived flag.
const schema = `
CREATE TABLE IF NOT EXISTS valuations (
	prop_id          TEXT NOT NULL,
	provider         TEXT NOT NULL,
	sport            TEXT NOT NULL DEFAULT 'NBA',
	player_name      TEXT NOT NULL DEFAULT '',
	market_type      TEXT NOT NULL DEFAULT '',
	calculated_value DOUBLE PRECISION NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	archived         BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (prop_id, provider)
);
CREATE INDEX IF NOT EXISTS idx_valuations_player ON valuations (player_name) WHERE NOT archived;
CREATE INDEX IF NOT EXISTS idx_valuations_market ON valuations (market_type) WHERE NOT archived;

CREATE TABLE IF NOT EXISTS edges (
	prop_id          TEXT NOT NULL,
	provider         TEXT NOT NULL,
	sport            TEXT NOT NULL DEFAULT 'NBA',
	edge_value       DOUBLE PRECISION NOT NULL,
	true_probability DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	archived         BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (prop_id, provider)
);
CREATE INDEX IF NOT EXISTS idx_edges_prop ON edges (prop_id) WHERE NOT archived;

CREATE TABLE IF NOT EXISTS portfolio_runs (
	id              BIGSERIAL PRIMARY KEY,
	selected_props  JSONB NOT NULL,
	total_exposure  NUMERIC(12, 2) NOT NULL,
	expected_return NUMERIC(12, 4) NOT NULL,
	algorithm       TEXT NOT NULL,
	run_at          TIMESTAMPTZ NOT NULL
);
`

// Migrate applies the pipeline schema
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
