package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Teams and matches are stored as JSONB documents. The columns next to the
// document exist for ordering, filtering and the optimistic version check.
const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS kickoff;

CREATE TABLE IF NOT EXISTS kickoff.teams (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL,
	tier          SMALLINT NOT NULL,
	points        INTEGER NOT NULL DEFAULT 0,
	goals_for     INTEGER NOT NULL DEFAULT 0,
	goals_against INTEGER NOT NULL DEFAULT 0,
	version       BIGINT NOT NULL,
	doc           JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS teams_standings_idx
	ON kickoff.teams (tier, points DESC, goals_for DESC, goals_against ASC, id);

CREATE TABLE IF NOT EXISTS kickoff.matches (
	id           UUID PRIMARY KEY,
	home_team_id UUID NOT NULL,
	away_team_id UUID NOT NULL,
	is_finished  BOOLEAN NOT NULL DEFAULT false,
	settled      BOOLEAN NOT NULL DEFAULT false,
	start_time   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ,
	doc          JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS matches_live_idx
	ON kickoff.matches (start_time DESC) WHERE NOT is_finished;

CREATE INDEX IF NOT EXISTS matches_unsettled_idx
	ON kickoff.matches (start_time) WHERE NOT settled;
`

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
