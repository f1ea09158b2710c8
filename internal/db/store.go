package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kickoff/internal/game"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements game.Store on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

var _ game.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", game.ErrPersistence, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) CreateTeam(ctx context.Context, t *game.Team) error {
	t.Version = 1
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode team: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO kickoff.teams (id, name, tier, points, goals_for, goals_against, version, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, t.ID, t.Name, int(t.League.Tier), t.League.Points, t.League.GoalsFor, t.League.GoalsAgainst, t.Version, doc, t.CreatedAt)
	if isUniqueViolation(err) {
		return game.ErrVersionConflict
	}
	if err != nil {
		return persistenceError("insert team", err)
	}
	return nil
}

func (s *Store) GetTeam(ctx context.Context, id uuid.UUID) (*game.Team, error) {
	var doc []byte
	var version int64
	err := s.pool.QueryRow(ctx, `
		SELECT doc, version
		FROM kickoff.teams
		WHERE id = $1
	`, id).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrTeamNotFound
	}
	if err != nil {
		return nil, persistenceError("get team", err)
	}
	return decodeTeam(doc, version)
}

func decodeTeam(doc []byte, version int64) (*game.Team, error) {
	var t game.Team
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("decode team: %w", err)
	}
	t.Version = version
	return &t, nil
}

// SaveTeam writes the whole record if nobody else saved it since it was
// read. On success t.Version moves to the stored version.
func (s *Store) SaveTeam(ctx context.Context, t *game.Team) error {
	prev := t.Version
	t.Version = prev + 1
	doc, err := json.Marshal(t)
	if err != nil {
		t.Version = prev
		return fmt.Errorf("encode team: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE kickoff.teams
		SET name = $2, tier = $3, points = $4, goals_for = $5, goals_against = $6,
			version = $7, doc = $8, updated_at = $9
		WHERE id = $1 AND version = $10
	`, t.ID, t.Name, int(t.League.Tier), t.League.Points, t.League.GoalsFor, t.League.GoalsAgainst,
		t.Version, doc, t.UpdatedAt, prev)
	if err != nil {
		t.Version = prev
		return persistenceError("update team", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	t.Version = prev
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM kickoff.teams WHERE id = $1)`, t.ID).Scan(&exists); err != nil {
		return persistenceError("check team", err)
	}
	if !exists {
		return game.ErrTeamNotFound
	}
	return game.ErrVersionConflict
}

func (s *Store) ListTeamIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM kickoff.teams ORDER BY id`)
	if err != nil {
		return nil, persistenceError("list teams", err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, persistenceError("scan team id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) ListTeamsByTier(ctx context.Context, tier game.Tier, limit int) ([]*game.Team, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT doc, version
		FROM kickoff.teams
		WHERE tier = $1
		ORDER BY points DESC, goals_for DESC, goals_against ASC, id
		LIMIT $2
	`, int(tier), lim)
	if err != nil {
		return nil, persistenceError("list tier", err)
	}
	defer rows.Close()
	var out []*game.Team
	for rows.Next() {
		var doc []byte
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, persistenceError("scan team", err)
		}
		t, err := decodeTeam(doc, version)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateMatch(ctx context.Context, m *game.Match) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode match: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO kickoff.matches (id, home_team_id, away_team_id, is_finished, settled, start_time, finished_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.HomeTeamID, m.AwayTeamID, m.IsFinished, m.Settled(), m.StartTime, finishedAt(m), doc)
	if err != nil {
		return persistenceError("insert match", err)
	}
	return nil
}

func finishedAt(m *game.Match) *time.Time {
	if m.FinishedAt.IsZero() {
		return nil
	}
	t := m.FinishedAt
	return &t
}

func (s *Store) SaveMatch(ctx context.Context, m *game.Match) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode match: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE kickoff.matches
		SET is_finished = $2, settled = $3, finished_at = $4, doc = $5
		WHERE id = $1
	`, m.ID, m.IsFinished, m.Settled(), finishedAt(m), doc)
	if err != nil {
		return persistenceError("update match", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrMatchNotFound
	}
	return nil
}

func (s *Store) GetMatch(ctx context.Context, id uuid.UUID) (*game.Match, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM kickoff.matches WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrMatchNotFound
	}
	if err != nil {
		return nil, persistenceError("get match", err)
	}
	return decodeMatch(doc)
}

func decodeMatch(doc []byte) (*game.Match, error) {
	var m game.Match
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("decode match: %w", err)
	}
	return &m, nil
}

func (s *Store) ListLiveMatches(ctx context.Context, limit int) ([]*game.Match, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	return s.queryMatches(ctx, `
		SELECT doc
		FROM kickoff.matches
		WHERE NOT is_finished
		ORDER BY start_time DESC, id
		LIMIT $1
	`, lim)
}

func (s *Store) ListUnsettledMatches(ctx context.Context) ([]*game.Match, error) {
	return s.queryMatches(ctx, `
		SELECT doc
		FROM kickoff.matches
		WHERE NOT settled
		ORDER BY start_time, id
	`)
}

func (s *Store) queryMatches(ctx context.Context, query string, args ...any) ([]*game.Match, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, persistenceError("list matches", err)
	}
	defer rows.Close()
	var out []*game.Match
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, persistenceError("scan match", err)
		}
		m, err := decodeMatch(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM kickoff.matches
		WHERE is_finished AND settled AND finished_at < $1
	`, cutoff)
	if err != nil {
		return 0, persistenceError("purge matches", err)
	}
	return tag.RowsAffected(), nil
}
