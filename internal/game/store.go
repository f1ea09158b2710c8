package game

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TeamStore persists team records. Implementations hand out independent
// copies and reject a SaveTeam whose Version does not match the stored one
// with ErrVersionConflict. A successful save increments Version in place.
type TeamStore interface {
	CreateTeam(ctx context.Context, t *Team) error
	GetTeam(ctx context.Context, id uuid.UUID) (*Team, error)
	SaveTeam(ctx context.Context, t *Team) error
	ListTeamIDs(ctx context.Context) ([]uuid.UUID, error)
	// ListTeamsByTier returns members of tier in standings order. limit <= 0
	// means no limit.
	ListTeamsByTier(ctx context.Context, tier Tier, limit int) ([]*Team, error)
}

type MatchStore interface {
	CreateMatch(ctx context.Context, m *Match) error
	SaveMatch(ctx context.Context, m *Match) error
	GetMatch(ctx context.Context, id uuid.UUID) (*Match, error)
	// ListLiveMatches returns unfinished matches, newest first.
	ListLiveMatches(ctx context.Context, limit int) ([]*Match, error)
	// ListUnsettledMatches returns matches whose result has not been folded
	// into both teams yet.
	ListUnsettledMatches(ctx context.Context) ([]*Match, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Store interface {
	TeamStore
	MatchStore
}

// Publisher receives live match updates. Implementations must not block the
// caller for longer than a local hand-off.
type Publisher interface {
	Publish(ctx context.Context, matchID uuid.UUID, update MatchUpdate) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, uuid.UUID, MatchUpdate) error { return nil }
