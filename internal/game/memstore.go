package game

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and by the API when no
// database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	teams   map[uuid.UUID]*Team
	matches map[uuid.UUID]*Match
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		teams:   make(map[uuid.UUID]*Team),
		matches: make(map[uuid.UUID]*Match),
	}
}

func (m *MemoryStore) CreateTeam(_ context.Context, t *Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[t.ID]; ok {
		return ErrVersionConflict
	}
	t.Version = 1
	m.teams[t.ID] = t.Clone()
	return nil
}

func (m *MemoryStore) GetTeam(_ context.Context, id uuid.UUID) (*Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, ErrTeamNotFound
	}
	return t.Clone(), nil
}

func (m *MemoryStore) SaveTeam(_ context.Context, t *Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.teams[t.ID]
	if !ok {
		return ErrTeamNotFound
	}
	if cur.Version != t.Version {
		return ErrVersionConflict
	}
	t.Version++
	m.teams[t.ID] = t.Clone()
	return nil
}

func (m *MemoryStore) ListTeamIDs(_ context.Context) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(m.teams))
	for id := range m.teams {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareIDs)
	return ids, nil
}

func (m *MemoryStore) ListTeamsByTier(_ context.Context, tier Tier, limit int) ([]*Team, error) {
	m.mu.RLock()
	out := make([]*Team, 0)
	for _, t := range m.teams {
		if t.League.Tier == tier {
			out = append(out, t.Clone())
		}
	}
	m.mu.RUnlock()
	SortStandings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CreateMatch(_ context.Context, match *Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches[match.ID] = match.Clone()
	return nil
}

func (m *MemoryStore) SaveMatch(_ context.Context, match *Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.matches[match.ID]; !ok {
		return ErrMatchNotFound
	}
	m.matches[match.ID] = match.Clone()
	return nil
}

func (m *MemoryStore) GetMatch(_ context.Context, id uuid.UUID) (*Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match, ok := m.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return match.Clone(), nil
}

func (m *MemoryStore) ListLiveMatches(_ context.Context, limit int) ([]*Match, error) {
	return m.listMatches(limit, func(match *Match) bool { return !match.IsFinished }), nil
}

func (m *MemoryStore) ListUnsettledMatches(_ context.Context) ([]*Match, error) {
	return m.listMatches(0, func(match *Match) bool { return !match.Settled() }), nil
}

func (m *MemoryStore) listMatches(limit int, keep func(*Match) bool) []*Match {
	m.mu.RLock()
	out := make([]*Match, 0)
	for _, match := range m.matches {
		if keep(match) {
			out = append(out, match.Clone())
		}
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Match) int {
		if c := b.StartTime.Compare(a.StartTime); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemoryStore) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, match := range m.matches {
		if match.IsFinished && match.Settled() && match.FinishedAt.Before(cutoff) {
			delete(m.matches, id)
			n++
		}
	}
	return n, nil
}
