package live

import (
	"context"
	"errors"

	"kickoff/internal/game"

	"github.com/google/uuid"
)

// Fanout publishes every update to each of its publishers in order.
type Fanout []game.Publisher

func (f Fanout) Publish(ctx context.Context, matchID uuid.UUID, update game.MatchUpdate) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, matchID, update); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
