package round

import "context"

// Store persists rounds. Get returns crowdsale.ErrRoundNotFound for unknown ids.
type Store interface {
	CreateRound(ctx context.Context, r *Round) error
	GetRound(ctx context.Context, roundID uint64) (*Round, error)
	UpdateRound(ctx context.Context, r *Round) error
	ListRounds(ctx context.Context) ([]*Round, error)
}
