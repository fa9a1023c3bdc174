package contribution

import (
	"context"

	"github.com/xraph/crowdsale/types"
)

// Store persists contribution records. GetContribution returns
// crowdsale.ErrContributionNotFound when the address never bought in the round.
type Store interface {
	GetContribution(ctx context.Context, roundID uint64, contributor types.Address) (*Contribution, error)
	PutContribution(ctx context.Context, c *Contribution) error
	ListContributions(ctx context.Context, roundID uint64) ([]*Contribution, error)
}
