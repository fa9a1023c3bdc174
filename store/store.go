package store

import (
	"context"

	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/contribution"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/sale"
	"github.com/xraph/crowdsale/token"
	"github.com/xraph/crowdsale/types"
)

// Store is the unified storage interface for every crowdsale record.
// The sub-store method sets are declared explicitly so each backend can be
// checked against a single list.
type Store interface {
	// Sale state
	GetSaleState(ctx context.Context) (*sale.State, error)
	PutSaleState(ctx context.Context, s *sale.State) error

	// Rounds
	CreateRound(ctx context.Context, r *round.Round) error
	GetRound(ctx context.Context, roundID uint64) (*round.Round, error)
	UpdateRound(ctx context.Context, r *round.Round) error
	ListRounds(ctx context.Context) ([]*round.Round, error)

	// Contributions
	GetContribution(ctx context.Context, roundID uint64, contributor types.Address) (*contribution.Contribution, error)
	PutContribution(ctx context.Context, c *contribution.Contribution) error
	ListContributions(ctx context.Context, roundID uint64) ([]*contribution.Contribution, error)

	// Event log
	AppendEvent(ctx context.Context, e *event.Event) error
	ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error)

	// Entitlement token
	TokenBalance(ctx context.Context, account types.Address) (types.Amount, error)
	TokenSupply(ctx context.Context) (types.Amount, error)
	CreditTokens(ctx context.Context, account types.Address, amount types.Amount) error
	HasRole(ctx context.Context, role access.Role, account types.Address) (bool, error)
	GrantRole(ctx context.Context, role access.Role, account types.Address) error
	RevokeRole(ctx context.Context, role access.Role, account types.Address) error
	RoleMembers(ctx context.Context, role access.Role) ([]types.Address, error)

	// Atomic runs fn in a transaction. Every store call made with the ctx
	// passed to fn joins it. A nested Atomic joins the outer transaction.
	// If fn returns an error nothing fn wrote is kept.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time checks that the aggregate satisfies each sub-store.
var (
	_ sale.Store         = (Store)(nil)
	_ round.Store        = (Store)(nil)
	_ contribution.Store = (Store)(nil)
	_ event.Store        = (Store)(nil)
	_ token.Store        = (Store)(nil)
)
