package token

import (
	"context"

	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/types"
)

type Store interface {
	TokenBalance(ctx context.Context, account types.Address) (types.Amount, error)
	TokenSupply(ctx context.Context) (types.Amount, error)
	// CreditTokens adds amount to account's balance and to the total supply.
	CreditTokens(ctx context.Context, account types.Address, amount types.Amount) error

	HasRole(ctx context.Context, role access.Role, account types.Address) (bool, error)
	GrantRole(ctx context.Context, role access.Role, account types.Address) error
	RevokeRole(ctx context.Context, role access.Role, account types.Address) error
	RoleMembers(ctx context.Context, role access.Role) ([]types.Address, error)
}
