// Package token implements the entitlement token authority: a mintable
// balance registry whose mint operation is restricted to holders of
// access.RoleMinter.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/id"
	"github.com/xraph/crowdsale/types"
)

var (
	ErrMintToZeroAddress = errors.New("token: mint to the zero address")
	ErrZeroMint          = errors.New("token: mint amount is zero")
	ErrAlreadyDeployed   = errors.New("token: owner already set")
)

// Receipt describes one completed mint.
type Receipt struct {
	ID     id.MintID     `json:"id"`
	Minter types.Address `json:"minter"`
	To     types.Address `json:"to"`
	Amount types.Amount  `json:"amount"`
	At     time.Time     `json:"at"`
}

// Authority is the token registry.
type Authority struct {
	store  Store
	name   string
	symbol string
	logger *slog.Logger
	clock  func() time.Time
}

// Option configures an Authority.
type Option func(*Authority)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authority) { a.logger = l }
}

// WithMetadata sets the token name and symbol.
func WithMetadata(name, symbol string) Option {
	return func(a *Authority) { a.name, a.symbol = name, symbol }
}

// WithClock overrides the time source used for receipts.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.clock = now }
}

// New returns an Authority backed by s.
func New(s Store, opts ...Option) *Authority {
	a := &Authority{
		store:  s,
		name:   "COFUND",
		symbol: "CFD",
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the token name.
func (a *Authority) Name() string { return a.name }

// Symbol returns the token symbol.
func (a *Authority) Symbol() string { return a.symbol }

// Decimals returns the token decimals.
func (a *Authority) Decimals() int { return types.EtherDecimals }

// Deploy grants RoleOwner to owner if the token has no owner yet.
func (a *Authority) Deploy(ctx context.Context, owner types.Address) error {
	if owner == types.ZeroAddress {
		return fmt.Errorf("token: deploy: %w", access.ErrUnauthorized)
	}
	owners, err := a.store.RoleMembers(ctx, access.RoleOwner)
	if err != nil {
		return fmt.Errorf("token: deploy: %w", err)
	}
	if len(owners) > 0 {
		if owners[0] == owner {
			return nil
		}
		return ErrAlreadyDeployed
	}
	return a.store.GrantRole(ctx, access.RoleOwner, owner)
}

// Mint credits amount new tokens to to. caller must hold RoleMinter.
func (a *Authority) Mint(ctx context.Context, caller, to types.Address, amount types.Amount) (*Receipt, error) {
	if err := access.Require(ctx, a.store, caller, access.RoleMinter); err != nil {
		return nil, err
	}
	if to == types.ZeroAddress {
		return nil, ErrMintToZeroAddress
	}
	if amount.IsZero() {
		return nil, ErrZeroMint
	}
	if err := a.store.CreditTokens(ctx, to, amount); err != nil {
		return nil, fmt.Errorf("token: mint: %w", err)
	}

	r := &Receipt{ID: id.NewMintID(), Minter: caller, To: to, Amount: amount, At: a.clock().UTC()}
	a.logger.Debug("token minted",
		"receipt", r.ID.String(),
		"to", to.Hex(),
		"amount", amount.String(),
	)
	return r, nil
}

// GrantRole gives role to account. caller must hold RoleOwner.
func (a *Authority) GrantRole(ctx context.Context, caller types.Address, role access.Role, account types.Address) error {
	if err := access.Require(ctx, a.store, caller, access.RoleOwner); err != nil {
		return err
	}
	if err := a.store.GrantRole(ctx, role, account); err != nil {
		return fmt.Errorf("token: grant %s: %w", role, err)
	}
	a.logger.Info("token role granted", "role", role.String(), "account", account.Hex())
	return nil
}

// RevokeRole removes role from account. caller must hold RoleOwner.
func (a *Authority) RevokeRole(ctx context.Context, caller types.Address, role access.Role, account types.Address) error {
	if err := access.Require(ctx, a.store, caller, access.RoleOwner); err != nil {
		return err
	}
	if err := a.store.RevokeRole(ctx, role, account); err != nil {
		return fmt.Errorf("token: revoke %s: %w", role, err)
	}
	a.logger.Info("token role revoked", "role", role.String(), "account", account.Hex())
	return nil
}

// HasRole reports whether account holds role.
func (a *Authority) HasRole(ctx context.Context, role access.Role, account types.Address) (bool, error) {
	return a.store.HasRole(ctx, role, account)
}

// BalanceOf returns account's token balance.
func (a *Authority) BalanceOf(ctx context.Context, account types.Address) (types.Amount, error) {
	return a.store.TokenBalance(ctx, account)
}

// TotalSupply returns the number of tokens minted so far.
func (a *Authority) TotalSupply(ctx context.Context) (types.Amount, error) {
	return a.store.TokenSupply(ctx)
}
