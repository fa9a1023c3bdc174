// Package access implements the role capability check used by every
// privileged crowdsale operation.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnauthorized is returned when the caller lacks the required role.
var ErrUnauthorized = errors.New("access: caller lacks required role")

// Role is a capability held by an address.
type Role uint8

const (
	// RoleOwner administers the sale and the token.
	RoleOwner Role = iota + 1
	// RoleMinter may mint entitlement tokens.
	RoleMinter
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleMinter:
		return "minter"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole parses a role name.
func ParseRole(s string) (Role, error) {
	switch s {
	case "owner":
		return RoleOwner, nil
	case "minter":
		return RoleMinter, nil
	default:
		return 0, fmt.Errorf("access: unknown role %q", s)
	}
}

// Checker reports whether an address holds a role.
type Checker interface {
	HasRole(ctx context.Context, role Role, account common.Address) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, role Role, account common.Address) (bool, error)

// HasRole implements Checker.
func (f CheckerFunc) HasRole(ctx context.Context, role Role, account common.Address) (bool, error) {
	return f(ctx, role, account)
}

// Require returns nil if caller holds role according to c, and an error
// wrapping ErrUnauthorized otherwise. The zero address never holds a role.
func Require(ctx context.Context, c Checker, caller common.Address, role Role) error {
	if caller == (common.Address{}) {
		return fmt.Errorf("%w: %s required, caller is the zero address", ErrUnauthorized, role)
	}
	ok, err := c.HasRole(ctx, role, caller)
	if err != nil {
		return fmt.Errorf("access: check %s for %s: %w", role, caller.Hex(), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s required, caller %s", ErrUnauthorized, role, caller.Hex())
	}
	return nil
}

// Owner returns a Checker granting RoleOwner to exactly owner.
func Owner(owner common.Address) Checker {
	return CheckerFunc(func(_ context.Context, role Role, account common.Address) (bool, error) {
		return role == RoleOwner && account == owner, nil
	})
}
