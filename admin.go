package crowdsale

import (
	"context"
	"fmt"
	"slices"

	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/sale"
	"github.com/xraph/crowdsale/types"
)

// Initialize sets the owner and treasury. It can run once per store.
func (l *Ledger) Initialize(ctx context.Context, owner, treasury types.Address) error {
	if owner == types.ZeroAddress {
		return ValidationError{Field: "owner", Message: "must not be the zero address"}
	}
	if treasury == types.ZeroAddress {
		return ValidationError{Field: "treasury", Message: "must not be the zero address"}
	}

	return l.run(ctx, "initialize", func(ctx context.Context, t *tx) error {
		st, err := l.state(ctx)
		if err != nil {
			return err
		}
		if st.Initialized {
			return ErrAlreadyInitialized
		}

		now := l.now()
		st.Entity = types.NewEntity(now)
		st.Initialized = true
		st.Owner, st.Treasury = owner, treasury
		if st.Implementation == "" {
			st.Implementation = l.version
		}
		if err := l.store.PutSaleState(ctx, st); err != nil {
			return fmt.Errorf("crowdsale: save sale state: %w", err)
		}

		e := event.New(event.KindInitialized, 0, now)
		e.Account = owner
		e.Version = st.Implementation
		if err := l.appendEvent(ctx, e); err != nil {
			return err
		}
		t.after(func(ctx context.Context) {
			l.logger.Info("sale initialized", "owner", owner.Hex(), "treasury", treasury.Hex())
			l.plugins.EmitAdminChanged(ctx, e)
		})
		return nil
	})
}

// SetTreasury changes the withdrawal destination.
func (l *Ledger) SetTreasury(ctx context.Context, caller, treasury types.Address) error {
	if treasury == types.ZeroAddress {
		return ValidationError{Field: "treasury", Message: "must not be the zero address"}
	}
	return l.changeAdmin(ctx, "set_treasury", caller, event.KindTreasuryChanged, treasury, func(st *sale.State) {
		st.Treasury = treasury
	})
}

// TransferOwnership hands administrative authority to newOwner.
func (l *Ledger) TransferOwnership(ctx context.Context, caller, newOwner types.Address) error {
	if newOwner == types.ZeroAddress {
		return ValidationError{Field: "owner", Message: "must not be the zero address"}
	}
	return l.changeAdmin(ctx, "transfer_ownership", caller, event.KindOwnershipTransferred, newOwner, func(st *sale.State) {
		st.Owner = newOwner
	})
}

func (l *Ledger) changeAdmin(ctx context.Context, op string, caller types.Address, kind event.Kind, account types.Address, apply func(*sale.State)) error {
	return l.run(ctx, op, func(ctx context.Context, t *tx) error {
		st, err := l.authorize(ctx, caller)
		if err != nil {
			return err
		}
		now := l.now()
		apply(st)
		st.Touch(now)
		if err := l.store.PutSaleState(ctx, st); err != nil {
			return fmt.Errorf("crowdsale: save sale state: %w", err)
		}

		e := event.New(kind, 0, now)
		e.Account = account
		if err := l.appendEvent(ctx, e); err != nil {
			return err
		}
		t.after(func(ctx context.Context) {
			l.logger.Info("sale admin changed", "change", string(kind), "account", account.Hex())
			l.plugins.EmitAdminChanged(ctx, e)
		})
		return nil
	})
}

// SetImplementation records version as the active release. layout must
// start with the active layout: releases may only append storage fields.
func (l *Ledger) SetImplementation(ctx context.Context, caller types.Address, version string, layout []string) error {
	if version == "" {
		return ValidationError{Field: "version", Message: "must be set"}
	}

	var from string
	return l.run(ctx, "upgrade", func(ctx context.Context, t *tx) error {
		st, err := l.authorize(ctx, caller)
		if err != nil {
			return err
		}
		if err := CheckLayout(st.Layout, layout); err != nil {
			return err
		}

		now := l.now()
		from = st.Implementation
		st.Implementation = version
		st.Layout = slices.Clone(layout)
		st.Touch(now)
		if err := l.store.PutSaleState(ctx, st); err != nil {
			return fmt.Errorf("crowdsale: save sale state: %w", err)
		}

		e := event.New(event.KindUpgraded, 0, now)
		e.Account = caller
		e.Version, e.PrevVersion = version, from
		if err := l.appendEvent(ctx, e); err != nil {
			return err
		}
		t.after(func(ctx context.Context) {
			l.logger.Info("implementation upgraded", "from", from, "to", version)
			l.plugins.EmitUpgraded(ctx, from, version)
		})
		return nil
	})
}

// CheckLayout returns ErrLayoutNotAppendOnly unless next keeps every field
// of current at the same position.
func CheckLayout(current, next []string) error {
	if len(next) < len(current) {
		return fmt.Errorf("%w: %d fields dropped", ErrLayoutNotAppendOnly, len(current)-len(next))
	}
	for i, field := range current {
		if next[i] != field {
			return fmt.Errorf("%w: slot %d is %q, was %q", ErrLayoutNotAppendOnly, i, next[i], field)
		}
	}
	return nil
}
