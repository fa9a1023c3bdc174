package crowdsale

import (
	"context"
	"fmt"

	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/types"
)

// Each resolution makes every store write, the event included, before the
// external call (mint or payout), and the external call is the last step of
// the transaction. When it fails everything rolls back and the caller may
// retry. A call re-entering the ledger from inside it sees the flag already
// set and is rejected. If the commit fails after the call went out the error
// is ErrResolutionUncertain, which is not retryable.

// Claim mints the caller's entitlement for the current round.
func (l *Ledger) Claim(ctx context.Context, caller types.Address) (*event.Event, error) {
	return l.ClaimRound(ctx, caller, CurrentRound)
}

// ClaimRound mints the caller's entitlement for a successful round.
func (l *Ledger) ClaimRound(ctx context.Context, caller types.Address, roundID uint64) (*event.Event, error) {
	if l.minter == nil {
		return nil, ErrMinterNotConfigured
	}

	var claimed *event.Event

	err := l.run(ctx, "claim", func(ctx context.Context, t *tx) error {
		st, err := l.state(ctx)
		if err != nil {
			return err
		}
		r, err := l.roundFor(ctx, st, roundID)
		if err != nil {
			return err
		}
		if !r.Finalized {
			return fmt.Errorf("%w: round %d", ErrRoundNotFinalized, r.ID)
		}
		if !r.Successful {
			return fmt.Errorf("%w: round %d", ErrRoundNotSuccessful, r.ID)
		}

		c, err := l.contribution(ctx, r.ID, caller)
		if err != nil {
			return err
		}
		if c.ClaimedOrRefunded {
			return fmt.Errorf("%w: round %d, %s", ErrAlreadyResolved, r.ID, caller.Hex())
		}
		if c.EntitlementTokens.IsZero() {
			return fmt.Errorf("%w: round %d, %s", ErrNothingToClaim, r.ID, caller.Hex())
		}

		now := l.now()
		c.ClaimedOrRefunded = true
		c.Touch(now)
		if err := l.store.PutContribution(ctx, c); err != nil {
			return fmt.Errorf("crowdsale: save contribution: %w", err)
		}

		e := event.New(event.KindClaimed, r.ID, now)
		e.Account, e.Tokens = caller, c.EntitlementTokens
		if err := l.appendEvent(ctx, e); err != nil {
			return err
		}

		if _, err := l.minter.Mint(ctx, l.self, caller, c.EntitlementTokens); err != nil {
			return fmt.Errorf("%w: %w", ErrMintFailed, err)
		}
		t.settle("mint")

		claimed = e
		t.after(func(ctx context.Context) {
			l.logger.Info("entitlement claimed",
				"round", r.ID,
				"account", caller.Hex(),
				"tokens", e.Tokens.String(),
			)
			l.plugins.EmitClaimed(ctx, e)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Refund returns the caller's contribution to the current round.
func (l *Ledger) Refund(ctx context.Context, caller types.Address) (*event.Event, error) {
	return l.RefundRound(ctx, caller, CurrentRound)
}

// RefundRound returns the caller's contribution to a failed round.
func (l *Ledger) RefundRound(ctx context.Context, caller types.Address, roundID uint64) (*event.Event, error) {
	if l.payout == nil {
		return nil, ErrPayoutNotConfigured
	}

	var refunded *event.Event

	err := l.run(ctx, "refund", func(ctx context.Context, t *tx) error {
		st, err := l.state(ctx)
		if err != nil {
			return err
		}
		r, err := l.roundFor(ctx, st, roundID)
		if err != nil {
			return err
		}
		if !r.Finalized {
			return fmt.Errorf("%w: round %d", ErrRoundNotFinalized, r.ID)
		}
		if r.Successful {
			return fmt.Errorf("%w: round %d", ErrRoundSuccessful, r.ID)
		}

		c, err := l.contribution(ctx, r.ID, caller)
		if err != nil {
			return err
		}
		if c.ClaimedOrRefunded {
			return fmt.Errorf("%w: round %d, %s", ErrAlreadyResolved, r.ID, caller.Hex())
		}
		if c.ContributionWei.IsZero() {
			return fmt.Errorf("%w: round %d, %s", ErrNothingToRefund, r.ID, caller.Hex())
		}
		held, err := st.Balance.Sub(c.ContributionWei)
		if err != nil {
			return fmt.Errorf("%w: holds %s, owes %s", ErrInsufficientHoldings, st.Balance, c.ContributionWei)
		}

		now := l.now()
		c.ClaimedOrRefunded = true
		c.Touch(now)
		if err := l.store.PutContribution(ctx, c); err != nil {
			return fmt.Errorf("crowdsale: save contribution: %w", err)
		}
		st.Balance = held
		st.Touch(now)
		if err := l.store.PutSaleState(ctx, st); err != nil {
			return fmt.Errorf("crowdsale: save sale state: %w", err)
		}

		e := event.New(event.KindRefunded, r.ID, now)
		e.Account, e.Amount = caller, c.ContributionWei
		if err := l.appendEvent(ctx, e); err != nil {
			return err
		}

		if _, err := l.payout.Transfer(ctx, caller, c.ContributionWei); err != nil {
			return fmt.Errorf("%w: %w", ErrPayoutFailed, err)
		}
		t.settle("refund payout")

		refunded = e
		t.after(func(ctx context.Context) {
			l.logger.Info("contribution refunded",
				"round", r.ID,
				"account", caller.Hex(),
				"wei", e.Amount.String(),
			)
			l.plugins.EmitRefunded(ctx, e)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refunded, nil
}

// Withdraw pays the current round's raised funds to the treasury.
func (l *Ledger) Withdraw(ctx context.Context, caller types.Address) (*event.Event, error) {
	return l.WithdrawRound(ctx, caller, CurrentRound)
}

// WithdrawRound pays a successful round's total raised to the treasury.
func (l *Ledger) WithdrawRound(ctx context.Context, caller types.Address, roundID uint64) (*event.Event, error) {
	if l.payout == nil {
		return nil, ErrPayoutNotConfigured
	}

	var withdrawn *event.Event

	err := l.run(ctx, "withdraw", func(ctx context.Context, t *tx) error {
		st, err := l.authorize(ctx, caller)
		if err != nil {
			return err
		}
		r, err := l.roundFor(ctx, st, roundID)
		if err != nil {
			return err
		}
		if !r.Finalized {
			return fmt.Errorf("%w: round %d", ErrRoundNotFinalized, r.ID)
		}
		if !r.Successful {
			return fmt.Errorf("%w: round %d", ErrRoundNotSuccessful, r.ID)
		}
		if r.FundsWithdrawn {
			return fmt.Errorf("%w: round %d", ErrAlreadyWithdrawn, r.ID)
		}
		held, err := st.Balance.Sub(r.TotalRaised)
		if err != nil {
			return fmt.Errorf("%w: holds %s, owes %s", ErrInsufficientHoldings, st.Balance, r.TotalRaised)
		}

		now := l.now()
		r.FundsWithdrawn = true
		r.Touch(now)
		if err := l.store.UpdateRound(ctx, r); err != nil {
			return fmt.Errorf("crowdsale: update round %d: %w", r.ID, err)
		}
		st.Balance = held
		st.Touch(now)
		if err := l.store.PutSaleState(ctx, st); err != nil {
			return fmt.Errorf("crowdsale: save sale state: %w", err)
		}

		e := event.New(event.KindWithdrawn, r.ID, now)
		e.Account, e.Amount = st.Treasury, r.TotalRaised
		if err := l.appendEvent(ctx, e); err != nil {
			return err
		}

		// A successful round with a zero soft cap may have raised nothing.
		if !r.TotalRaised.IsZero() {
			if _, err := l.payout.Transfer(ctx, st.Treasury, r.TotalRaised); err != nil {
				return fmt.Errorf("%w: %w", ErrPayoutFailed, err)
			}
			t.settle("treasury payout")
		}

		withdrawn = e
		t.after(func(ctx context.Context) {
			l.logger.Info("round funds withdrawn",
				"round", r.ID,
				"treasury", e.Account.Hex(),
				"wei", e.Amount.String(),
			)
			l.plugins.EmitWithdrawn(ctx, e)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}
