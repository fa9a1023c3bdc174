package crowdsale

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/crowdsale/contribution"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/types"
)

// Buy records amount of base currency from buyer against the current round.
// The entitlement grows by amount × rate; nothing is minted until Claim.
func (l *Ledger) Buy(ctx context.Context, buyer types.Address, amount types.Amount) (*contribution.Contribution, error) {
	if buyer == types.ZeroAddress {
		return nil, ValidationError{Field: "buyer", Message: "must not be the zero address"}
	}

	var recorded *contribution.Contribution

	err := l.run(ctx, "buy", func(ctx context.Context, t *tx) error {
		st, err := l.state(ctx)
		if err != nil {
			return err
		}
		r, err := l.roundFor(ctx, st, CurrentRound)
		if err != nil {
			return err
		}

		now := l.now()
		if r.Finalized {
			return fmt.Errorf("%w: round %d", ErrRoundFinalized, r.ID)
		}
		if !r.Accepting(now) {
			return fmt.Errorf("%w: round %d", ErrRoundEnded, r.ID)
		}
		if amount.IsZero() {
			return ErrZeroAmount
		}

		c, err := l.contribution(ctx, r.ID, buyer)
		if err != nil {
			return err
		}

		// Compute every new total before writing anything.
		tokens, err := amount.Mul(r.Rate)
		if err != nil {
			return fmt.Errorf("%w: %s × rate %s", ErrAmountOverflow, amount, r.Rate)
		}
		wei, err1 := c.ContributionWei.Add(amount)
		owed, err2 := c.EntitlementTokens.Add(tokens)
		raised, err3 := r.TotalRaised.Add(amount)
		held, err4 := st.Balance.Add(amount)
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			return fmt.Errorf("%w: %w", ErrAmountOverflow, err)
		}

		if c.CreatedAt.IsZero() {
			c.Entity = types.NewEntity(now)
		}
		c.ContributionWei, c.EntitlementTokens = wei, owed
		c.Touch(now)
		r.TotalRaised = raised
		r.Touch(now)
		st.Balance = held
		st.Touch(now)

		if err := l.store.PutContribution(ctx, c); err != nil {
			return fmt.Errorf("crowdsale: save contribution: %w", err)
		}
		if err := l.store.UpdateRound(ctx, r); err != nil {
			return fmt.Errorf("crowdsale: update round %d: %w", r.ID, err)
		}
		if err := l.store.PutSaleState(ctx, st); err != nil {
			return fmt.Errorf("crowdsale: save sale state: %w", err)
		}

		e := event.New(event.KindBought, r.ID, now)
		e.Account, e.Amount, e.Tokens = buyer, amount, tokens
		if err := l.appendEvent(ctx, e); err != nil {
			return err
		}

		recorded = c
		t.after(func(ctx context.Context) {
			l.logger.Info("contribution recorded",
				"round", r.ID,
				"buyer", buyer.Hex(),
				"wei", amount.String(),
				"tokens", tokens.String(),
			)
			l.plugins.EmitBought(ctx, e)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

// contribution loads a record, returning an empty one if the address never
// contributed to the round.
func (l *Ledger) contribution(ctx context.Context, roundID uint64, addr types.Address) (*contribution.Contribution, error) {
	c, err := l.store.GetContribution(ctx, roundID, addr)
	if errors.Is(err, ErrContributionNotFound) {
		return contribution.Empty(roundID, addr), nil
	}
	if err != nil {
		return nil, fmt.Errorf("crowdsale: load contribution: %w", err)
	}
	return c, nil
}
