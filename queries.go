package crowdsale

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/crowdsale/contribution"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/sale"
	"github.com/xraph/crowdsale/types"
)

// ──────────────────────────────────────────────────
// Read-only queries
// ──────────────────────────────────────────────────

// SaleState returns the global state.
func (l *Ledger) SaleState(ctx context.Context) (*sale.State, error) {
	return l.state(ctx)
}

// Owner returns the administrative address.
func (l *Ledger) Owner(ctx context.Context) (types.Address, error) {
	st, err := l.state(ctx)
	if err != nil {
		return types.ZeroAddress, err
	}
	return st.Owner, nil
}

// Treasury returns the withdrawal destination.
func (l *Ledger) Treasury(ctx context.Context) (types.Address, error) {
	st, err := l.state(ctx)
	if err != nil {
		return types.ZeroAddress, err
	}
	return st.Treasury, nil
}

// CurrentRoundID returns the id of the most recent round, or 0.
func (l *Ledger) CurrentRoundID(ctx context.Context) (uint64, error) {
	st, err := l.state(ctx)
	if err != nil {
		return 0, err
	}
	return st.CurrentRoundID, nil
}

// Balance returns the base currency currently held across all rounds.
func (l *Ledger) Balance(ctx context.Context) (types.Amount, error) {
	st, err := l.state(ctx)
	if err != nil {
		return types.Amount{}, err
	}
	return st.Balance, nil
}

// Round returns a round by id; CurrentRound selects the current one.
func (l *Ledger) Round(ctx context.Context, roundID uint64) (*round.Round, error) {
	st, err := l.state(ctx)
	if err != nil {
		return nil, err
	}
	return l.roundFor(ctx, st, roundID)
}

// Rounds returns every round, oldest first.
func (l *Ledger) Rounds(ctx context.Context) ([]*round.Round, error) {
	return l.store.ListRounds(ctx)
}

// RoundInfo returns a round with its phase at the current time. Before
// the first round it returns a pending Info with a nil Round.
func (l *Ledger) RoundInfo(ctx context.Context, roundID uint64) (*round.Info, error) {
	st, err := l.state(ctx)
	if err != nil {
		return nil, err
	}
	r, err := l.roundFor(ctx, st, roundID)
	if roundID == CurrentRound && errors.Is(err, ErrNoActiveRound) {
		return &round.Info{Phase: round.PhasePending}, nil
	}
	if err != nil {
		return nil, err
	}
	return &round.Info{
		Round:     r,
		Phase:     r.PhaseAt(l.now()),
		IsCurrent: r.ID == st.CurrentRoundID,
	}, nil
}

// Contribution returns the record for (roundID, addr). An address that
// never contributed gets a zero record.
func (l *Ledger) Contribution(ctx context.Context, roundID uint64, addr types.Address) (*contribution.Contribution, error) {
	st, err := l.state(ctx)
	if err != nil {
		return nil, err
	}
	r, err := l.roundFor(ctx, st, roundID)
	if err != nil {
		return nil, err
	}
	return l.contribution(ctx, r.ID, addr)
}

// Contributions returns every record of a round.
func (l *Ledger) Contributions(ctx context.Context, roundID uint64) ([]*contribution.Contribution, error) {
	r, err := l.Round(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return l.store.ListContributions(ctx, r.ID)
}

// Events lists the event log.
func (l *Ledger) Events(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	return l.store.ListEvents(ctx, opts)
}

// VerifyRound checks that a round's total raised equals the sum of its
// contributions and returns ErrLedgerInconsistent if not.
func (l *Ledger) VerifyRound(ctx context.Context, roundID uint64) error {
	r, err := l.Round(ctx, roundID)
	if err != nil {
		return err
	}
	cs, err := l.store.ListContributions(ctx, r.ID)
	if err != nil {
		return err
	}
	var sum types.Amount
	for _, c := range cs {
		if sum, err = sum.Add(c.ContributionWei); err != nil {
			return fmt.Errorf("%w: round %d: %w", ErrLedgerInconsistent, r.ID, err)
		}
	}
	if !sum.Equal(r.TotalRaised) {
		return fmt.Errorf("%w: round %d total raised %s, contributions sum %s",
			ErrLedgerInconsistent, r.ID, r.TotalRaised, sum)
	}
	return nil
}
