package crowdsale

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/sale"
	"github.com/xraph/crowdsale/types"
)

// RoundParams are the arguments of StartRound.
type RoundParams struct {
	Rate        types.Amount `json:"rate"`
	SoftCap     types.Amount `json:"soft_cap_wei"`
	EndTime     time.Time    `json:"end_time"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
}

// ──────────────────────────────────────────────────
// Shared checks
// ──────────────────────────────────────────────────

func (l *Ledger) state(ctx context.Context) (*sale.State, error) {
	st, err := l.store.GetSaleState(ctx)
	if err != nil {
		return nil, fmt.Errorf("crowdsale: load sale state: %w", err)
	}
	return st, nil
}

// authorize loads the sale state and checks that caller is the owner.
func (l *Ledger) authorize(ctx context.Context, caller types.Address) (*sale.State, error) {
	st, err := l.state(ctx)
	if err != nil {
		return nil, err
	}
	if !st.Initialized {
		return nil, ErrNotInitialized
	}
	if err := access.Require(ctx, access.Owner(st.Owner), caller, access.RoleOwner); err != nil {
		return nil, err
	}
	return st, nil
}

// roundFor resolves CurrentRound and loads the round.
func (l *Ledger) roundFor(ctx context.Context, st *sale.State, roundID uint64) (*round.Round, error) {
	if roundID == CurrentRound {
		if st.CurrentRoundID == 0 {
			return nil, ErrNoActiveRound
		}
		roundID = st.CurrentRoundID
	}
	r, err := l.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (l *Ledger) appendEvent(ctx context.Context, e *event.Event) error {
	if err := l.store.AppendEvent(ctx, e); err != nil {
		return fmt.Errorf("crowdsale: append %s event: %w", e.Kind, err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Round lifecycle
// ──────────────────────────────────────────────────

// StartRound opens round currentRoundId+1. The previous round, if any, must
// be finalized and the held balance must be zero.
func (l *Ledger) StartRound(ctx context.Context, caller types.Address, p RoundParams) (*round.Round, error) {
	var created *round.Round

	err := l.run(ctx, "start_round", func(ctx context.Context, t *tx) error {
		st, err := l.authorize(ctx, caller)
		if err != nil {
			return err
		}

		now := l.now()
		if p.Rate.IsZero() {
			return ErrZeroRate
		}
		if !p.EndTime.After(now) {
			return fmt.Errorf("%w: end time %s, now %s", ErrEndTimeInPast,
				p.EndTime.UTC().Format(time.RFC3339), now.Format(time.RFC3339))
		}
		if st.CurrentRoundID >= 1 {
			prev, err := l.store.GetRound(ctx, st.CurrentRoundID)
			if err != nil {
				return err
			}
			if !prev.Finalized {
				return fmt.Errorf("%w: round %d", ErrPreviousRoundNotFinalized, prev.ID)
			}
			if !st.Balance.IsZero() {
				return fmt.Errorf("%w: %s wei held", ErrBalanceNotDrained, st.Balance)
			}
		}

		r := &round.Round{
			Entity:      types.NewEntity(now),
			ID:          st.CurrentRoundID + 1,
			Rate:        p.Rate,
			SoftCap:     p.SoftCap,
			EndTime:     p.EndTime.UTC(),
			Title:       p.Title,
			Description: p.Description,
		}
		if err := l.store.CreateRound(ctx, r); err != nil {
			return fmt.Errorf("crowdsale: create round %d: %w", r.ID, err)
		}

		st.CurrentRoundID = r.ID
		st.Touch(now)
		if err := l.store.PutSaleState(ctx, st); err != nil {
			return fmt.Errorf("crowdsale: save sale state: %w", err)
		}

		e := event.New(event.KindRoundStarted, r.ID, now)
		e.Account = caller
		e.Rate, e.SoftCap, e.EndTime = r.Rate, r.SoftCap, r.EndTime
		e.Title, e.Description = r.Title, r.Description
		if err := l.appendEvent(ctx, e); err != nil {
			return err
		}

		created = r
		t.after(func(ctx context.Context) {
			l.logger.Info("round started",
				"round", r.ID,
				"rate", r.Rate.String(),
				"soft_cap_wei", r.SoftCap.String(),
				"end_time", r.EndTime,
			)
			l.plugins.EmitRoundStarted(ctx, r)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Finalize seals the current round.
func (l *Ledger) Finalize(ctx context.Context, caller types.Address) (*round.Round, error) {
	return l.FinalizeRound(ctx, caller, CurrentRound)
}

// FinalizeRound seals roundID once its end time has passed. The round is
// successful when its total raised reaches the soft cap. The decision is
// permanent; a second call is rejected with ErrAlreadyFinalized.
func (l *Ledger) FinalizeRound(ctx context.Context, caller types.Address, roundID uint64) (*round.Round, error) {
	var sealed *round.Round

	err := l.run(ctx, "finalize", func(ctx context.Context, t *tx) error {
		st, err := l.authorize(ctx, caller)
		if err != nil {
			return err
		}
		r, err := l.roundFor(ctx, st, roundID)
		if err != nil {
			return err
		}

		now := l.now()
		if r.Finalized {
			return fmt.Errorf("%w: round %d", ErrAlreadyFinalized, r.ID)
		}
		if now.Before(r.EndTime) {
			return fmt.Errorf("%w: round %d ends at %s", ErrRoundNotEnded, r.ID, r.EndTime.Format(time.RFC3339))
		}

		r.Finalized = true
		r.Successful = !r.TotalRaised.LessThan(r.SoftCap)
		r.Touch(now)
		if err := l.store.UpdateRound(ctx, r); err != nil {
			return fmt.Errorf("crowdsale: update round %d: %w", r.ID, err)
		}

		e := event.New(event.KindFinalized, r.ID, now)
		e.Account = caller
		e.Amount = r.TotalRaised
		e.SoftCap = r.SoftCap
		e.Successful = r.Successful
		if err := l.appendEvent(ctx, e); err != nil {
			return err
		}

		sealed = r
		t.after(func(ctx context.Context) {
			l.logger.Info("round finalized",
				"round", r.ID,
				"successful", r.Successful,
				"total_raised", r.TotalRaised.String(),
			)
			l.plugins.EmitRoundFinalized(ctx, r)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

// SetEndTime corrects the end time of an unfinalized round. A finalized
// round is rejected with ErrRoundFinalized; callers that want to ignore that
// case can test for it.
func (l *Ledger) SetEndTime(ctx context.Context, caller types.Address, roundID uint64, endTime time.Time) (*round.Round, error) {
	if endTime.IsZero() {
		return nil, ValidationError{Field: "end_time", Message: "must be set"}
	}
	return l.updateRound(ctx, "set_end_time", caller, roundID, func(r *round.Round, e *event.Event) error {
		if r.Finalized {
			return fmt.Errorf("%w: round %d", ErrRoundFinalized, r.ID)
		}
		r.EndTime = endTime.UTC()
		e.Kind = event.KindEndTimeChanged
		e.EndTime = r.EndTime
		return nil
	})
}

// SetRoundMetadata replaces the title and description of a round.
func (l *Ledger) SetRoundMetadata(ctx context.Context, caller types.Address, roundID uint64, title, description string) (*round.Round, error) {
	return l.updateRound(ctx, "set_round_metadata", caller, roundID, func(r *round.Round, e *event.Event) error {
		r.Title, r.Description = title, description
		e.Kind = event.KindMetadataChanged
		e.Title, e.Description = title, description
		return nil
	})
}

func (l *Ledger) updateRound(ctx context.Context, op string, caller types.Address, roundID uint64, apply func(*round.Round, *event.Event) error) (*round.Round, error) {
	var updated *round.Round

	err := l.run(ctx, op, func(ctx context.Context, t *tx) error {
		st, err := l.authorize(ctx, caller)
		if err != nil {
			return err
		}
		r, err := l.roundFor(ctx, st, roundID)
		if err != nil {
			return err
		}

		now := l.now()
		e := event.New("", r.ID, now)
		e.Account = caller
		if err := apply(r, e); err != nil {
			return err
		}
		r.Touch(now)
		if err := l.store.UpdateRound(ctx, r); err != nil {
			return fmt.Errorf("crowdsale: update round %d: %w", r.ID, err)
		}
		if err := l.appendEvent(ctx, e); err != nil {
			return err
		}

		updated = r
		t.after(func(ctx context.Context) {
			l.logger.Info("round updated", "round", r.ID, "change", string(e.Kind))
			l.plugins.EmitRoundUpdated(ctx, r)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
