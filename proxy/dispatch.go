package proxy

import (
	"context"
	"time"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/contribution"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/sale"
	"github.com/xraph/crowdsale/types"
)

// ledger returns the active release or ErrNotOpen.
func (p *EntryPoint) ledger() (*crowdsale.Ledger, error) {
	l := p.active.Load()
	if l == nil {
		return nil, ErrNotOpen
	}
	return l, nil
}

func (p *EntryPoint) StartRound(ctx context.Context, caller types.Address, params crowdsale.RoundParams) (*round.Round, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.StartRound(ctx, caller, params)
}

func (p *EntryPoint) Buy(ctx context.Context, buyer types.Address, amount types.Amount) (*contribution.Contribution, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.Buy(ctx, buyer, amount)
}

func (p *EntryPoint) FinalizeRound(ctx context.Context, caller types.Address, roundID uint64) (*round.Round, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.FinalizeRound(ctx, caller, roundID)
}

func (p *EntryPoint) ClaimRound(ctx context.Context, caller types.Address, roundID uint64) (*event.Event, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.ClaimRound(ctx, caller, roundID)
}

func (p *EntryPoint) RefundRound(ctx context.Context, caller types.Address, roundID uint64) (*event.Event, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.RefundRound(ctx, caller, roundID)
}

func (p *EntryPoint) WithdrawRound(ctx context.Context, caller types.Address, roundID uint64) (*event.Event, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.WithdrawRound(ctx, caller, roundID)
}

func (p *EntryPoint) SetEndTime(ctx context.Context, caller types.Address, roundID uint64, endTime time.Time) (*round.Round, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.SetEndTime(ctx, caller, roundID, endTime)
}

func (p *EntryPoint) SetRoundMetadata(ctx context.Context, caller types.Address, roundID uint64, title, description string) (*round.Round, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.SetRoundMetadata(ctx, caller, roundID, title, description)
}

func (p *EntryPoint) SetTreasury(ctx context.Context, caller, treasury types.Address) error {
	l, err := p.ledger()
	if err != nil {
		return err
	}
	return l.SetTreasury(ctx, caller, treasury)
}

func (p *EntryPoint) TransferOwnership(ctx context.Context, caller, newOwner types.Address) error {
	l, err := p.ledger()
	if err != nil {
		return err
	}
	return l.TransferOwnership(ctx, caller, newOwner)
}

// Queries.

func (p *EntryPoint) SaleState(ctx context.Context) (*sale.State, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.SaleState(ctx)
}

func (p *EntryPoint) Round(ctx context.Context, roundID uint64) (*round.Round, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.Round(ctx, roundID)
}

func (p *EntryPoint) Rounds(ctx context.Context) ([]*round.Round, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.Rounds(ctx)
}

func (p *EntryPoint) RoundInfo(ctx context.Context, roundID uint64) (*round.Info, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.RoundInfo(ctx, roundID)
}

func (p *EntryPoint) Contribution(ctx context.Context, roundID uint64, addr types.Address) (*contribution.Contribution, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.Contribution(ctx, roundID, addr)
}

func (p *EntryPoint) Contributions(ctx context.Context, roundID uint64) ([]*contribution.Contribution, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.Contributions(ctx, roundID)
}

func (p *EntryPoint) Events(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	l, err := p.ledger()
	if err != nil {
		return nil, err
	}
	return l.Events(ctx, opts)
}
