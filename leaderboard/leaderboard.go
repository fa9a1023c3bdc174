// Package leaderboard folds the ledger event log into contributor rankings.
//
// The fold is pure: the same events always produce the same board, so a
// board can be rebuilt at any time by replaying the log from the start.
package leaderboard

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/types"
)

const (
	// DefaultLimit is the number of rows returned when Options.Limit is zero.
	DefaultLimit = 20
	// LegacyLabel names round 1 when Options.LegacyFirstRound is set.
	LegacyLabel = "Legacy Phase"

	replayPage = 500
)

// Options controls Build and Replay.
type Options struct {
	Limit            int
	LegacyFirstRound bool
}

// Row is one contributor's total across the counted rounds.
type Row struct {
	Rank   int           `json:"rank"`
	Buyer  types.Address `json:"buyer"`
	Wei    types.Amount  `json:"wei"`
	Tokens types.Amount  `json:"tokens"`
}

// RoundSummary describes one round as seen by the board.
type RoundSummary struct {
	ID         uint64       `json:"id"`
	Label      string       `json:"label"`
	Rate       types.Amount `json:"rate"`
	Raised     types.Amount `json:"raised"`
	Finalized  bool         `json:"finalized"`
	Successful bool         `json:"successful"`
	// Counted is false for rounds finalized as unsuccessful.
	Counted bool `json:"counted"`
}

// Board is the result of a fold.
type Board struct {
	Rows    []Row          `json:"rows"`
	Rounds  []RoundSummary `json:"rounds"`
	LastSeq uint64         `json:"last_seq"`
}

type tally struct {
	wei, tokens types.Amount
}

type roundKey struct {
	round uint64
	buyer types.Address
}

// Build folds events, which must be in Seq order, into a board.
func Build(events []*event.Event, opts Options) (*Board, error) {
	f := newFold()
	for _, e := range events {
		if err := f.add(e); err != nil {
			return nil, err
		}
	}
	return f.board(opts)
}

// Source lists events. event.Store implements it.
type Source interface {
	ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, opts event.ListOpts) ([]*event.Event, error)

// ListEvents implements Source.
func (f SourceFunc) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	return f(ctx, opts)
}

// Replay pages through the whole event log of src and folds it.
func Replay(ctx context.Context, src Source, opts Options) (*Board, error) {
	f := newFold()
	var after uint64
	for {
		page, err := src.ListEvents(ctx, event.ListOpts{
			AfterSeq: after,
			Kinds:    []event.Kind{event.KindRoundStarted, event.KindBought, event.KindFinalized, event.KindMetadataChanged},
			Limit:    replayPage,
		})
		if err != nil {
			return nil, fmt.Errorf("leaderboard: list events: %w", err)
		}
		for _, e := range page {
			if err := f.add(e); err != nil {
				return nil, err
			}
			after = e.Seq
		}
		if len(page) < replayPage {
			break
		}
	}
	return f.board(opts)
}

type fold struct {
	rounds  map[uint64]*RoundSummary
	order   []uint64
	byRound map[roundKey]*tally
	lastSeq uint64
}

func newFold() *fold {
	return &fold{
		rounds:  make(map[uint64]*RoundSummary),
		byRound: make(map[roundKey]*tally),
	}
}

func (f *fold) round(id uint64) *RoundSummary {
	r, ok := f.rounds[id]
	if !ok {
		r = &RoundSummary{ID: id, Counted: true}
		f.rounds[id] = r
		f.order = append(f.order, id)
	}
	return r
}

func (f *fold) add(e *event.Event) error {
	f.lastSeq = max(f.lastSeq, e.Seq)
	switch e.Kind {
	case event.KindRoundStarted:
		r := f.round(e.RoundID)
		r.Rate = e.Rate
		r.Label = e.Title
	case event.KindMetadataChanged:
		f.round(e.RoundID).Label = e.Title
	case event.KindFinalized:
		r := f.round(e.RoundID)
		r.Finalized, r.Successful = true, e.Successful
		r.Counted = e.Successful
	case event.KindBought:
		r := f.round(e.RoundID)
		raised, err := r.Raised.Add(e.Amount)
		if err != nil {
			return fmt.Errorf("leaderboard: round %d raised: %w", e.RoundID, err)
		}
		r.Raised = raised

		k := roundKey{round: e.RoundID, buyer: e.Account}
		t, ok := f.byRound[k]
		if !ok {
			t = &tally{}
			f.byRound[k] = t
		}
		if t.wei, err = t.wei.Add(e.Amount); err != nil {
			return fmt.Errorf("leaderboard: wei for %s: %w", e.Account.Hex(), err)
		}
		if t.tokens, err = t.tokens.Add(e.Tokens); err != nil {
			return fmt.Errorf("leaderboard: tokens for %s: %w", e.Account.Hex(), err)
		}
	}
	return nil
}

func (f *fold) board(opts Options) (*Board, error) {
	totals := make(map[types.Address]*tally)
	for k, t := range f.byRound {
		if !f.rounds[k.round].Counted {
			continue
		}
		sum, ok := totals[k.buyer]
		if !ok {
			sum = &tally{}
			totals[k.buyer] = sum
		}
		var err error
		if sum.wei, err = sum.wei.Add(t.wei); err != nil {
			return nil, fmt.Errorf("leaderboard: total wei: %w", err)
		}
		if sum.tokens, err = sum.tokens.Add(t.tokens); err != nil {
			return nil, fmt.Errorf("leaderboard: total tokens: %w", err)
		}
	}

	rows := make([]Row, 0, len(totals))
	for buyer, t := range totals {
		if t.wei.IsZero() {
			continue
		}
		rows = append(rows, Row{Buyer: buyer, Wei: t.wei, Tokens: t.tokens})
	}
	slices.SortFunc(rows, func(a, b Row) int {
		if c := b.Wei.Cmp(a.Wei); c != 0 {
			return c
		}
		return bytes.Compare(a.Buyer.Bytes(), b.Buyer.Bytes())
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}

	summaries := make([]RoundSummary, 0, len(f.order))
	for _, id := range f.order {
		r := *f.rounds[id]
		switch {
		case id == 1 && opts.LegacyFirstRound:
			r.Label = LegacyLabel
		case r.Label == "":
			r.Label = "Round " + strconv.FormatUint(id, 10)
		}
		summaries = append(summaries, r)
	}
	slices.SortFunc(summaries, func(a, b RoundSummary) int { return cmp.Compare(a.ID, b.ID) })

	return &Board{Rows: rows, Rounds: summaries, LastSeq: f.lastSeq}, nil
}
