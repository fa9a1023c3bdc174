// Package memory provides an in-process Store. Records are copied on the way
// in and out, so callers never share state with the store. Atomic stages its
// writes on a private copy and publishes it only when fn succeeds, so readers
// outside the transaction never see partial or rolled-back state.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/contribution"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/sale"
	crowdsalestore "github.com/xraph/crowdsale/store"
	"github.com/xraph/crowdsale/types"
)

var _ crowdsalestore.Store = (*Store)(nil)

type contributionKey struct {
	round uint64
	addr  types.Address
}

type roleKey struct {
	role access.Role
	addr types.Address
}

// data is everything the store holds; Atomic snapshots it as a unit.
type data struct {
	state         sale.State
	rounds        map[uint64]round.Round
	contributions map[contributionKey]contribution.Contribution
	events        []event.Event
	balances      map[types.Address]types.Amount
	supply        types.Amount
	roles         map[roleKey]struct{}
}

func newData() *data {
	return &data{
		rounds:        make(map[uint64]round.Round),
		contributions: make(map[contributionKey]contribution.Contribution),
		balances:      make(map[types.Address]types.Amount),
		roles:         make(map[roleKey]struct{}),
	}
}

func (d *data) clone() *data {
	c := *d
	c.state.Layout = slices.Clone(d.state.Layout)
	c.rounds = maps.Clone(d.rounds)
	c.contributions = maps.Clone(d.contributions)
	c.events = slices.Clone(d.events)
	c.balances = maps.Clone(d.balances)
	c.roles = maps.Clone(d.roles)
	return &c
}

type Store struct {
	mu   sync.RWMutex
	d    *data
	txMu sync.Mutex

	closed bool
}

type txKey struct{}

// staged returns the working copy of the transaction carried by ctx.
func staged(ctx context.Context) (*data, bool) {
	d, ok := ctx.Value(txKey{}).(*data)
	return d, ok
}

// view runs fn against the transaction's working copy when ctx carries one,
// and against the committed data otherwise.
func (s *Store) view(ctx context.Context, fn func(d *data)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := staged(ctx); ok {
		fn(d)
		return
	}
	fn(s.d)
}

// update applies fn to the transaction's working copy. Outside a transaction
// it runs as its own single-write transaction.
func (s *Store) update(ctx context.Context, fn func(d *data) error) error {
	d, ok := staged(ctx)
	if !ok {
		return s.Atomic(ctx, func(ctx context.Context) error { return s.update(ctx, fn) })
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(d)
}

func New() *Store {
	return &Store{d: newData()}
}

// ──────────────────────────────────────────────────
// Sale state
// ──────────────────────────────────────────────────

func (s *Store) GetSaleState(ctx context.Context) (*sale.State, error) {
	var st sale.State
	s.view(ctx, func(d *data) {
		st = d.state
		st.Layout = slices.Clone(st.Layout)
	})
	return &st, nil
}

func (s *Store) PutSaleState(ctx context.Context, st *sale.State) error {
	cp := *st
	cp.Layout = slices.Clone(st.Layout)
	return s.update(ctx, func(d *data) error {
		d.state = cp
		return nil
	})
}

// ──────────────────────────────────────────────────
// Rounds
// ──────────────────────────────────────────────────

func (s *Store) CreateRound(ctx context.Context, r *round.Round) error {
	return s.update(ctx, func(d *data) error {
		if _, exists := d.rounds[r.ID]; exists {
			return fmt.Errorf("crowdsale/memory: create round %d: already exists", r.ID)
		}
		d.rounds[r.ID] = *r
		return nil
	})
}

func (s *Store) GetRound(ctx context.Context, roundID uint64) (*round.Round, error) {
	var (
		r  round.Round
		ok bool
	)
	s.view(ctx, func(d *data) { r, ok = d.rounds[roundID] })
	if !ok {
		return nil, fmt.Errorf("%w: %d", crowdsale.ErrRoundNotFound, roundID)
	}
	return &r, nil
}

func (s *Store) UpdateRound(ctx context.Context, r *round.Round) error {
	return s.update(ctx, func(d *data) error {
		if _, ok := d.rounds[r.ID]; !ok {
			return fmt.Errorf("%w: %d", crowdsale.ErrRoundNotFound, r.ID)
		}
		d.rounds[r.ID] = *r
		return nil
	})
}

func (s *Store) ListRounds(ctx context.Context) ([]*round.Round, error) {
	var out []*round.Round
	s.view(ctx, func(d *data) {
		out = make([]*round.Round, 0, len(d.rounds))
		for _, r := range d.rounds {
			out = append(out, &r)
		}
	})
	slices.SortFunc(out, func(a, b *round.Round) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// ──────────────────────────────────────────────────
// Contributions
// ──────────────────────────────────────────────────

func (s *Store) GetContribution(ctx context.Context, roundID uint64, addr types.Address) (*contribution.Contribution, error) {
	var (
		c  contribution.Contribution
		ok bool
	)
	s.view(ctx, func(d *data) { c, ok = d.contributions[contributionKey{roundID, addr}] })
	if !ok {
		return nil, crowdsale.ErrContributionNotFound
	}
	return &c, nil
}

func (s *Store) PutContribution(ctx context.Context, c *contribution.Contribution) error {
	cp := *c
	return s.update(ctx, func(d *data) error {
		d.contributions[contributionKey{cp.RoundID, cp.Contributor}] = cp
		return nil
	})
}

func (s *Store) ListContributions(ctx context.Context, roundID uint64) ([]*contribution.Contribution, error) {
	var out []*contribution.Contribution
	s.view(ctx, func(d *data) {
		for k, c := range d.contributions {
			if k.round == roundID {
				out = append(out, &c)
			}
		}
	})
	slices.SortFunc(out, func(a, b *contribution.Contribution) int {
		return a.Contributor.Cmp(b.Contributor)
	})
	return out, nil
}

// ──────────────────────────────────────────────────
// Event log
// ──────────────────────────────────────────────────

func (s *Store) AppendEvent(ctx context.Context, e *event.Event) error {
	return s.update(ctx, func(d *data) error {
		e.Seq = uint64(len(d.events)) + 1
		d.events = append(d.events, *e)
		return nil
	})
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var out []*event.Event
	s.view(ctx, func(d *data) {
		// Seq n lives at index n-1.
		start := min(int(opts.AfterSeq), len(d.events))
		for _, e := range d.events[start:] {
			if !opts.Matches(&e) {
				continue
			}
			out = append(out, &e)
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
	})
	return out, nil
}

// ──────────────────────────────────────────────────
// Entitlement token
// ──────────────────────────────────────────────────

func (s *Store) TokenBalance(ctx context.Context, account types.Address) (types.Amount, error) {
	var bal types.Amount
	s.view(ctx, func(d *data) { bal = d.balances[account] })
	return bal, nil
}

func (s *Store) TokenSupply(ctx context.Context) (types.Amount, error) {
	var supply types.Amount
	s.view(ctx, func(d *data) { supply = d.supply })
	return supply, nil
}

func (s *Store) CreditTokens(ctx context.Context, account types.Address, amount types.Amount) error {
	return s.update(ctx, func(d *data) error {
		supply, err := d.supply.Add(amount)
		if err != nil {
			return fmt.Errorf("crowdsale/memory: credit tokens: %w", err)
		}
		bal, err := d.balances[account].Add(amount)
		if err != nil {
			return fmt.Errorf("crowdsale/memory: credit tokens: %w", err)
		}
		d.supply = supply
		d.balances[account] = bal
		return nil
	})
}

func (s *Store) HasRole(ctx context.Context, role access.Role, account types.Address) (bool, error) {
	var ok bool
	s.view(ctx, func(d *data) { _, ok = d.roles[roleKey{role, account}] })
	return ok, nil
}

func (s *Store) GrantRole(ctx context.Context, role access.Role, account types.Address) error {
	return s.update(ctx, func(d *data) error {
		d.roles[roleKey{role, account}] = struct{}{}
		return nil
	})
}

func (s *Store) RevokeRole(ctx context.Context, role access.Role, account types.Address) error {
	return s.update(ctx, func(d *data) error {
		delete(d.roles, roleKey{role, account})
		return nil
	})
}

func (s *Store) RoleMembers(ctx context.Context, role access.Role) ([]types.Address, error) {
	var out []types.Address
	s.view(ctx, func(d *data) {
		for k := range d.roles {
			if k.role == role {
				out = append(out, k.addr)
			}
		}
	})
	slices.SortFunc(out, func(a, b types.Address) int { return a.Cmp(b) })
	return out, nil
}

// ──────────────────────────────────────────────────
// Transactions and lifecycle
// ──────────────────────────────────────────────────

// Atomic runs fn against a private copy of the store and publishes the copy
// only if fn succeeds. Transactions are serialized with each other; a nested
// call joins the enclosing transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := staged(ctx); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return crowdsale.ErrStoreClosed
	}
	work := s.d.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, work)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return crowdsale.ErrStoreClosed
	}
	s.d = work
	return nil
}

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return crowdsale.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
