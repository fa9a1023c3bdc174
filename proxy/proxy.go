// Package proxy provides the upgradeable entry point of the sale: a stable
// address whose calls are dispatched to the active release of the ledger.
//
// All releases share the entry point's store, address and serialization
// lock, so state survives an upgrade untouched. A release declares its
// storage layout as an ordered field list; an upgrade is accepted only when
// the new layout keeps every existing field in place and appends new ones.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/id"
	"github.com/xraph/crowdsale/store"
	"github.com/xraph/crowdsale/types"
)

var (
	ErrUnknownRelease   = errors.New("proxy: unknown release")
	ErrDuplicateRelease = errors.New("proxy: release already registered")
	ErrNotOpen          = errors.New("proxy: entry point is not open")
)

// BaseLayout is the storage layout of the first multi-round release.
var BaseLayout = []string{
	"owner", "treasury", "currentRoundId", "balance",
	"rounds", "contributions",
}

// Release is one implementation version of the ledger.
type Release struct {
	Version string
	// Layout lists the storage fields the release reads and writes,
	// oldest first.
	Layout []string
	// Options are applied after the entry point's shared options.
	Options []crowdsale.Option
}

// EntryPoint dispatches to the active release.
type EntryPoint struct {
	store   store.Store
	address types.Address
	shared  []crowdsale.Option
	logger  *slog.Logger
	lock    sync.Mutex

	mu       sync.RWMutex
	releases map[string]Release

	active atomic.Pointer[crowdsale.Ledger]
}

// Option configures an EntryPoint.
type Option func(*EntryPoint)

// WithLedgerOptions adds options applied to every release.
func WithLedgerOptions(opts ...crowdsale.Option) Option {
	return func(p *EntryPoint) { p.shared = append(p.shared, opts...) }
}

// WithRelease registers a release.
func WithRelease(r Release) Option {
	return func(p *EntryPoint) {
		_ = p.Register(r) //nolint:errcheck // duplicate releases during construction are ignored
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *EntryPoint) { p.logger = l }
}

// New returns an entry point at address over s.
func New(s store.Store, address types.Address, opts ...Option) *EntryPoint {
	p := &EntryPoint{
		store:    s,
		address:  address,
		logger:   slog.Default(),
		releases: make(map[string]Release),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds a release to the version table.
func (p *EntryPoint) Register(r Release) error {
	if r.Version == "" {
		return fmt.Errorf("%w: empty version", ErrUnknownRelease)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.releases[r.Version]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRelease, r.Version)
	}
	r.Layout = slices.Clone(r.Layout)
	p.releases[r.Version] = r
	return nil
}

// Releases returns the registered versions, sorted.
func (p *EntryPoint) Releases() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.releases))
	for v := range p.releases {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func (p *EntryPoint) release(version string) (Release, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.releases[version]
	if !ok {
		return Release{}, fmt.Errorf("%w: %q", ErrUnknownRelease, version)
	}
	return r, nil
}

func (p *EntryPoint) build(r Release) *crowdsale.Ledger {
	opts := make([]crowdsale.Option, 0, len(p.shared)+len(r.Options)+4)
	opts = append(opts, crowdsale.WithLogger(p.logger))
	opts = append(opts, p.shared...)
	opts = append(opts, r.Options...)
	opts = append(opts,
		crowdsale.WithAddress(p.address),
		crowdsale.WithVersion(r.Version),
		crowdsale.WithLock(&p.lock),
	)
	return crowdsale.New(p.store, opts...)
}

// Open activates the release recorded in the store. On a fresh store it
// initializes the sale with owner and treasury and activates initial.
func (p *EntryPoint) Open(ctx context.Context, owner, treasury types.Address, initial string) error {
	st, err := p.store.GetSaleState(ctx)
	if err != nil {
		return fmt.Errorf("proxy: load sale state: %w", err)
	}

	version := st.Implementation
	if !st.Initialized || version == "" {
		version = initial
	}
	rel, err := p.release(version)
	if err != nil {
		return err
	}

	l := p.build(rel)
	if err := l.Start(ctx); err != nil {
		return err
	}
	if !st.Initialized {
		if err := l.Initialize(ctx, owner, treasury); err != nil {
			return err
		}
	}
	if st.Implementation != rel.Version || len(st.Layout) == 0 {
		admin := st.Owner
		if !st.Initialized {
			admin = owner
		}
		if err := l.SetImplementation(ctx, admin, rel.Version, rel.Layout); err != nil {
			return err
		}
	}

	p.active.Store(l)
	p.logger.Info("entry point open",
		"activation", id.NewReleaseID().String(),
		"address", p.address.Hex(),
		"release", rel.Version,
	)
	return nil
}

// Ledger returns the active release.
func (p *EntryPoint) Ledger() *crowdsale.Ledger { return p.active.Load() }

// Address returns the entry point address.
func (p *EntryPoint) Address() types.Address { return p.address }

// Version returns the active release version, or "" before Open.
func (p *EntryPoint) Version() string {
	if l := p.active.Load(); l != nil {
		return l.Version()
	}
	return ""
}

// Upgrade swaps the active release. Only the sale owner may upgrade, and the
// new release's layout must extend the stored one.
func (p *EntryPoint) Upgrade(ctx context.Context, caller types.Address, version string) error {
	cur := p.active.Load()
	if cur == nil {
		return ErrNotOpen
	}
	rel, err := p.release(version)
	if err != nil {
		return err
	}

	next := p.build(rel)
	if err := next.Start(ctx); err != nil {
		return err
	}

	err = cur.Exclusive(ctx, func(ctx context.Context) error {
		if err := cur.SetImplementation(ctx, caller, rel.Version, rel.Layout); err != nil {
			return err
		}
		p.active.Store(next)
		return nil
	})
	if err != nil {
		p.active.CompareAndSwap(next, cur)
		return err
	}
	p.logger.Info("entry point upgraded",
		"activation", id.NewReleaseID().String(),
		"address", p.address.Hex(),
		"from", cur.Version(),
		"to", rel.Version,
	)
	return nil
}

// Stop stops the active release, closing the store.
func (p *EntryPoint) Stop() error {
	if l := p.active.Load(); l != nil {
		return l.Stop()
	}
	return p.store.Close()
}
