package crowdsale

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/crowdsale/plugin"
	"github.com/xraph/crowdsale/store"
	"github.com/xraph/crowdsale/token"
	"github.com/xraph/crowdsale/types"
	"github.com/xraph/crowdsale/wallet"
)

// CurrentRound selects the current round in the per-round operations.
const CurrentRound uint64 = 0

// Minter mints entitlement tokens. *token.Authority implements it.
type Minter interface {
	Mint(ctx context.Context, minter, to types.Address, amount types.Amount) (*token.Receipt, error)
}

// Ledger is the crowdsale state machine. All state lives in the store; the
// Ledger itself only holds collaborators and configuration.
type Ledger struct {
	store   store.Store
	minter  Minter
	payout  wallet.Transferer
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   func() time.Time

	// self is the address the ledger acts as when minting.
	self    types.Address
	version string

	// lock serializes state-changing operations. Releases behind one entry
	// point share it.
	lock sync.Locker
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   s,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		clock:   time.Now,
		version: "v1",
		lock:    &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithMinter sets the token authority used by claims.
func WithMinter(m Minter) Option {
	return func(l *Ledger) { l.minter = m }
}

// WithTransferer sets the base-currency payout used by refunds and withdrawals.
func WithTransferer(t wallet.Transferer) Option {
	return func(l *Ledger) { l.payout = t }
}

// WithAddress sets the address the ledger mints as. It must hold the
// minter role on the token.
func WithAddress(addr types.Address) Option {
	return func(l *Ledger) { l.self = addr }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.clock = now }
}

// WithVersion sets the release version reported by this implementation.
func WithVersion(v string) Option {
	return func(l *Ledger) { l.version = v }
}

// WithLock shares a serialization lock between ledgers over the same store.
func WithLock(mu sync.Locker) Option {
	return func(l *Ledger) { l.lock = mu }
}

// Start migrates the store and notifies plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}
	l.plugins.EmitInit(ctx, l)
	l.logger.Info("crowdsale ledger started", "version", l.version, "address", l.self.Hex())
	return nil
}

// Stop notifies plugins and closes the store.
func (l *Ledger) Stop() error {
	l.plugins.EmitShutdown(context.Background())
	return l.store.Close()
}

// Address returns the address the ledger acts as.
func (l *Ledger) Address() types.Address { return l.self }

// Version returns the release version of this implementation.
func (l *Ledger) Version() string { return l.version }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

func (l *Ledger) now() time.Time { return l.clock().UTC() }

// ──────────────────────────────────────────────────
// Serialization
// ──────────────────────────────────────────────────

type heldKey struct{}

// tx collects notifications to deliver once the outermost operation commits.
type tx struct {
	lock    sync.Locker
	notify  []func(context.Context)
	settled []string
}

func (t *tx) after(fn func(context.Context)) { t.notify = append(t.notify, fn) }

// settle records that an external call took effect. From then on the
// transaction can no longer be undone by rolling back the store.
func (t *tx) settle(what string) { t.settled = append(t.settled, what) }

// run executes fn as one atomic operation. A call made from inside an
// external call of an operation already holding the lock joins it instead of
// deadlocking, and sees every write made so far.
func (l *Ledger) run(ctx context.Context, op string, fn func(ctx context.Context, t *tx) error) error {
	if outer, ok := ctx.Value(heldKey{}).(*tx); ok && outer.lock == l.lock {
		return fn(ctx, outer)
	}

	l.lock.Lock()
	t := &tx{lock: l.lock}
	inner := context.WithValue(ctx, heldKey{}, t)
	err := l.store.Atomic(inner, func(ctx context.Context) error {
		return fn(ctx, t)
	})
	l.lock.Unlock()

	if err != nil && len(t.settled) > 0 {
		l.logger.Error("crowdsale external call not recorded",
			"op", op,
			"settled", t.settled,
			"error", err,
		)
		err = fmt.Errorf("%w: %s: %v", ErrResolutionUncertain, op, err)
	}
	if err != nil {
		l.logger.Debug("crowdsale operation rejected", "op", op, "error", err)
		l.plugins.EmitRejected(ctx, op, err)
		return err
	}
	for _, n := range t.notify {
		n(ctx)
	}
	return nil
}

// Exclusive runs fn as a single atomic operation under the ledger lock.
// The entry point uses it to swap releases without racing other calls.
func (l *Ledger) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	return l.run(ctx, "exclusive", func(ctx context.Context, _ *tx) error { return fn(ctx) })
}
