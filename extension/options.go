package extension

import (
	"time"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/plugin"
	"github.com/xraph/crowdsale/proxy"
	"github.com/xraph/crowdsale/store"
	"github.com/xraph/crowdsale/wallet"
)

// Option configures the Crowdsale Forge extension.
type Option func(*Extension)

// WithStore sets the store for the crowdsale.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a crowdsale.Option through to every release.
func WithLedgerOption(opt crowdsale.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, crowdsale.WithPlugin(p))
	}
}

// WithTransferer sets the base-currency payout used by refunds and withdrawals.
func WithTransferer(t wallet.Transferer) Option {
	return func(e *Extension) { e.transferer = t }
}

// WithRelease registers an implementation release behind the entry point.
func WithRelease(r proxy.Release) Option {
	return func(e *Extension) {
		e.releases = append(e.releases, r)
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents the HTTP API server from being provided.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for crowdsale routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithSale sets the owner, treasury and ledger addresses.
func WithSale(owner, treasury, address string) Option {
	return func(e *Extension) {
		e.config.Owner = owner
		e.config.Treasury = treasury
		e.config.Address = address
	}
}

// WithAutoFinalize enables the auto-finalize job at the given interval.
func WithAutoFinalize(interval time.Duration) Option {
	return func(e *Extension) {
		e.config.AutoFinalize = true
		e.config.AutoFinalizeInterval = interval
	}
}
