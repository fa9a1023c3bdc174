// Package extension mounts a crowdsale into a Forge application.
//
// Register builds the store, token, upgradeable entry point and HTTP API and
// provides them to the vessel container. Start opens the sale and, when
// enabled, runs the auto-finalize scheduler.
//
// Settings come from Option values, from the "extensions.crowdsale" or
// "crowdsale" config keys, or both; file values win over programmatic ones.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/api"
	"github.com/xraph/crowdsale/proxy"
	"github.com/xraph/crowdsale/scheduler"
	"github.com/xraph/crowdsale/store"
	"github.com/xraph/crowdsale/store/memory"
	"github.com/xraph/crowdsale/token"
	"github.com/xraph/crowdsale/types"
	"github.com/xraph/crowdsale/wallet"
)

// ExtensionName is the Forge registration name.
const ExtensionName = "crowdsale"

const ExtensionDescription = "Multi-round crowdsale ledger"

const ExtensionVersion = "0.1.0"

var _ forge.Extension = (*Extension)(nil)

// Extension adapts the crowdsale as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	store      store.Store
	transferer wallet.Transferer
	releases   []proxy.Release
	ledgerOpts []crowdsale.Option

	entry     *proxy.EntryPoint
	token     *token.Authority
	server    *api.Server
	scheduler *scheduler.Manager

	owner, treasury, address types.Address
}

// New returns an unregistered extension.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EntryPoint is nil until Register succeeds.
func (e *Extension) EntryPoint() *proxy.EntryPoint { return e.entry }

// Token is nil until Register succeeds.
func (e *Extension) Token() *token.Authority { return e.token }

// Handler returns the HTTP API mounted under BasePath, or nil when routes
// are disabled.
func (e *Extension) Handler() http.Handler {
	if e.server == nil {
		return nil
	}
	h := e.server.Handler()
	if p := strings.TrimSuffix(e.config.BasePath, "/"); p != "" {
		return http.StripPrefix(p, h)
	}
	return h
}

// Register resolves configuration, builds the sale components and provides
// the entry point, token authority and API server to the container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(); err != nil {
		return err
	}

	c := fapp.Container()
	if err := vessel.Provide(c, func() (*proxy.EntryPoint, error) {
		return e.entry, nil
	}); err != nil {
		return err
	}
	if err := vessel.Provide(c, func() (*token.Authority, error) {
		return e.token, nil
	}); err != nil {
		return err
	}
	if e.server == nil {
		return nil
	}
	return vessel.Provide(c, func() (*api.Server, error) {
		return e.server, nil
	})
}

// build constructs the store, token, entry point and API server from the
// resolved config.
func (e *Extension) build() error {
	var err error
	if e.owner, err = types.ParseAddress(e.config.Owner); err != nil {
		return fmt.Errorf("crowdsale: owner: %w", err)
	}
	if e.treasury, err = types.ParseAddress(e.config.Treasury); err != nil {
		return fmt.Errorf("crowdsale: treasury: %w", err)
	}
	if e.address, err = types.ParseAddress(e.config.Address); err != nil {
		return fmt.Errorf("crowdsale: address: %w", err)
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}
	if e.transferer == nil {
		e.transferer = wallet.NewBank(slog.Default())
	}
	if len(e.releases) == 0 {
		e.releases = []proxy.Release{{Version: e.config.Release, Layout: proxy.BaseLayout}}
	}

	e.token = token.New(e.store)

	opts := []proxy.Option{
		proxy.WithLedgerOptions(crowdsale.WithMinter(e.token), crowdsale.WithTransferer(e.transferer)),
		proxy.WithLedgerOptions(e.ledgerOpts...),
	}
	for _, r := range e.releases {
		opts = append(opts, proxy.WithRelease(r))
	}
	e.entry = proxy.New(e.store, e.address, opts...)

	if !e.config.DisableRoutes {
		e.server = api.New(e.entry, e.token,
			api.WithHealthCheck(e.store.Ping),
			api.WithLeaderboard(e.config.LeaderboardLimit, false),
		)
	}
	return nil
}

// open migrates the store, deploys the token with the ledger as minter and
// opens the entry point.
func (e *Extension) open(ctx context.Context) error {
	if !e.config.DisableMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}
	if err := e.token.Deploy(ctx, e.owner); err != nil && !errors.Is(err, token.ErrAlreadyDeployed) {
		return err
	}
	ok, err := e.token.HasRole(ctx, access.RoleMinter, e.address)
	if err != nil {
		return err
	}
	if !ok {
		if err := e.token.GrantRole(ctx, e.owner, access.RoleMinter, e.address); err != nil {
			return err
		}
	}
	return e.entry.Open(ctx, e.owner, e.treasury, e.config.Release)
}

// Start opens the sale and starts the scheduler if configured.
func (e *Extension) Start(ctx context.Context) error {
	if e.entry == nil {
		return errors.New("crowdsale: extension not initialized")
	}

	if err := e.open(ctx); err != nil {
		return err
	}

	if e.config.AutoFinalize {
		m, err := scheduler.New(e.entry, e.owner, scheduler.WithInterval(e.config.AutoFinalizeInterval))
		if err != nil {
			return err
		}
		if err := m.Start(); err != nil {
			return err
		}
		e.scheduler = m
	}

	e.MarkStarted()
	return nil
}

func (e *Extension) Stop(_ context.Context) error {
	var errs crowdsale.MultiError
	if e.scheduler != nil {
		errs.Add(e.scheduler.Stop())
	}
	if e.entry != nil {
		errs.Add(e.entry.Stop())
	}
	e.MarkStopped()
	return errs.ErrOrNil()
}

// Health reports store reachability.
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("crowdsale: store not initialized")
	}
	return e.store.Ping(ctx)
}


// configKeys are tried in order; the first one present in the app config wins.
var configKeys = []string{"extensions.crowdsale", "crowdsale"}

// loadConfiguration picks the file config when present and merges the
// programmatic options into it.
func (e *Extension) loadConfiguration() error {
	opts := e.config

	file, found := e.tryLoadFromConfigFile()
	switch {
	case found:
		e.config = e.mergeConfigurations(file, opts)
	case opts.RequireConfig:
		return fmt.Errorf("crowdsale: config required but none of %v is set", configKeys)
	default:
		e.config = e.mergeWithDefaults(opts)
	}

	e.Logger().Debug("crowdsale: configuration resolved",
		forge.F("from_file", found),
		forge.F("base_path", e.config.BasePath),
		forge.F("release", e.config.Release),
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("auto_finalize", e.config.AutoFinalize),
		forge.F("auto_finalize_interval", e.config.AutoFinalizeInterval),
	)
	return nil
}

// tryLoadFromConfigFile binds the first config key that exists. A key that
// is set but fails to bind is logged and skipped.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	for _, key := range configKeys {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("crowdsale: cannot bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		return cfg, true
	}
	return Config{}, false
}

// mergeWithDefaults fills zero fields from DefaultConfig.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	def := DefaultConfig()
	orString(&cfg.BasePath, def.BasePath)
	orString(&cfg.Release, def.Release)
	if cfg.AutoFinalizeInterval <= 0 {
		cfg.AutoFinalizeInterval = def.AutoFinalizeInterval
	}
	if cfg.LeaderboardLimit <= 0 {
		cfg.LeaderboardLimit = def.LeaderboardLimit
	}
	return cfg
}

// mergeConfigurations overlays programmatic values on a file config. File
// values win; programmatic ones fill what the file left zero, and boolean
// switches can only be turned on.
func (e *Extension) mergeConfigurations(file, opts Config) Config {
	file.DisableRoutes = file.DisableRoutes || opts.DisableRoutes
	file.DisableMigrate = file.DisableMigrate || opts.DisableMigrate
	file.AutoFinalize = file.AutoFinalize || opts.AutoFinalize

	orString(&file.BasePath, opts.BasePath)
	orString(&file.Owner, opts.Owner)
	orString(&file.Treasury, opts.Treasury)
	orString(&file.Address, opts.Address)
	orString(&file.Release, opts.Release)

	if file.AutoFinalizeInterval == 0 {
		file.AutoFinalizeInterval = opts.AutoFinalizeInterval
	}
	if file.LeaderboardLimit == 0 {
		file.LeaderboardLimit = opts.LeaderboardLimit
	}
	return e.mergeWithDefaults(file)
}

func orString(dst *string, fallback string) {
	if *dst == "" {
		*dst = fallback
	}
}
