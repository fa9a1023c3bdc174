// Command crowdsaled serves a crowdsale over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/api"
	audithook "github.com/xraph/crowdsale/audit_hook"
	"github.com/xraph/crowdsale/config"
	"github.com/xraph/crowdsale/observability"
	"github.com/xraph/crowdsale/proxy"
	"github.com/xraph/crowdsale/scheduler"
	"github.com/xraph/crowdsale/store"
	"github.com/xraph/crowdsale/store/memory"
	"github.com/xraph/crowdsale/store/mongo"
	"github.com/xraph/crowdsale/store/postgres"
	"github.com/xraph/crowdsale/store/sqlite"
	"github.com/xraph/crowdsale/token"
	"github.com/xraph/crowdsale/wallet"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "crowdsaled:", err)
		os.Exit(1)
	}
}

// releases lists the implementations the entry point can dispatch to.
// v2 appends round metadata to the storage layout.
func releases() []proxy.Release {
	return []proxy.Release{
		{Version: "v1", Layout: proxy.BaseLayout},
		{Version: "v2", Layout: append(slices.Clone(proxy.BaseLayout), "roundMetadata")},
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, closeLog := newLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()
	if err := s.Migrate(ctx); err != nil {
		return err
	}

	owner, treasury, self, err := cfg.Sale.Addresses()
	if err != nil {
		return err
	}

	tok := token.New(s,
		token.WithLogger(logger),
		token.WithMetadata(cfg.Sale.TokenName, cfg.Sale.TokenSymbol),
	)
	if err := tok.Deploy(ctx, owner); err != nil && !errors.Is(err, token.ErrAlreadyDeployed) {
		return err
	}
	if ok, err := tok.HasRole(ctx, access.RoleMinter, self); err != nil {
		return err
	} else if !ok {
		if err := tok.GrantRole(ctx, owner, access.RoleMinter, self); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg, ""))
	audit := audithook.New(audithook.RecorderFunc(func(ctx context.Context, e *audithook.AuditEvent) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "audit",
			slog.String("action", e.Action),
			slog.String("resource", e.Resource),
			slog.String("resource_id", e.ResourceID),
			slog.Uint64("round_id", e.RoundID),
			slog.String("actor", e.Actor),
			slog.String("outcome", e.Outcome),
			slog.String("severity", e.Severity),
			slog.String("reason", e.Reason),
		)
		return nil
	}), audithook.WithLogger(logger))

	opts := []proxy.Option{
		proxy.WithLogger(logger),
		proxy.WithLedgerOptions(
			crowdsale.WithMinter(tok),
			// Bank only simulates payouts; each one is logged as a record.
			crowdsale.WithTransferer(wallet.NewBank(logger.With("component", "payout"))),
			crowdsale.WithPlugin(metrics),
			crowdsale.WithPlugin(audit),
		),
	}
	for _, r := range releases() {
		opts = append(opts, proxy.WithRelease(r))
	}
	entry := proxy.New(s, self, opts...)
	if err := entry.Open(ctx, owner, treasury, cfg.Sale.Release); err != nil {
		return err
	}
	defer func() {
		if err := entry.Stop(); err != nil {
			logger.Warn("entry point stop failed", "error", err)
		}
	}()

	if cfg.Scheduler.AutoFinalize {
		m, err := scheduler.New(entry, owner,
			scheduler.WithInterval(cfg.Scheduler.Interval),
			scheduler.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		if err := m.Start(); err != nil {
			return err
		}
		defer func() {
			if err := m.Stop(); err != nil {
				logger.Warn("scheduler stop failed", "error", err)
			}
		}()
	}

	if cfg.HTTP.Mode != "" {
		gin.SetMode(cfg.HTTP.Mode)
	}
	srv := api.New(entry, tok,
		api.WithLogger(logger),
		api.WithGatherer(reg),
		api.WithHealthCheck(s.Ping),
		api.WithLeaderboard(cfg.Leaderboard.Limit, cfg.Leaderboard.LegacyFirstRound),
	)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr, "release", entry.Version())
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// newLogger writes JSON to stdout and, when a file is configured, to a
// rotating log file.
func newLogger(cfg config.LogConfig) (*slog.Logger, func()) {
	var w io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w = io.MultiWriter(os.Stdout, rotator)
		closeFn = func() { _ = rotator.Close() }
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	return slog.New(h), closeFn
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.DSN)
	case config.DriverPostgres:
		return postgres.Connect(ctx, cfg.DSN)
	case config.DriverMongo:
		return mongo.Connect(ctx, cfg.DSN, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
