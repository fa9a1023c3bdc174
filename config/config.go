// Package config loads crowdsaled configuration.
//
// Sources are applied in order, later ones winning: built-in defaults, a YAML
// file read with viper, then CROWDSALE_* environment variables. A .env file in
// the working directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/types"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CROWDSALE_"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	HTTP        HTTPConfig        `mapstructure:"http" envPrefix:"HTTP_"`
	Store       StoreConfig       `mapstructure:"store" envPrefix:"STORE_"`
	Log         LogConfig         `mapstructure:"log" envPrefix:"LOG_"`
	Sale        SaleConfig        `mapstructure:"sale" envPrefix:"SALE_"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler" envPrefix:"SCHEDULER_"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard" envPrefix:"LEADERBOARD_"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" env:"ADDR"`
	// Mode is the gin mode: debug, release or test.
	Mode string `mapstructure:"mode" env:"MODE"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver" env:"DRIVER"`
	// DSN is a file path for sqlite, a connection URL for postgres and a
	// URI for mongo. Unused by the memory driver.
	DSN      string `mapstructure:"dsn" env:"DSN"`
	Database string `mapstructure:"database" env:"DATABASE"`
}

type LogConfig struct {
	Level string `mapstructure:"level" env:"LEVEL"`
	// File enables a rotating JSON log file next to stdout.
	File       string `mapstructure:"file" env:"FILE"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `mapstructure:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `mapstructure:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `mapstructure:"compress" env:"COMPRESS"`
}

// SlogLevel parses Level, falling back to info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

type SaleConfig struct {
	Owner    string `mapstructure:"owner" env:"OWNER"`
	Treasury string `mapstructure:"treasury" env:"TREASURY"`
	// Address is the address the ledger mints as.
	Address string `mapstructure:"address" env:"ADDRESS"`
	// Release is the implementation version used on first open.
	Release     string `mapstructure:"release" env:"RELEASE"`
	TokenName   string `mapstructure:"token_name" env:"TOKEN_NAME"`
	TokenSymbol string `mapstructure:"token_symbol" env:"TOKEN_SYMBOL"`
}

// Addresses parses the configured owner, treasury and ledger addresses.
func (s SaleConfig) Addresses() (owner, treasury, self types.Address, err error) {
	if owner, err = types.ParseAddress(s.Owner); err != nil {
		return
	}
	if treasury, err = types.ParseAddress(s.Treasury); err != nil {
		return
	}
	self, err = types.ParseAddress(s.Address)
	return
}

// SchedulerConfig controls the optional auto-finalize job. It is off unless
// enabled explicitly; finalization is otherwise left to the owner.
type SchedulerConfig struct {
	AutoFinalize bool          `mapstructure:"auto_finalize" env:"AUTO_FINALIZE"`
	Interval     time.Duration `mapstructure:"interval" env:"INTERVAL"`
}

type LeaderboardConfig struct {
	Limit            int  `mapstructure:"limit" env:"LIMIT"`
	LegacyFirstRound bool `mapstructure:"legacy_first_round" env:"LEGACY_FIRST_ROUND"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.mode", "release")
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.database", "crowdsale")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("sale.release", "v1")
	v.SetDefault("sale.token_name", "Crowdsale Token")
	v.SetDefault("sale.token_symbol", "CST")
	v.SetDefault("scheduler.auto_finalize", false)
	v.SetDefault("scheduler.interval", time.Minute)
	v.SetDefault("leaderboard.limit", 20)
}

// Load reads configuration. An empty path searches crowdsale.yaml in the
// working directory, ./config and /etc/crowdsale, and a missing file is not
// an error. An explicit path must exist.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("crowdsale")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/crowdsale")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot default.
func (c *Config) Validate() error {
	var errs crowdsale.MultiError

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres, DriverMongo:
		if c.Store.DSN == "" {
			errs.Add(crowdsale.ValidationError{Field: "store.dsn", Message: "required for driver " + c.Store.Driver})
		}
	default:
		errs.Add(crowdsale.ValidationError{Field: "store.driver", Message: fmt.Sprintf("unknown driver %q", c.Store.Driver)})
	}

	for _, f := range []struct{ name, value string }{
		{"sale.owner", c.Sale.Owner},
		{"sale.treasury", c.Sale.Treasury},
		{"sale.address", c.Sale.Address},
	} {
		addr, err := types.ParseAddress(f.value)
		switch {
		case err != nil:
			errs.Add(crowdsale.ValidationError{Field: f.name, Message: "invalid address"})
		case addr == types.ZeroAddress:
			errs.Add(crowdsale.ValidationError{Field: f.name, Message: "must not be the zero address"})
		}
	}

	switch c.HTTP.Mode {
	case "", "debug", "release", "test":
	default:
		errs.Add(crowdsale.ValidationError{Field: "http.mode", Message: fmt.Sprintf("unknown gin mode %q", c.HTTP.Mode)})
	}
	if c.Sale.Release == "" {
		errs.Add(crowdsale.ValidationError{Field: "sale.release", Message: "required"})
	}
	if c.Scheduler.AutoFinalize && c.Scheduler.Interval <= 0 {
		errs.Add(crowdsale.ValidationError{Field: "scheduler.interval", Message: "must be positive"})
	}
	if c.Leaderboard.Limit < 0 {
		errs.Add(crowdsale.ValidationError{Field: "leaderboard.limit", Message: "must not be negative"})
	}

	return errs.ErrOrNil()
}
