package extension

import "time"

// Config holds the Crowdsale extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.crowdsale" or "crowdsale" keys).
type Config struct {
	// DisableRoutes prevents the HTTP API server from being provided.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix stripped before the API routes (default: "/crowdsale").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// Owner and Treasury are used when the sale is initialized on first start.
	Owner    string `json:"owner" mapstructure:"owner" yaml:"owner"`
	Treasury string `json:"treasury" mapstructure:"treasury" yaml:"treasury"`

	// Address is the address the ledger acts as when minting.
	Address string `json:"address" mapstructure:"address" yaml:"address"`

	// Release is the implementation version opened on a fresh store (default: "v1").
	Release string `json:"release" mapstructure:"release" yaml:"release"`

	// AutoFinalize starts the job that finalizes ended rounds as the owner.
	AutoFinalize bool `json:"auto_finalize" mapstructure:"auto_finalize" yaml:"auto_finalize"`

	// AutoFinalizeInterval is how often the auto-finalize job runs (default: 1m).
	AutoFinalizeInterval time.Duration `json:"auto_finalize_interval" mapstructure:"auto_finalize_interval" yaml:"auto_finalize_interval"`

	// LeaderboardLimit is the default number of leaderboard rows (default: 20).
	LeaderboardLimit int `json:"leaderboard_limit" mapstructure:"leaderboard_limit" yaml:"leaderboard_limit"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:             "/crowdsale",
		Release:              "v1",
		AutoFinalizeInterval: time.Minute,
		LeaderboardLimit:     20,
	}
}
