// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load layers file and env on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"runtime"
	"time"
)

// Store drivers understood by StoreDriver.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Owner is the account that initializes the ledger at startup. Empty
	// leaves the ledger uninitialized until POST /init.
	Owner string `koanf:"owner"`

	// RelayID is the account allowed to drive request status changes.
	RelayID string `koanf:"relay_id"`

	// RelayToken and OwnerToken are the bearer secrets that authenticate the
	// relay and owner on privileged routes. An empty token disables that
	// account over HTTP.
	RelayToken string `koanf:"relay_token"`
	OwnerToken string `koanf:"owner_token"`

	// MinDeposit is the minimum attached value for submit_request, in the
	// smallest denomination (decimal string).
	MinDeposit string `koanf:"min_deposit"`

	// StoreDriver is memory or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// EventQueueSize bounds the in-memory event bus.
	EventQueueSize int `koanf:"event_queue_size"`

	// EventWorkers sets the number of event dispatch workers.
	EventWorkers int `koanf:"event_workers"`

	// RiskCacheTTL and RiskCacheCleanup configure risk score memoisation.
	RiskCacheTTL     time.Duration `koanf:"risk_cache_ttl"`
	RiskCacheCleanup time.Duration `koanf:"risk_cache_cleanup"`

	// IdempotencySize caps the number of remembered Idempotency-Key values.
	IdempotencySize int `koanf:"idempotency_size"`

	// MaxListLimit caps the ?limit query of list endpoints.
	MaxListLimit int `koanf:"max_list_limit"`

	// MetricsNamespace prefixes every exported metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`

	// MetricsInstance, when set, is attached to every metric as the
	// instance label.
	MetricsInstance string `koanf:"metrics_instance"`
}

// DefaultMinDeposit is 0.01 NEAR expressed in yoctoNEAR.
const DefaultMinDeposit = "10000000000000000000000"

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		RelayID:          "relay.blindfold.near",
		MinDeposit:       DefaultMinDeposit,
		StoreDriver:      StoreMemory,
		SQLitePath:       "blindfold.db",
		EventQueueSize:   10_000,
		EventWorkers:     runtime.NumCPU(),
		RiskCacheTTL:     5 * time.Minute,
		RiskCacheCleanup: 10 * time.Minute,
		IdempotencySize:  50_000,
		MaxListLimit:     500,
		MetricsNamespace: "blindfold",
	}
}
