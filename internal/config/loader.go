package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/blindfold/internal/domain/types"
)

const (
	envPrefix  = "BLINDFOLD_"
	envFileVar = "BLINDFOLD_CONFIG"

	minTokenLen = 16
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if BLINDFOLD_CONFIG is set
//  3. env (prefix BLINDFOLD_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// BLINDFOLD_EVENT_QUEUE_SIZE -> event_queue_size. Underscores are kept to
	// match the koanf tags on the struct.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot type-check.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if _, err := types.ParseAccountID(c.RelayID); err != nil {
		return fmt.Errorf("%w: relay_id: %w", ErrInvalidConfig, err)
	}
	if c.Owner != "" {
		if _, err := types.ParseAccountID(c.Owner); err != nil {
			return fmt.Errorf("%w: owner: %w", ErrInvalidConfig, err)
		}
	}
	if err := c.validateTokens(); err != nil {
		return err
	}
	if !validMetricName(c.MetricsNamespace) {
		return fmt.Errorf("%w: metrics_namespace %q is not a valid metric name", ErrInvalidConfig, c.MetricsNamespace)
	}
	if _, err := sdkmath.ParseUint(c.MinDeposit); err != nil {
		return fmt.Errorf("%w: min_deposit %q: %w", ErrInvalidConfig, c.MinDeposit, err)
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.EventQueueSize <= 0 || c.EventWorkers <= 0 {
		return fmt.Errorf("%w: event_queue_size and event_workers must be positive", ErrInvalidConfig)
	}
	if c.IdempotencySize <= 0 || c.MaxListLimit <= 0 {
		return fmt.Errorf("%w: idempotency_size and max_list_limit must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) validateTokens() error {
	for _, t := range []struct{ key, value string }{
		{"relay_token", c.RelayToken},
		{"owner_token", c.OwnerToken},
	} {
		if t.value != "" && len(t.value) < minTokenLen {
			return fmt.Errorf("%w: %s must be at least %d characters", ErrInvalidConfig, t.key, minTokenLen)
		}
	}
	if c.OwnerToken != "" && c.Owner == "" {
		return fmt.Errorf("%w: owner_token requires owner", ErrInvalidConfig)
	}
	if c.RelayToken != "" && c.RelayToken == c.OwnerToken {
		return fmt.Errorf("%w: relay_token and owner_token must differ", ErrInvalidConfig)
	}
	return nil
}

// validMetricName reports whether s matches [a-zA-Z_][a-zA-Z0-9_]*.
func validMetricName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
