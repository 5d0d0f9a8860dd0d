package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "HANTA_"
	envConfigPath = "HANTA_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if HANTA_CONFIG is set
//  3. env (prefix HANTA_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// HANTA_SESSION_TTL -> session_ttl. Underscores are kept to match the tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// The file path variable is not a config key.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr must not be empty")
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if strings.TrimSpace(c.StoreDSN) == "" {
			problems = append(problems, "store_dsn is required for store_driver "+c.StoreDriver)
		}
	default:
		problems = append(problems, "unknown store_driver "+c.StoreDriver)
	}
	if c.SessionTTL <= 0 {
		problems = append(problems, "session_ttl must be positive")
	}
	if c.SessionMaxSubmissions <= 0 {
		problems = append(problems, "session_max_submissions must be positive")
	}
	if c.SessionMinInterval < 0 {
		problems = append(problems, "session_min_interval must not be negative")
	}
	for _, rl := range []struct {
		name   string
		limit  int
		window int64
	}{
		{"rate_ip", c.RateIPLimit, int64(c.RateIPWindow)},
		{"rate_name", c.RateNameLimit, int64(c.RateNameWindow)},
		{"rate_session", c.RateSessionLimit, int64(c.RateSessionWindow)},
	} {
		if rl.limit <= 0 || rl.window <= 0 {
			problems = append(problems, rl.name+" limit and window must be positive")
		}
	}
	if c.SessionSweepInterval <= 0 || c.RateSweepInterval <= 0 {
		problems = append(problems, "sweep intervals must be positive")
	}
	if c.MaxTextLength <= 0 {
		problems = append(problems, "max_text_length must be positive")
	}
	if c.MaxNameWidth <= 0 {
		problems = append(problems, "max_name_width must be positive")
	}
	if c.AccuracyTolerance < 0 || c.SpeedToleranceRatio < 0 || c.SpeedToleranceFloor < 0 {
		problems = append(problems, "tolerances must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
