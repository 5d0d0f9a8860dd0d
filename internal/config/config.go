// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Flat snake_case keys matching the koanf tags below.
// - Durations are Go duration strings ("90s", "1h") in files and env.
// - Load validates the merged result and wraps failures in ErrInvalidConfig.
package config

import (
	"runtime"
	"time"
)

// Store drivers accepted by store_driver.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// TrustProxyHeaders takes the caller address from X-Forwarded-For.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`

	// StoreDriver selects the ranking store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	// StoreDSN is passed to the gorm dialector for sqlite and postgres.
	StoreDSN string `koanf:"store_dsn"`
	// MaxLeaderboardLimit caps GET /api/leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// QueueSize bounds the in-memory persistence queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of persistence workers.
	WorkerCount int `koanf:"worker_count"`

	SessionTTL            time.Duration `koanf:"session_ttl"`
	SessionMaxSubmissions int           `koanf:"session_max_submissions"`
	SessionMinInterval    time.Duration `koanf:"session_min_interval"`
	SessionSweepInterval  time.Duration `koanf:"session_sweep_interval"`

	RateIPLimit       int           `koanf:"rate_ip_limit"`
	RateIPWindow      time.Duration `koanf:"rate_ip_window"`
	RateNameLimit     int           `koanf:"rate_name_limit"`
	RateNameWindow    time.Duration `koanf:"rate_name_window"`
	RateSessionLimit  int           `koanf:"rate_session_limit"`
	RateSessionWindow time.Duration `koanf:"rate_session_window"`
	RateSweepInterval time.Duration `koanf:"rate_sweep_interval"`

	// MaxTextLength caps originalText and typedText, in characters.
	MaxTextLength int `koanf:"max_text_length"`
	// MinElapsedSeconds is the floor for timeElapsed when text is submitted.
	MinElapsedSeconds float64 `koanf:"min_elapsed_seconds"`
	// AccuracyTolerance is the absolute accuracy slack in points.
	AccuracyTolerance float64 `koanf:"accuracy_tolerance"`
	// SpeedToleranceRatio is the relative slack for cpm and score.
	SpeedToleranceRatio float64 `koanf:"speed_tolerance_ratio"`
	// SpeedToleranceFloor is the smallest absolute slack for cpm and score.
	SpeedToleranceFloor float64 `koanf:"speed_tolerance_floor"`
	// MaxSpeed is the upper sanity bound for submitted cpm.
	MaxSpeed float64 `koanf:"max_speed"`
	// MaxNameWidth is the display-name cap; wide characters weigh 2.
	MaxNameWidth int `koanf:"max_name_width"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Addr:      ":9080",

		StoreDriver:         StoreMemory,
		MaxLeaderboardLimit: 100,

		QueueSize:   10_000,
		WorkerCount: runtime.NumCPU(),

		SessionTTL:            time.Hour,
		SessionMaxSubmissions: 10,
		SessionMinInterval:    2 * time.Second,
		SessionSweepInterval:  5 * time.Minute,

		RateIPLimit:       10,
		RateIPWindow:      time.Minute,
		RateNameLimit:     50,
		RateNameWindow:    time.Hour,
		RateSessionLimit:  3,
		RateSessionWindow: time.Minute,
		RateSweepInterval: time.Minute,

		MaxTextLength:       10_000,
		MinElapsedSeconds:   1,
		AccuracyTolerance:   1,
		SpeedToleranceRatio: 0.01,
		MaxSpeed:            2000,
		MaxNameWidth:        16,
	}
}
