package repository

import "time"

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithSeed fixes the treap priority source, mainly for tests.
func WithSeed(seed uint64) MemoryOption {
	return func(s *MemoryStore) {
		s.seed = seed
	}
}

// GormOption applies a configuration option to OpenGorm.
type GormOption func(*gormOptions)

type gormOptions struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	logSQL          bool
}

// WithPool overrides the connection pool sizes.
func WithPool(maxOpen, maxIdle int) GormOption {
	return func(o *gormOptions) {
		if maxOpen > 0 {
			o.maxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			o.maxIdleConns = maxIdle
		}
	}
}

// WithConnMaxLifetime bounds how long a pooled connection is reused.
func WithConnMaxLifetime(d time.Duration) GormOption {
	return func(o *gormOptions) {
		if d > 0 {
			o.connMaxLifetime = d
		}
	}
}

// WithSQLLogging turns on gorm's statement logger.
func WithSQLLogging(on bool) GormOption {
	return func(o *gormOptions) {
		o.logSQL = on
	}
}
