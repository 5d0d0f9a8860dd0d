package ratelimit

import "time"

// Option applies a configuration option to the Limiter.
type Option func(*Limiter)

// WithPolicy sets the limit and window for family. Non-positive values keep
// the current policy.
func WithPolicy(family Family, limit int, window time.Duration) Option {
	return func(l *Limiter) {
		if limit <= 0 || window <= 0 {
			return
		}
		p := l.policies[family]
		p.Limit, p.Window = limit, window
		l.policies[family] = p
	}
}

// WithSweepInterval sets the period of the background bucket sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.sweepInterval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}
