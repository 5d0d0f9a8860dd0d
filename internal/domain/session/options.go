package session

import "time"

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithTTL sets how long a session stays valid after Open.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithMaxSubmissions caps accepted submissions per session.
func WithMaxSubmissions(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxSubmissions = n
		}
	}
}

// WithMinInterval sets the cool-down between two submissions.
func WithMinInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.minInterval = d
		}
	}
}

// WithSweepInterval sets the period of the background expiry sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTokenGenerator replaces the uuid token source.
func WithTokenGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newToken = gen
		}
	}
}
