// Package session tracks short-lived practice sessions in memory.
//
// A session binds a client to one mode for a bounded window and a bounded
// number of submissions. Sessions are process-local and lost on restart.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/hanta/internal/domain/model"
	"github.com/okian/hanta/pkg/logger"
	"github.com/okian/hanta/pkg/metrics"
)

const (
	defaultTTL            = time.Hour
	defaultMaxSubmissions = 10
	defaultMinInterval    = 2 * time.Second
	defaultSweepInterval  = 5 * time.Minute

	// retry hint for a submission racing one already in flight
	inFlightRetry = time.Second
)

// Session is a snapshot of one practice attempt window.
type Session struct {
	Token          string
	Mode           model.Mode
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Name           string
	Submissions    int
	LastSubmission time.Time
}

type entry struct {
	Session
	inFlight bool
}

// Manager owns the session table. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry

	ttl            time.Duration
	maxSubmissions int
	minInterval    time.Duration
	sweepInterval  time.Duration
	now            func() time.Time
	newToken       func() string

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a Manager. Call Start to run the expiry sweep.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:       make(map[string]*entry),
		ttl:            defaultTTL,
		maxSubmissions: defaultMaxSubmissions,
		minInterval:    defaultMinInterval,
		sweepInterval:  defaultSweepInterval,
		now:            time.Now,
		newToken:       uuid.NewString,
		stopChan:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts a session for mode.
func (m *Manager) Open(mode model.Mode) Session {
	now := m.now()
	e := &entry{Session: Session{
		Token:     m.newToken(),
		Mode:      mode,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}}

	m.mu.Lock()
	m.sessions[e.Token] = e
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.RecordSessionOpened(string(mode))
	metrics.UpdateSessionsActive(n)
	return e.Session
}

// Validate returns the live session for token. Expired sessions are removed
// and reported as ErrNotFound.
func (m *Manager) Validate(token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookup(token)
	if err != nil {
		return Session{}, err
	}
	return e.Session, nil
}

// CanSubmit checks the submission cap and the cool-down for s.
func (m *Manager) CanSubmit(s Session) error {
	return m.canSubmit(s, m.now())
}

// Reserve validates token and checks CanSubmit under one lock, then marks
// the session busy so a concurrent submission is denied with ErrInFlight.
// Every successful Reserve must be followed by RecordSubmission or Release.
func (m *Manager) Reserve(token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookup(token)
	if err != nil {
		return Session{}, err
	}
	if e.inFlight {
		return Session{}, &Denied{Reason: ErrInFlight, ResetAt: m.now().Add(inFlightRetry)}
	}
	if err := m.canSubmit(e.Session, m.now()); err != nil {
		return Session{}, err
	}
	e.inFlight = true
	return e.Session, nil
}

// Release clears a reservation without recording a submission.
func (m *Manager) Release(token string) {
	m.mu.Lock()
	if e, ok := m.sessions[token]; ok {
		e.inFlight = false
	}
	m.mu.Unlock()
}

// RecordSubmission counts a submission against token. The name is fixed by
// the first recorded submission; later names are ignored. It does not
// re-check the cool-down.
func (m *Manager) RecordSubmission(token, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[token]
	if !ok {
		return false
	}
	e.Submissions++
	e.LastSubmission = m.now()
	if e.Name == "" {
		e.Name = name
	}
	e.inFlight = false
	return true
}

// Len returns the number of tracked sessions, expired ones included until swept.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes every expired session and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	expired := make([]string, 0)
	for token, e := range m.sessions {
		if !now.Before(e.ExpiresAt) {
			expired = append(expired, token)
		}
	}
	m.mu.Unlock()

	removed := 0
	for _, token := range expired {
		m.mu.Lock()
		if e, ok := m.sessions[token]; ok && !now.Before(e.ExpiresAt) {
			delete(m.sessions, token)
			removed++
		}
		m.mu.Unlock()
	}

	metrics.RecordSessionsSwept(removed)
	metrics.UpdateSessionsActive(m.Len())
	return removed
}

// Start runs the expiry sweep until Close.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					logger.Get().Debug(context.Background(), "expired sessions swept", logger.Int("removed", n))
				}
			case <-m.stopChan:
				return
			}
		}
	}()
}

// Close stops the sweep loop and waits for it to exit.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()
}

// lookup must be called with m.mu held.
func (m *Manager) lookup(token string) (*entry, error) {
	e, ok := m.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.now().Before(e.ExpiresAt) {
		delete(m.sessions, token)
		return nil, ErrNotFound
	}
	return e, nil
}

func (m *Manager) canSubmit(s Session, now time.Time) error {
	if s.Submissions >= m.maxSubmissions {
		return &Denied{Reason: ErrLimitReached, ResetAt: s.ExpiresAt}
	}
	if !s.LastSubmission.IsZero() {
		if since := now.Sub(s.LastSubmission); since < m.minInterval {
			d := &Denied{Reason: ErrTooSoon, Wait: m.minInterval - since}
			d.ResetAt = now.Add(time.Duration(d.WaitSeconds()) * time.Second)
			return d
		}
	}
	return nil
}
