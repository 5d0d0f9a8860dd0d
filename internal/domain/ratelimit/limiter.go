// Package ratelimit implements fixed-window counters for independent key
// families.
//
// A bucket is created on first use, reset once its window has elapsed and
// incremented otherwise. A denied check never increments. Bursts of up to
// twice the limit are possible across a window boundary.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/hanta/pkg/logger"
	"github.com/okian/hanta/pkg/metrics"
)

// Family names an independent key space.
type Family string

const (
	FamilyAddress Family = "address"
	FamilyName    Family = "name"
	FamilySession Family = "session"
)

// Policy is the limit per window for one family.
type Policy struct {
	Limit  int
	Window time.Duration
	// FoldKey trims and lower-cases keys before lookup.
	FoldKey bool
}

// Decision is the outcome of one Check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter holds the buckets of every family. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	policies map[Family]Policy
	buckets  map[Family]map[string]*bucket

	sweepInterval time.Duration
	now           func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewLimiter creates a Limiter with the default families:
// address 10/min, name 50/hour (folded), session 3/min.
func NewLimiter(opts ...Option) *Limiter {
	l := &Limiter{
		policies: map[Family]Policy{
			FamilyAddress: {Limit: 10, Window: time.Minute},
			FamilyName:    {Limit: 50, Window: time.Hour, FoldKey: true},
			FamilySession: {Limit: 3, Window: time.Minute},
		},
		buckets:       make(map[Family]map[string]*bucket),
		sweepInterval: time.Minute,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	for f := range l.policies {
		l.buckets[f] = make(map[string]*bucket)
	}
	return l
}

// Check counts one event for key in family and reports whether it is allowed.
func (l *Limiter) Check(family Family, key string) (Decision, error) {
	p, ok := l.policies[family]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownFamily, family)
	}
	if p.FoldKey {
		key = strings.ToLower(strings.TrimSpace(key))
	}
	now := l.now()

	l.mu.Lock()
	buckets := l.buckets[family]
	b, ok := buckets[key]
	var d Decision
	switch {
	case !ok || !now.Before(b.resetAt):
		b = &bucket{count: 1, resetAt: now.Add(p.Window)}
		buckets[key] = b
		d = Decision{Allowed: true, Remaining: p.Limit - 1, ResetAt: b.resetAt}
	case b.count >= p.Limit:
		d = Decision{Allowed: false, Remaining: 0, ResetAt: b.resetAt}
	default:
		b.count++
		d = Decision{Allowed: true, Remaining: p.Limit - b.count, ResetAt: b.resetAt}
	}
	l.mu.Unlock()

	metrics.RecordRateLimitDecision(string(family), d.Allowed)
	return d, nil
}

// Len returns the number of live and expired-but-unswept buckets in family.
func (l *Limiter) Len(family Family) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets[family])
}

// Sweep drops every bucket whose window has elapsed.
func (l *Limiter) Sweep() int {
	now := l.now()
	removed := 0
	for family := range l.policies {
		l.mu.Lock()
		expired := make([]string, 0)
		for key, b := range l.buckets[family] {
			if !now.Before(b.resetAt) {
				expired = append(expired, key)
			}
		}
		l.mu.Unlock()

		for _, key := range expired {
			l.mu.Lock()
			if b, ok := l.buckets[family][key]; ok && !now.Before(b.resetAt) {
				delete(l.buckets[family], key)
				removed++
			}
			l.mu.Unlock()
		}
		metrics.UpdateRateLimitBuckets(string(family), l.Len(family))
	}
	return removed
}

// Start runs the bucket sweep until Close.
func (l *Limiter) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := l.Sweep(); n > 0 {
					logger.Get().Debug(context.Background(), "rate limit buckets swept", logger.Int("removed", n))
				}
			case <-l.stopChan:
				return
			}
		}
	}()
}

// Close stops the sweep loop and waits for it to exit.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
}
