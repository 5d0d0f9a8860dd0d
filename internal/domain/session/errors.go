package session

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNotFound     = errors.New("session not found")
	ErrLimitReached = errors.New("session submission limit reached")
	ErrTooSoon      = errors.New("submitted too soon")
	ErrInFlight     = errors.New("submission already in progress")
)

// Denied explains why a session may not submit right now.
type Denied struct {
	Reason error
	// Wait is the remaining cool-down, zero when waiting will not help.
	Wait time.Duration
	// ResetAt is when a retry may succeed. For a spent cap it is the
	// session expiry, after which a new session is needed.
	ResetAt time.Time
}

func (d *Denied) Error() string {
	if d.Wait > 0 {
		return fmt.Sprintf("%v: retry in %ds", d.Reason, d.WaitSeconds())
	}
	return d.Reason.Error()
}

func (d *Denied) Unwrap() error { return d.Reason }

// WaitSeconds rounds Wait up to whole seconds.
func (d *Denied) WaitSeconds() int {
	if d.Wait <= 0 {
		return 0
	}
	s := int(d.Wait / time.Second)
	if d.Wait%time.Second != 0 {
		s++
	}
	return s
}
