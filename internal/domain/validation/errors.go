package validation

import (
	"errors"
	"strings"
	"time"
)

// Rejection kinds. A *Rejection unwraps to exactly one of these.
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
	ErrBadRequest    = errors.New("bad request")
	ErrScoreMismatch = errors.New("score mismatch")
	ErrInternal      = errors.New("internal error")
)

// Rejection is the typed failure returned by Submit.
type Rejection struct {
	Kind    error
	Reasons []string
	// ResetAt is set for rate limited rejections when a retry time is known.
	ResetAt time.Time
	// RetryAfter is ResetAt measured from the clock that issued the rejection.
	RetryAfter time.Duration
}

func reject(kind error, reasons ...string) *Rejection {
	return &Rejection{Kind: kind, Reasons: reasons}
}

// RateLimited builds a rate limited rejection that may be retried at resetAt.
func RateLimited(resetAt, now time.Time, reasons ...string) *Rejection {
	return &Rejection{
		Kind:       ErrRateLimited,
		Reasons:    reasons,
		ResetAt:    resetAt,
		RetryAfter: max(resetAt.Sub(now), 0),
	}
}

func (r *Rejection) Error() string {
	if len(r.Reasons) == 0 {
		return r.Kind.Error()
	}
	return r.Kind.Error() + ": " + strings.Join(r.Reasons, "; ")
}

func (r *Rejection) Unwrap() error { return r.Kind }

// Code returns the machine-readable reason for r.
func (r *Rejection) Code() string {
	return Code(r.Kind)
}

// Code maps a rejection kind to its wire code.
func Code(kind error) string {
	switch {
	case errors.Is(kind, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(kind, ErrRateLimited):
		return "rate_limited"
	case errors.Is(kind, ErrBadRequest):
		return "bad_request"
	case errors.Is(kind, ErrScoreMismatch):
		return "score_mismatch"
	default:
		return "internal_error"
	}
}
