package ratelimit

import "errors"

// ErrUnknownFamily is returned by Check for a family with no policy.
var ErrUnknownFamily = errors.New("unknown rate limit family")
