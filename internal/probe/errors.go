package probe

import "errors"

// Sentinel kinds for probe failures.
var (
	ErrUnhealthy = errors.New("service unhealthy")
	ErrSession   = errors.New("open session failed")
	ErrNotRanked = errors.New("accepted score not ranked")
)
