package service

import "errors"

// Sentinel errors returned by Service operations.
var (
	ErrNotStarted = errors.New("service not started")
	// ErrStopped is returned by Start once Stop has run. A Service holds
	// closed sweeps and a closed store after Stop and is not reusable.
	ErrStopped = errors.New("service stopped")
	// ErrBackpressure means an accepted score could not be queued for
	// persistence. The session has already been charged.
	ErrBackpressure = errors.New("persistence queue unavailable")
)
