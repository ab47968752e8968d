package domain

import "errors"

// Sentinel errors a daemon adapter can wrap with errors.Is-compatible
// causes.
var (
	// ErrNotFound indicates a resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrConnectionFailed indicates the daemon itself could not be
	// reached — the connection-level failure class, as opposed to a
	// semantic failure reported by a reachable daemon.
	ErrConnectionFailed = errors.New("connection failed")
)
