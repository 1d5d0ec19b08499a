package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("domain: not found")

	// ErrLockHeld is returned when a venue-pair execution lock is already
	// owned by another instance.
	ErrLockHeld = errors.New("domain: lock held")

	// ErrBreakerTripped blocks trading until an operator resets the breaker.
	ErrBreakerTripped = errors.New("domain: circuit breaker tripped")

	// ErrManualIntervention marks an execution whose rollback failed,
	// leaving real unhedged exposure that only a human may resolve.
	ErrManualIntervention = errors.New("domain: manual intervention required")

	// ErrInvalidOrder is returned by gateways for malformed order requests.
	ErrInvalidOrder = errors.New("domain: invalid order")

	// ErrUnauthorized is returned by gateways missing the credentials an
	// operation requires.
	ErrUnauthorized = errors.New("domain: unauthorized")

	// ErrStaleFeed is returned when a feed's data is too old to trade on.
	ErrStaleFeed = errors.New("domain: stale feed")

	// ErrShuttingDown is returned when new work is refused during drain.
	ErrShuttingDown = errors.New("domain: shutting down")
)
