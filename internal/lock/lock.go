// Package lock implements a distributed mutual-exclusion lock manager on
// top of a catalog of atomic document operations. Named locks live in the
// catalog, so independent processes across a cluster can coordinate
// exclusive access to a shared resource; the manager adds acquisition
// retry, liveness pings, and best-effort cleanup of unlocks that failed to
// reach the catalog.
package lock

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for lock manager operations.
var (
	// ErrLockBusy is returned when a lock could not be acquired within the
	// caller's wait budget.
	ErrLockBusy = errors.New("lock busy")

	// ErrLockOwnerChanged is returned by CheckStatus when the lock record
	// exists but no longer represents valid ownership by the handle.
	ErrLockOwnerChanged = errors.New("lock not found, owner changed")
)

// Handle identifies a held lock. It is the session id minted by the
// acquisition attempt that won the lock and is all a caller needs to later
// unlock or query the lock.
type Handle = uuid.UUID

// Config holds the manager's identity and timing settings.
type Config struct {
	// ProcessID identifies this manager instance cluster-wide. It must be
	// stable for the process's lifetime.
	ProcessID string

	// PingInterval is the cadence of the background maintenance cycle:
	// liveness pings and pending-unlock retries. Defaults to
	// DefaultPingInterval when zero.
	PingInterval time.Duration
}

// DefaultPingInterval is used when Config.PingInterval is not set.
const DefaultPingInterval = 30 * time.Second
