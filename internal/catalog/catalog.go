// Package catalog defines the catalog client used by the distributed lock
// manager. The catalog is a remote, strongly consistent store holding one
// lock record per lock name plus one liveness ping record per process; all
// mutations go through single-record atomic operations.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Lock record states as stored by the catalog backends.
const (
	StateUnlocked = "unlocked"
	StateLocked   = "locked"
)

// Common errors for catalog operations.
var (
	// ErrLockNotFound is returned by GetLockBySession when no lock record
	// exists for the given session id.
	ErrLockNotFound = errors.New("lock not found")
)

// LockRecord is the document the catalog keeps for a named lock.
type LockRecord struct {
	// Name is the caller-chosen name of the protected resource.
	Name string `json:"name"`

	// SessionID is the owning session token. A fresh one is minted per
	// acquisition attempt; it doubles as the caller's lock handle.
	SessionID uuid.UUID `json:"sessionId"`

	// State is either StateLocked or StateUnlocked.
	State string `json:"state"`

	// Who describes the owner (process id plus task identity).
	Who string `json:"who"`

	// ProcessID identifies the owning manager instance cluster-wide.
	ProcessID string `json:"processId"`

	// When is the acquisition time recorded by the owner.
	When time.Time `json:"when"`

	// Why is the human-readable reason the lock was taken.
	Why string `json:"why"`
}

// IsValid reports whether the record still represents live ownership.
func (r *LockRecord) IsValid() bool {
	return r != nil && r.State == StateLocked && r.SessionID != uuid.Nil
}

// PingRecord is the liveness document kept per process.
type PingRecord struct {
	ProcessID string    `json:"processId"`
	LastPing  time.Time `json:"lastPing"`
}

// Catalog is the set of atomic operations the lock manager depends on.
// Implementations must be safe for concurrent use.
//
// GrabLock has a three-outcome contract: (true, nil) means the conditional
// write was applied and the lock is held; (false, nil) means it was cleanly
// rejected because another valid session holds the lock (the only retryable
// outcome); a non-nil error means the outcome is ambiguous and the write
// may or may not have been applied.
type Catalog interface {
	// GrabLock atomically takes the named lock for sessionID if it is
	// currently free or unlocked.
	GrabLock(ctx context.Context, name string, sessionID uuid.UUID, who, processID string, when time.Time, why string) (bool, error)

	// Unlock releases the lock owned by sessionID. It is idempotent:
	// unlocking an already released or unknown session succeeds.
	Unlock(ctx context.Context, sessionID uuid.UUID) error

	// GetLockBySession returns the lock record owned by sessionID, or
	// ErrLockNotFound if no such record exists.
	GetLockBySession(ctx context.Context, sessionID uuid.UUID) (*LockRecord, error)

	// Ping upserts the liveness timestamp for processID.
	Ping(ctx context.Context, processID string, when time.Time) error

	// StopPing removes the liveness record for processID.
	StopPing(ctx context.Context, processID string) error
}
