package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCatalog is an in-memory Catalog with true compare-and-set semantics.
// It backs single-node deployments and tests; it offers the same atomicity
// contract as the remote backends but no durability.
type MemoryCatalog struct {
	mu       sync.Mutex
	locks    map[string]*LockRecord    // by lock name
	sessions map[uuid.UUID]string      // session id -> lock name
	pings    map[string]time.Time      // process id -> last ping
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		locks:    make(map[string]*LockRecord),
		sessions: make(map[uuid.UUID]string),
		pings:    make(map[string]time.Time),
	}
}

// GrabLock implements Catalog.GrabLock with a single mutex-guarded CAS.
func (c *MemoryCatalog) GrabLock(ctx context.Context, name string, sessionID uuid.UUID, who, processID string, when time.Time, why string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.locks[name]; ok && existing.State == StateLocked {
		return false, nil
	}

	c.locks[name] = &LockRecord{
		Name:      name,
		SessionID: sessionID,
		State:     StateLocked,
		Who:       who,
		ProcessID: processID,
		When:      when,
		Why:       why,
	}
	c.sessions[sessionID] = name
	return true, nil
}

// Unlock implements Catalog.Unlock. Unknown sessions are a no-op.
func (c *MemoryCatalog) Unlock(ctx context.Context, sessionID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	name, ok := c.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(c.sessions, sessionID)

	if rec, ok := c.locks[name]; ok && rec.SessionID == sessionID {
		delete(c.locks, name)
	}
	return nil
}

// GetLockBySession implements Catalog.GetLockBySession.
func (c *MemoryCatalog) GetLockBySession(ctx context.Context, sessionID uuid.UUID) (*LockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	name, ok := c.sessions[sessionID]
	if !ok {
		return nil, ErrLockNotFound
	}
	rec, ok := c.locks[name]
	if !ok || rec.SessionID != sessionID {
		return nil, ErrLockNotFound
	}

	cp := *rec
	return &cp, nil
}

// Ping implements Catalog.Ping.
func (c *MemoryCatalog) Ping(ctx context.Context, processID string, when time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings[processID] = when
	return nil
}

// StopPing implements Catalog.StopPing.
func (c *MemoryCatalog) StopPing(ctx context.Context, processID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pings, processID)
	return nil
}

// LastPing returns the last liveness timestamp recorded for processID.
func (c *MemoryCatalog) LastPing(processID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.pings[processID]
	return t, ok
}

var _ Catalog = (*MemoryCatalog)(nil)
