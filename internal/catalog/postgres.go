package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCatalog is a PostgreSQL implementation of Catalog.
// The conditional grab is a single INSERT ... ON CONFLICT DO UPDATE whose
// WHERE clause only fires for unlocked rows, so a held lock makes the
// statement return no row, which is the clean-contention outcome.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog creates a catalog backed by the given pool.
func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

// Migrate creates the catalog tables if they do not exist.
func (c *PostgresCatalog) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS distlock_locks (
			name        TEXT PRIMARY KEY,
			session_id  UUID NOT NULL,
			state       TEXT NOT NULL,
			who         TEXT NOT NULL,
			process_id  TEXT NOT NULL,
			acquired_at TIMESTAMPTZ NOT NULL,
			why         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS distlock_locks_session_idx ON distlock_locks (session_id)`,
		`CREATE TABLE IF NOT EXISTS distlock_pings (
			process_id TEXT PRIMARY KEY,
			last_ping  TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate distlock tables: %w", err)
		}
	}
	return nil
}

// GrabLock implements Catalog.GrabLock.
func (c *PostgresCatalog) GrabLock(ctx context.Context, name string, sessionID uuid.UUID, who, processID string, when time.Time, why string) (bool, error) {
	query := `
		INSERT INTO distlock_locks (name, session_id, state, who, process_id, acquired_at, why)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE
		SET session_id = EXCLUDED.session_id,
		    state = EXCLUDED.state,
		    who = EXCLUDED.who,
		    process_id = EXCLUDED.process_id,
		    acquired_at = EXCLUDED.acquired_at,
		    why = EXCLUDED.why
		WHERE distlock_locks.state = $8
		RETURNING name
	`

	var returned string
	err := c.pool.QueryRow(ctx, query,
		name, sessionID.String(), StateLocked, who, processID, when, why, StateUnlocked,
	).Scan(&returned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row exists and is locked by another session.
			return false, nil
		}
		return false, fmt.Errorf("grab lock %q: %w", name, err)
	}
	return true, nil
}

// Unlock implements Catalog.Unlock. Updating zero rows is success.
func (c *PostgresCatalog) Unlock(ctx context.Context, sessionID uuid.UUID) error {
	query := `UPDATE distlock_locks SET state = $1 WHERE session_id = $2 AND state = $3`
	if _, err := c.pool.Exec(ctx, query, StateUnlocked, sessionID.String(), StateLocked); err != nil {
		return fmt.Errorf("unlock session %s: %w", sessionID, err)
	}
	return nil
}

// GetLockBySession implements Catalog.GetLockBySession.
func (c *PostgresCatalog) GetLockBySession(ctx context.Context, sessionID uuid.UUID) (*LockRecord, error) {
	query := `
		SELECT name, session_id, state, who, process_id, acquired_at, why
		FROM distlock_locks
		WHERE session_id = $1
	`

	var rec LockRecord
	var sid string
	err := c.pool.QueryRow(ctx, query, sessionID.String()).
		Scan(&rec.Name, &sid, &rec.State, &rec.Who, &rec.ProcessID, &rec.When, &rec.Why)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLockNotFound
		}
		return nil, fmt.Errorf("get lock by session %s: %w", sessionID, err)
	}

	rec.SessionID, err = uuid.Parse(sid)
	if err != nil {
		return nil, fmt.Errorf("parse session id %q: %w", sid, err)
	}
	return &rec, nil
}

// Ping implements Catalog.Ping.
func (c *PostgresCatalog) Ping(ctx context.Context, processID string, when time.Time) error {
	query := `
		INSERT INTO distlock_pings (process_id, last_ping)
		VALUES ($1, $2)
		ON CONFLICT (process_id) DO UPDATE SET last_ping = EXCLUDED.last_ping
	`
	if _, err := c.pool.Exec(ctx, query, processID, when); err != nil {
		return fmt.Errorf("ping for %s: %w", processID, err)
	}
	return nil
}

// StopPing implements Catalog.StopPing.
func (c *PostgresCatalog) StopPing(ctx context.Context, processID string) error {
	if _, err := c.pool.Exec(ctx, `DELETE FROM distlock_pings WHERE process_id = $1`, processID); err != nil {
		return fmt.Errorf("stop ping for %s: %w", processID, err)
	}
	return nil
}

var _ Catalog = (*PostgresCatalog)(nil)
