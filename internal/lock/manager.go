package lock

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/distlock/internal/catalog"
	"github.com/kneutral-org/distlock/internal/metrics"
)

const (
	// maintenanceTimeout bounds the catalog calls made by one maintenance
	// iteration and by shutdown cleanup.
	maintenanceTimeout = 30 * time.Second

	// progressInterval is how often a waiting Lock call logs that it is
	// still waiting.
	progressInterval = 10 * time.Second
)

// Manager coordinates distributed locks through a catalog. It owns the
// process identity, a pending-unlock queue for catalog writes whose outcome
// is unknown, and a background maintenance goroutine that emits liveness
// pings and drains that queue.
//
// All methods are safe for concurrent use. After ShutDown returns the
// manager must not be used for new Lock or Unlock calls; in-flight Lock
// retry loops are not wired to the shutdown signal and may keep polling
// until their own wait budget runs out.
type Manager struct {
	processID    string
	catalog      catalog.Catalog
	pingInterval time.Duration
	logger       zerolog.Logger

	mu          sync.Mutex
	shutDown    bool
	unlockQueue []uuid.UUID

	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewManager creates a lock manager for the given catalog. The catalog is
// owned by the manager from here on.
func NewManager(cfg Config, cat catalog.Catalog, logger zerolog.Logger) *Manager {
	interval := cfg.PingInterval
	if interval <= 0 {
		interval = DefaultPingInterval
	}

	return &Manager{
		processID:    cfg.ProcessID,
		catalog:      cat,
		pingInterval: interval,
		logger:       logger.With().Str("component", "lock-manager").Str("processId", cfg.ProcessID).Logger(),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// StartUp starts the background maintenance cycle. It must be called at
// most once.
func (m *Manager) StartUp() {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()

	go m.runMaintenance()
}

// ShutDown stops the maintenance cycle and removes this process's ping
// entry from the catalog. The ping cleanup is best effort: a failure is
// logged, never returned. Safe to call without StartUp and safe to call
// more than once; only the first call does any work.
func (m *Manager) ShutDown(ctx context.Context) {
	m.mu.Lock()
	if m.shutDown {
		m.mu.Unlock()
		return
	}
	m.shutDown = true
	started := m.started
	close(m.stopCh)
	m.mu.Unlock()

	// Join outside the mutex: the maintenance goroutine takes it to
	// re-check the shutdown flag.
	if started {
		<-m.doneCh
	}

	if err := m.catalog.StopPing(ctx, m.processID); err != nil {
		m.logger.Warn().Err(err).Msg("failed to remove distributed ping entry during shutdown")
	}
}

// IsShutDown reports whether ShutDown has been called.
func (m *Manager) IsShutDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutDown
}

// runMaintenance is the background cycle: ping, drain the pending-unlock
// queue, then wait for the ping interval or the shutdown signal.
func (m *Manager) runMaintenance() {
	defer close(m.doneCh)

	for !m.IsShutDown() {
		m.maintain()

		timer := time.NewTimer(m.pingInterval)
		select {
		case <-m.stopCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// maintain runs one maintenance iteration. Shutdown observed mid-drain
// stops the batch immediately; the process is exiting either way.
func (m *Manager) maintain() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	if err := m.catalog.Ping(ctx, m.processID, time.Now().UTC()); err != nil {
		metrics.RecordPing("error")
		m.logger.Warn().Err(err).Msg("failed to ping catalog")
	} else {
		metrics.RecordPing("ok")
	}

	// Swap the whole queue out in O(1) so unlock attempts run without
	// blocking concurrent enqueues.
	m.mu.Lock()
	batch := m.unlockQueue
	m.unlockQueue = nil
	m.mu.Unlock()
	metrics.SetPendingUnlocks(0)

	for _, sessionID := range batch {
		if err := m.catalog.Unlock(ctx, sessionID); err != nil {
			metrics.RecordQueuedUnlock("error")
			m.logger.Warn().Err(err).
				Str("sessionId", sessionID.String()).
				Msg("failed to unlock queued session, will retry")
			m.queueUnlock(sessionID)
		} else {
			metrics.RecordQueuedUnlock("ok")
		}

		if m.IsShutDown() {
			return
		}
	}
}

// Lock acquires the named lock, retrying every lockTryInterval until
// waitFor elapses. A zero waitFor makes exactly one attempt; a negative
// waitFor waits indefinitely. why is recorded on the lock record for
// operators.
//
// A clean rejection (another session holds the lock) is the only retried
// outcome. Any other catalog failure is ambiguous (the write may have
// applied), so the minted session id is queued for cleanup unlock and the
// error is returned immediately.
func (m *Manager) Lock(ctx context.Context, name, why string, waitFor, lockTryInterval time.Duration) (Handle, error) {
	start := time.Now()
	lastProgress := start

	for waitFor <= 0 || time.Since(start) < waitFor {
		sessionID := uuid.New()
		who := fmt.Sprintf("%s:%s", m.processID, goroutineLabel())

		acquired, err := m.catalog.GrabLock(ctx, name, sessionID, who, m.processID, time.Now().UTC(), why)
		if err != nil {
			m.queueUnlock(sessionID)
			metrics.RecordGrabAttempt("error")
			return uuid.Nil, fmt.Errorf("grab lock %q: %w", name, err)
		}
		if acquired {
			metrics.RecordGrabAttempt("acquired")
			metrics.RecordAcquireDuration(time.Since(start).Seconds())
			return sessionID, nil
		}
		metrics.RecordGrabAttempt("contended")

		// TODO: overtake locks whose holder has stopped pinging.

		if waitFor == 0 {
			break
		}

		if time.Since(lastProgress) > progressInterval {
			m.logger.Info().
				Str("lock", name).
				Str("why", why).
				Dur("waited", time.Since(start)).
				Msg("still waiting for distributed lock")
			lastProgress = time.Now()
		}

		sleep := lockTryInterval
		if waitFor > 0 {
			if remaining := waitFor - time.Since(start); remaining < sleep {
				sleep = remaining
			}
		}
		if sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return uuid.Nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	metrics.RecordGrabAttempt("timeout")
	return uuid.Nil, fmt.Errorf("%w: timed out waiting for lock %q", ErrLockBusy, name)
}

// Unlock releases the lock held by handle. It is fire and forget: when the
// catalog call fails the handle is queued and retried by the maintenance
// cycle until an unlock succeeds.
func (m *Manager) Unlock(ctx context.Context, handle Handle) {
	if err := m.catalog.Unlock(ctx, handle); err != nil {
		m.logger.Warn().Err(err).
			Str("sessionId", handle.String()).
			Msg("unlock failed, queueing for background retry")
		m.queueUnlock(handle)
	}
}

// CheckStatus confirms that handle still owns its lock. Lookup failures
// (including catalog.ErrLockNotFound) are returned as-is; a record that
// exists but no longer represents valid ownership yields
// ErrLockOwnerChanged.
func (m *Manager) CheckStatus(ctx context.Context, handle Handle) error {
	rec, err := m.catalog.GetLockBySession(ctx, handle)
	if err != nil {
		return err
	}
	if !rec.IsValid() {
		return fmt.Errorf("%w: session %s", ErrLockOwnerChanged, handle)
	}
	return nil
}

// queueUnlock appends a session id to the pending-unlock queue.
func (m *Manager) queueUnlock(sessionID uuid.UUID) {
	m.mu.Lock()
	m.unlockQueue = append(m.unlockQueue, sessionID)
	n := len(m.unlockQueue)
	m.mu.Unlock()
	metrics.SetPendingUnlocks(n)
}

// pendingUnlocks returns a snapshot of the pending-unlock queue.
func (m *Manager) pendingUnlocks() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uuid.UUID, len(m.unlockQueue))
	copy(out, m.unlockQueue)
	return out
}

// goroutineLabel identifies the calling goroutine for the lock's owner
// descriptor.
func goroutineLabel() string {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	// First line reads "goroutine N [running]:".
	fields := strings.Fields(string(buf[:n]))
	if len(fields) >= 2 {
		return "goroutine-" + fields[1]
	}
	return "goroutine"
}
