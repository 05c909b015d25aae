package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// getTestRedisClient returns a Redis client for testing.
// Skips the test if Redis is not available.
func getTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for testing
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	// Clean up test keys
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background())
		_ = client.Close()
	})

	return client
}

func TestRedisCatalog_GrabLock(t *testing.T) {
	cat := NewRedisCatalog(getTestRedisClient(t))
	ctx := context.Background()

	first := uuid.New()
	acquired, err := cat.GrabLock(ctx, "test:grab", first, "node-a:goroutine-1", "node-a", time.Now(), "testing")
	if err != nil {
		t.Fatalf("GrabLock failed: %v", err)
	}
	if !acquired {
		t.Fatal("expected first grab to succeed")
	}

	// Second session is rejected cleanly while the lock is held.
	acquired, err = cat.GrabLock(ctx, "test:grab", uuid.New(), "node-b:goroutine-1", "node-b", time.Now(), "testing")
	if err != nil {
		t.Fatalf("GrabLock failed: %v", err)
	}
	if acquired {
		t.Fatal("expected second grab to be rejected")
	}

	rec, err := cat.GetLockBySession(ctx, first)
	if err != nil {
		t.Fatalf("GetLockBySession failed: %v", err)
	}
	if rec.Name != "test:grab" || rec.SessionID != first || rec.State != StateLocked {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Who != "node-a:goroutine-1" || rec.ProcessID != "node-a" || rec.Why != "testing" {
		t.Errorf("owner metadata not preserved: %+v", rec)
	}
}

func TestRedisCatalog_UnlockFreesName(t *testing.T) {
	cat := NewRedisCatalog(getTestRedisClient(t))
	ctx := context.Background()

	first := uuid.New()
	if _, err := cat.GrabLock(ctx, "test:unlock", first, "who", "proc", time.Now(), "testing"); err != nil {
		t.Fatalf("GrabLock failed: %v", err)
	}
	if err := cat.Unlock(ctx, first); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	if _, err := cat.GetLockBySession(ctx, first); !errors.Is(err, ErrLockNotFound) {
		t.Errorf("expected ErrLockNotFound after unlock, got %v", err)
	}

	acquired, err := cat.GrabLock(ctx, "test:unlock", uuid.New(), "who", "proc", time.Now(), "testing")
	if err != nil || !acquired {
		t.Fatalf("expected reacquisition after unlock, got acquired=%v err=%v", acquired, err)
	}
}

func TestRedisCatalog_StaleUnlockDoesNotReleaseNewOwner(t *testing.T) {
	cat := NewRedisCatalog(getTestRedisClient(t))
	ctx := context.Background()

	old := uuid.New()
	if _, err := cat.GrabLock(ctx, "test:stale", old, "who", "proc", time.Now(), "testing"); err != nil {
		t.Fatalf("GrabLock failed: %v", err)
	}
	if err := cat.Unlock(ctx, old); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	current := uuid.New()
	if _, err := cat.GrabLock(ctx, "test:stale", current, "who", "proc", time.Now(), "testing"); err != nil {
		t.Fatalf("GrabLock failed: %v", err)
	}

	// Replaying the old session's unlock must not release the new owner.
	if err := cat.Unlock(ctx, old); err != nil {
		t.Fatalf("stale Unlock failed: %v", err)
	}
	rec, err := cat.GetLockBySession(ctx, current)
	if err != nil {
		t.Fatalf("current owner lost its lock: %v", err)
	}
	if rec.SessionID != current {
		t.Errorf("unexpected owner: %+v", rec)
	}
}

func TestRedisCatalog_UnlockUnknownSession(t *testing.T) {
	cat := NewRedisCatalog(getTestRedisClient(t))

	if err := cat.Unlock(context.Background(), uuid.New()); err != nil {
		t.Errorf("Unlock of unknown session failed: %v", err)
	}
}

func TestRedisCatalog_Pings(t *testing.T) {
	cat := NewRedisCatalog(getTestRedisClient(t))
	ctx := context.Background()

	if err := cat.Ping(ctx, "test-node", time.Now().UTC()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	// Pings upsert.
	if err := cat.Ping(ctx, "test-node", time.Now().UTC()); err != nil {
		t.Fatalf("second Ping failed: %v", err)
	}
	if err := cat.StopPing(ctx, "test-node"); err != nil {
		t.Fatalf("StopPing failed: %v", err)
	}
	// Removing an absent entry is a no-op.
	if err := cat.StopPing(ctx, "test-node"); err != nil {
		t.Fatalf("repeated StopPing failed: %v", err)
	}
}
