package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisLockPrefix    = "distlock:lock:"
	redisSessionPrefix = "distlock:session:"
	redisPingPrefix    = "distlock:ping:"
)

// grabScript atomically creates the lock hash and the session index entry.
// Returns 1 when the lock was taken, 0 when it is already held.
var grabScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 1 then
		return 0
	end
	redis.call("HSET", KEYS[1],
		"name", ARGV[1],
		"session", ARGV[2],
		"who", ARGV[3],
		"process", ARGV[4],
		"when", ARGV[5],
		"why", ARGV[6])
	redis.call("SET", KEYS[2], KEYS[1])
	return 1
`)

// unlockScript deletes the lock hash only while it is still owned by the
// given session, then drops the session index entry.
var unlockScript = redis.NewScript(`
	local lockKey = redis.call("GET", KEYS[1])
	if not lockKey then
		return 0
	end
	if redis.call("HGET", lockKey, "session") == ARGV[1] then
		redis.call("DEL", lockKey)
	end
	redis.call("DEL", KEYS[1])
	return 1
`)

// RedisCatalog is a Redis implementation of Catalog. Lock records are hashes
// keyed by lock name with a session-id index key for handle lookups; the
// conditional grab and guarded unlock run as Lua scripts so each is a single
// atomic operation.
type RedisCatalog struct {
	client *redis.Client
}

// NewRedisCatalog creates a catalog backed by the given Redis client.
func NewRedisCatalog(client *redis.Client) *RedisCatalog {
	return &RedisCatalog{client: client}
}

// GrabLock implements Catalog.GrabLock.
func (c *RedisCatalog) GrabLock(ctx context.Context, name string, sessionID uuid.UUID, who, processID string, when time.Time, why string) (bool, error) {
	keys := []string{redisLockPrefix + name, redisSessionPrefix + sessionID.String()}
	argv := []interface{}{name, sessionID.String(), who, processID, when.UTC().Format(time.RFC3339Nano), why}

	taken, err := grabScript.Run(ctx, c.client, keys, argv...).Int64()
	if err != nil {
		return false, fmt.Errorf("grab lock %q: %w", name, err)
	}
	return taken == 1, nil
}

// Unlock implements Catalog.Unlock. An unknown session is a no-op.
func (c *RedisCatalog) Unlock(ctx context.Context, sessionID uuid.UUID) error {
	keys := []string{redisSessionPrefix + sessionID.String()}
	if err := unlockScript.Run(ctx, c.client, keys, sessionID.String()).Err(); err != nil {
		return fmt.Errorf("unlock session %s: %w", sessionID, err)
	}
	return nil
}

// GetLockBySession implements Catalog.GetLockBySession.
func (c *RedisCatalog) GetLockBySession(ctx context.Context, sessionID uuid.UUID) (*LockRecord, error) {
	lockKey, err := c.client.Get(ctx, redisSessionPrefix+sessionID.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrLockNotFound
		}
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	fields, err := c.client.HGetAll(ctx, lockKey).Result()
	if err != nil {
		return nil, fmt.Errorf("get lock for session %s: %w", sessionID, err)
	}
	if len(fields) == 0 || fields["session"] != sessionID.String() {
		// Index entry outlived the lock hash, or the lock changed hands.
		return nil, ErrLockNotFound
	}

	when, err := time.Parse(time.RFC3339Nano, fields["when"])
	if err != nil {
		return nil, fmt.Errorf("parse lock timestamp %q: %w", fields["when"], err)
	}
	return &LockRecord{
		Name:      fields["name"],
		SessionID: sessionID,
		State:     StateLocked,
		Who:       fields["who"],
		ProcessID: fields["process"],
		When:      when,
		Why:       fields["why"],
	}, nil
}

// Ping implements Catalog.Ping.
func (c *RedisCatalog) Ping(ctx context.Context, processID string, when time.Time) error {
	key := redisPingPrefix + processID
	if err := c.client.Set(ctx, key, when.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("ping for %s: %w", processID, err)
	}
	return nil
}

// StopPing implements Catalog.StopPing.
func (c *RedisCatalog) StopPing(ctx context.Context, processID string) error {
	if err := c.client.Del(ctx, redisPingPrefix+processID).Err(); err != nil {
		return fmt.Errorf("stop ping for %s: %w", processID, err)
	}
	return nil
}

var _ Catalog = (*RedisCatalog)(nil)
