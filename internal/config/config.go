// Package config provides configuration management for the distlock server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Catalog backend names accepted by CATALOG_BACKEND.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

const (
	// DefaultPingInterval is the default cadence of the maintenance cycle.
	DefaultPingInterval = 30 * time.Second

	// DefaultLockWaitFor is the default wait budget for acquire requests
	// that do not specify one.
	DefaultLockWaitFor = 15 * time.Second

	// DefaultLockTryInterval is the default pause between grab attempts.
	DefaultLockTryInterval = 500 * time.Millisecond

	// DefaultMaxPayloadSize is the default max request body size for the
	// lock API (64KB).
	DefaultMaxPayloadSize int64 = 64 * 1024
)

// Config holds the application configuration.
type Config struct {
	// Port is the HTTP server port.
	Port string

	// LogLevel is the zerolog level name.
	LogLevel string

	// LogPretty switches to console-friendly log output.
	LogPretty bool

	// ProcessID identifies this instance cluster-wide. Defaults to
	// hostname-pid.
	ProcessID string

	// PingInterval is the maintenance cycle cadence.
	PingInterval time.Duration

	// CatalogBackend selects the lock catalog implementation.
	CatalogBackend string

	// MongoURI and MongoDatabase configure the mongo backend.
	MongoURI      string
	MongoDatabase string

	// DatabaseURL configures the postgres backend.
	DatabaseURL string

	// RedisAddr and RedisDB configure the redis backend.
	RedisAddr string
	RedisDB   int

	// LockWaitFor is the wait budget applied to acquire requests that do
	// not specify one.
	LockWaitFor time.Duration

	// LockTryInterval is the retry interval applied to acquire requests
	// that do not specify one.
	LockTryInterval time.Duration

	// MaxPayloadSize is the maximum request body size in bytes.
	MaxPayloadSize int64
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		LogPretty:       getEnvBoolOrDefault("LOG_PRETTY", false),
		ProcessID:       getEnvOrDefault("PROCESS_ID", defaultProcessID()),
		PingInterval:    getEnvDurationOrDefault("PING_INTERVAL", DefaultPingInterval),
		CatalogBackend:  getEnvOrDefault("CATALOG_BACKEND", BackendMemory),
		MongoURI:        getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnvOrDefault("MONGO_DATABASE", "distlock"),
		DatabaseURL:     getEnvOrDefault("DATABASE_URL", ""),
		RedisAddr:       getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisDB:         getEnvIntOrDefault("REDIS_DB", 0),
		LockWaitFor:     getEnvDurationOrDefault("LOCK_WAIT_FOR", DefaultLockWaitFor),
		LockTryInterval: getEnvDurationOrDefault("LOCK_TRY_INTERVAL", DefaultLockTryInterval),
		MaxPayloadSize:  getEnvInt64OrDefault("MAX_PAYLOAD_SIZE", DefaultMaxPayloadSize),
	}
}

// defaultProcessID builds a cluster-unique identity from hostname and pid.
func defaultProcessID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the environment variable value as int or the default if not set or invalid.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt64OrDefault returns the environment variable value as int64 or the default if not set or invalid.
func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the environment variable value as bool or the default if not set or invalid.
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns the environment variable value as a duration or the default if not set or invalid.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
