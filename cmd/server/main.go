// Package main provides the entry point for the distlock server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kneutral-org/distlock/internal/catalog"
	"github.com/kneutral-org/distlock/internal/config"
	"github.com/kneutral-org/distlock/internal/httpapi"
	"github.com/kneutral-org/distlock/internal/lock"
	"github.com/kneutral-org/distlock/internal/logging"
	"github.com/kneutral-org/distlock/internal/metrics"
	"github.com/kneutral-org/distlock/internal/middleware"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.LogPretty {
		logger = logging.NewPrettyLogger("distlock", cfg.LogLevel)
	} else {
		logger = logging.NewLogger("distlock", cfg.LogLevel)
	}

	cat, cleanup, err := buildCatalog(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.CatalogBackend).Msg("failed to initialize lock catalog")
	}
	defer cleanup()

	manager := lock.NewManager(lock.Config{
		ProcessID:    cfg.ProcessID,
		PingInterval: cfg.PingInterval,
	}, cat, logger)
	manager.StartUp()

	// Setup Gin router
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))
	router.Use(middleware.PayloadLimit(cfg.MaxPayloadSize, logger))

	metrics.RegisterMetricsEndpoint(router)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "processId": cfg.ProcessID})
	})

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	handler := httpapi.NewHandler(manager, httpapi.Defaults{
		WaitFor:         cfg.LockWaitFor,
		LockTryInterval: cfg.LockTryInterval,
	}, logger)
	handler.RegisterRoutes(apiV1)

	// Create server. Acquire calls can block for the caller's wait budget,
	// so the write timeout is generous.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("processId", cfg.ProcessID).
			Str("backend", cfg.CatalogBackend).
			Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	manager.ShutDown(ctx)

	logger.Info().Msg("server exited properly")
}

// buildCatalog constructs the configured catalog backend. The returned
// cleanup closes backend connections and is safe to call once at exit.
func buildCatalog(cfg *config.Config, logger zerolog.Logger) (catalog.Catalog, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.CatalogBackend {
	case config.BackendMemory:
		logger.Warn().Msg("using in-memory catalog; locks are not shared across processes")
		return catalog.NewMemoryCatalog(), func() {}, nil

	case config.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
		}
		cleanup := func() {
			disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer disconnectCancel()
			if err := client.Disconnect(disconnectCtx); err != nil {
				logger.Warn().Err(err).Msg("failed to disconnect mongodb client")
			}
		}
		return catalog.NewMongoCatalog(client.Database(cfg.MongoDatabase)), cleanup, nil

	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required for the postgres backend")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		cat := catalog.NewPostgresCatalog(pool)
		if err := cat.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return cat, pool.Close, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close redis client")
			}
		}
		return catalog.NewRedisCatalog(client), cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown catalog backend %q", cfg.CatalogBackend)
	}
}
