// Package httpapi provides the HTTP handlers exposing the lock manager to
// clients across the cluster.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/distlock/internal/catalog"
	"github.com/kneutral-org/distlock/internal/lock"
)

// LockManager is the part of the lock manager the API depends on.
type LockManager interface {
	Lock(ctx context.Context, name, why string, waitFor, lockTryInterval time.Duration) (lock.Handle, error)
	Unlock(ctx context.Context, handle lock.Handle)
	CheckStatus(ctx context.Context, handle lock.Handle) error
}

// Defaults are applied to acquire requests that leave timing fields unset.
type Defaults struct {
	WaitFor         time.Duration
	LockTryInterval time.Duration
}

// Handler handles lock API requests.
type Handler struct {
	manager  LockManager
	defaults Defaults
	logger   zerolog.Logger
}

// NewHandler creates a new lock API handler with the provided dependencies.
func NewHandler(manager LockManager, defaults Defaults, logger zerolog.Logger) *Handler {
	return &Handler{
		manager:  manager,
		defaults: defaults,
		logger:   logger.With().Str("component", "httpapi").Logger(),
	}
}

// RegisterRoutes registers all lock routes on the provided router group.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	locks := router.Group("/locks")
	locks.POST("/:name", h.AcquireLock)
	locks.DELETE("/:handle", h.ReleaseLock)
	locks.GET("/:handle", h.LockStatus)
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// AcquireRequest is the body of an acquire call. WaitFor and
// LockTryInterval are Go duration strings; a WaitFor of "0s" makes exactly
// one attempt.
type AcquireRequest struct {
	Why             string `json:"why"`
	WaitFor         string `json:"waitFor,omitempty"`
	LockTryInterval string `json:"lockTryInterval,omitempty"`
}

// AcquireResponse is returned once a lock is held.
type AcquireResponse struct {
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

// AcquireLock handles POST /locks/:name.
func (h *Handler) AcquireLock(c *gin.Context) {
	name := c.Param("name")

	var req AcquireRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "badRequest",
			Message: "invalid request body: " + err.Error(),
		})
		return
	}

	waitFor := h.defaults.WaitFor
	if req.WaitFor != "" {
		parsed, err := time.ParseDuration(req.WaitFor)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "badRequest",
				Message: "invalid waitFor duration: " + req.WaitFor,
			})
			return
		}
		waitFor = parsed
	}

	tryInterval := h.defaults.LockTryInterval
	if req.LockTryInterval != "" {
		parsed, err := time.ParseDuration(req.LockTryInterval)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "badRequest",
				Message: "invalid lockTryInterval duration: " + req.LockTryInterval,
			})
			return
		}
		tryInterval = parsed
	}

	handle, err := h.manager.Lock(c.Request.Context(), name, req.Why, waitFor, tryInterval)
	if err != nil {
		if errors.Is(err, lock.ErrLockBusy) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "lockBusy",
				Message: err.Error(),
			})
			return
		}
		h.logger.Error().Err(err).Str("lock", name).Msg("lock acquisition failed")
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "catalogError",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, AcquireResponse{Name: name, Handle: handle.String()})
}

// ReleaseLock handles DELETE /locks/:handle. Release is fire and forget:
// the manager retries failed catalog unlocks in the background, so this
// always accepts.
func (h *Handler) ReleaseLock(c *gin.Context) {
	handle, ok := h.parseHandle(c)
	if !ok {
		return
	}

	h.manager.Unlock(c.Request.Context(), handle)
	c.JSON(http.StatusAccepted, gin.H{"status": "release scheduled"})
}

// LockStatus handles GET /locks/:handle.
func (h *Handler) LockStatus(c *gin.Context) {
	handle, ok := h.parseHandle(c)
	if !ok {
		return
	}

	err := h.manager.CheckStatus(c.Request.Context(), handle)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "held"})
	case errors.Is(err, catalog.ErrLockNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "lockNotFound",
			Message: err.Error(),
		})
	case errors.Is(err, lock.ErrLockOwnerChanged):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "ownerChanged",
			Message: err.Error(),
		})
	default:
		h.logger.Error().Err(err).Str("handle", handle.String()).Msg("status check failed")
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "catalogError",
			Message: err.Error(),
		})
	}
}

// parseHandle parses the :handle path parameter, responding with 400 when
// it is not a valid session id.
func (h *Handler) parseHandle(c *gin.Context) (lock.Handle, bool) {
	handle, err := uuid.Parse(c.Param("handle"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "badRequest",
			Message: "invalid lock handle: " + c.Param("handle"),
		})
		return uuid.Nil, false
	}
	return handle, true
}
