package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kneutral-org/distlock/internal/catalog"
	"github.com/kneutral-org/distlock/internal/lock"
)

// mockManager implements LockManager for testing.
type mockManager struct {
	lockFn        func(ctx context.Context, name, why string, waitFor, lockTryInterval time.Duration) (lock.Handle, error)
	checkStatusFn func(ctx context.Context, handle lock.Handle) error

	unlockedHandles []lock.Handle
	lastWaitFor     time.Duration
	lastTryInterval time.Duration
}

func (m *mockManager) Lock(ctx context.Context, name, why string, waitFor, lockTryInterval time.Duration) (lock.Handle, error) {
	m.lastWaitFor = waitFor
	m.lastTryInterval = lockTryInterval
	if m.lockFn != nil {
		return m.lockFn(ctx, name, why, waitFor, lockTryInterval)
	}
	return uuid.New(), nil
}

func (m *mockManager) Unlock(ctx context.Context, handle lock.Handle) {
	m.unlockedHandles = append(m.unlockedHandles, handle)
}

func (m *mockManager) CheckStatus(ctx context.Context, handle lock.Handle) error {
	if m.checkStatusFn != nil {
		return m.checkStatusFn(ctx, handle)
	}
	return nil
}

func setupRouter(manager LockManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewHandler(manager, Defaults{
		WaitFor:         5 * time.Second,
		LockTryInterval: 100 * time.Millisecond,
	}, zerolog.Nop())
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func TestAcquireLock_Success(t *testing.T) {
	handle := uuid.New()
	manager := &mockManager{
		lockFn: func(ctx context.Context, name, why string, waitFor, lockTryInterval time.Duration) (lock.Handle, error) {
			assert.Equal(t, "migration-lock", name)
			assert.Equal(t, "schema migration", why)
			return handle, nil
		},
	}
	router := setupRouter(manager)

	body, _ := json.Marshal(AcquireRequest{Why: "schema migration"})
	req := httptest.NewRequest("POST", "/api/v1/locks/migration-lock", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp AcquireResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "migration-lock", resp.Name)
	assert.Equal(t, handle.String(), resp.Handle)
}

func TestAcquireLock_DefaultsApplied(t *testing.T) {
	manager := &mockManager{}
	router := setupRouter(manager)

	req := httptest.NewRequest("POST", "/api/v1/locks/balancer", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5*time.Second, manager.lastWaitFor)
	assert.Equal(t, 100*time.Millisecond, manager.lastTryInterval)
}

func TestAcquireLock_CustomDurations(t *testing.T) {
	manager := &mockManager{}
	router := setupRouter(manager)

	body, _ := json.Marshal(AcquireRequest{
		Why:             "no-wait probe",
		WaitFor:         "0s",
		LockTryInterval: "50ms",
	})
	req := httptest.NewRequest("POST", "/api/v1/locks/balancer", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Duration(0), manager.lastWaitFor)
	assert.Equal(t, 50*time.Millisecond, manager.lastTryInterval)
}

func TestAcquireLock_InvalidDuration(t *testing.T) {
	manager := &mockManager{}
	router := setupRouter(manager)

	body, _ := json.Marshal(AcquireRequest{WaitFor: "soon"})
	req := httptest.NewRequest("POST", "/api/v1/locks/balancer", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcquireLock_Busy(t *testing.T) {
	manager := &mockManager{
		lockFn: func(ctx context.Context, name, why string, waitFor, lockTryInterval time.Duration) (lock.Handle, error) {
			return uuid.Nil, lock.ErrLockBusy
		},
	}
	router := setupRouter(manager)

	req := httptest.NewRequest("POST", "/api/v1/locks/busy-lock", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "lockBusy")
}

func TestAcquireLock_CatalogError(t *testing.T) {
	manager := &mockManager{
		lockFn: func(ctx context.Context, name, why string, waitFor, lockTryInterval time.Duration) (lock.Handle, error) {
			return uuid.Nil, assert.AnError
		},
	}
	router := setupRouter(manager)

	req := httptest.NewRequest("POST", "/api/v1/locks/flaky", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "catalogError")
}

func TestReleaseLock(t *testing.T) {
	manager := &mockManager{}
	router := setupRouter(manager)

	handle := uuid.New()
	req := httptest.NewRequest("DELETE", "/api/v1/locks/"+handle.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, manager.unlockedHandles, 1)
	assert.Equal(t, handle, manager.unlockedHandles[0])
}

func TestReleaseLock_InvalidHandle(t *testing.T) {
	manager := &mockManager{}
	router := setupRouter(manager)

	req := httptest.NewRequest("DELETE", "/api/v1/locks/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, manager.unlockedHandles)
}

func TestLockStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusErr  error
		wantStatus int
		wantBody   string
	}{
		{"held", nil, http.StatusOK, "held"},
		{"not_found", catalog.ErrLockNotFound, http.StatusNotFound, "lockNotFound"},
		{"owner_changed", lock.ErrLockOwnerChanged, http.StatusConflict, "ownerChanged"},
		{"catalog_error", assert.AnError, http.StatusBadGateway, "catalogError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := &mockManager{
				checkStatusFn: func(ctx context.Context, handle lock.Handle) error {
					return tt.statusErr
				},
			}
			router := setupRouter(manager)

			req := httptest.NewRequest("GET", "/api/v1/locks/"+uuid.New().String(), nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}
