package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

type stubChecker struct {
	name  string
	err   error
	delay time.Duration
}

func (s stubChecker) Name() string { return s.name }

func (s stubChecker) Check(ctx context.Context) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

func healthEngine(h *HealthHandler) *gin.Engine {
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthHandler_Liveness(t *testing.T) {
	r := healthEngine(NewHealthHandler("1.2.3", stubChecker{name: "redis", err: errors.Internal("down")}))
	w := get(r, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestHealthHandler_Readiness(t *testing.T) {
	t.Run("no checkers", func(t *testing.T) {
		w := get(healthEngine(NewHealthHandler("v")), "/readyz")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ready"}`, w.Body.String())
	})

	t.Run("all healthy", func(t *testing.T) {
		h := NewHealthHandler("v", stubChecker{name: "redis"}, stubChecker{name: "postgres"})
		w := get(healthEngine(h), "/readyz")
		require.Equal(t, http.StatusOK, w.Code)
		var resp ReadinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ready", resp.Status)
		assert.Len(t, resp.Components, 2)
		assert.Equal(t, statusHealthy, resp.Components["postgres"].Status)
	})

	t.Run("one failing", func(t *testing.T) {
		h := NewHealthHandler("v", stubChecker{name: "redis"}, stubChecker{name: "neo4j", err: errors.Internal("refused")})
		w := get(healthEngine(h), "/readyz")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp ReadinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "not_ready", resp.Status)
		assert.Equal(t, statusUnhealthy, resp.Components["neo4j"].Status)
		assert.Contains(t, resp.Components["neo4j"].Error, "refused")
	})

	t.Run("slow checker times out", func(t *testing.T) {
		h := NewHealthHandler("v", stubChecker{name: "minio", delay: time.Minute})
		h.timeout = 20 * time.Millisecond
		w := get(healthEngine(h), "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestHealthHandler_Detailed(t *testing.T) {
	h := NewHealthHandler("v9", stubChecker{name: "redis", err: errors.Internal("x")})
	w := get(healthEngine(h), "/healthz/detail")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp DetailedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "v9", resp.Version)
	assert.Contains(t, resp.Components, "redis")
}
