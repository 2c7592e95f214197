package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
)

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

func serveHealth(t *testing.T, hc healthChecker) (*httptest.ResponseRecorder, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.GET("/health", healthHandler(hc, logger.Wrap(zap.New(core))))

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/health", nil)
	require.NoError(t, err)
	r.ServeHTTP(w, req)
	return w, logs
}

func TestHealth_OK(t *testing.T) {
	w, logs := serveHealth(t, stubChecker{})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Zero(t, logs.Len())
}

func TestHealth_FailureIsNotExposed(t *testing.T) {
	w, logs := serveHealth(t, stubChecker{err: errors.New("dial tcp db.internal:5432: connection refused")})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "db.internal")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "health check failed", entry.Message)
	assert.Contains(t, entry.ContextMap()["error"], "db.internal")
}
