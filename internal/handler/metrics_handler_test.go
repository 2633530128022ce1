package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/service"
)

type pingStub struct{ err error }

func (p pingStub) PingContext(ctx context.Context) error { return p.err }

func TestMetricsHandlerReady(t *testing.T) {
	metrics := service.NewMetricsService()

	h := NewMetricsHandler(metrics, pingStub{})
	c, w := newTestContext(http.MethodGet, "/ready", nil, nil)
	h.Ready(c)
	require.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(metrics, pingStub{err: errors.New("connection refused")})
	c, w = newTestContext(http.MethodGet, "/ready", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	series, err := testutil.GatherAndCount(metrics.Registry(), "db_query_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), nil)
	c, w := newTestContext(http.MethodGet, "/metrics", nil, nil)
	h.Prometheus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "deliverable_periods_created_total")

	h = NewMetricsHandler(nil, nil)
	c, w = newTestContext(http.MethodGet, "/metrics", nil, nil)
	h.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.True(t, c.IsAborted())

	r := gin.New()
	r.GET("/metrics", h.Prometheus)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestAuthHandlerMe(t *testing.T) {
	h := NewAuthHandler()
	vendor := &models.JWTClaims{UserID: "u-1", Role: models.RoleVendor, CompanyID: "company-1", Email: "ops@vendor.test"}

	c, w := newTestContext(http.MethodGet, "/auth/me", nil, vendor)
	h.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"company_id":"company-1"`)

	c, w = newTestContext(http.MethodGet, "/auth/me", nil, nil)
	h.Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
