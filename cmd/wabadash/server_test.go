package main

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"wabadash/internal/metrics"
	"wabadash/internal/middleware"
	"wabadash/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestServer_HandleHealth(t *testing.T) {
	history := new(mockHistory)
	history.On("Ping", mock.Anything).Return(nil).Once()
	s := newTestServer(testConfig(), Dependencies{History: history})

	w := doRequest(s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
	history.AssertExpectations(t)
}

func TestServer_HandleHealth_StoreDown(t *testing.T) {
	history := new(mockHistory)
	history.On("Ping", mock.Anything).Return(errors.New("connection refused"))
	s := newTestServer(testConfig(), Dependencies{History: history})

	w := doRequest(s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", decodeBody(t, w)["status"])
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	history := new(mockHistory)
	history.On("Ping", mock.Anything).Return(nil)
	s := newTestServer(testConfig(), Dependencies{History: history, Metrics: m})

	doRequest(s, http.MethodGet, "/health", nil)
	w := doRequest(s, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `wabadash_http_requests_total{method="GET",route="/health",status_code="200"} 1`)
}

func authConfig() *models.Config {
	cfg := testConfig()
	cfg.Auth = models.AuthConfig{JWTSecret: strings.Repeat("k", 32), Issuer: "wabadash"}
	return cfg
}

func TestServer_APIRequiresToken(t *testing.T) {
	cfg := authConfig()
	history := new(mockHistory)
	history.On("Ping", mock.Anything).Return(nil)
	s := newTestServer(cfg, Dependencies{History: history})

	w := doRequest(s, http.MethodGet, "/api/logs", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// public routes stay open
	w = doRequest(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_SettingsMutationRequiresAdmin(t *testing.T) {
	cfg := authConfig()
	auth := middleware.NewAuth(cfg.Auth, quietLogger())
	admin := new(mockSettingsAPI)
	admin.On("Public", mock.Anything).Return(&models.PublicSettings{ID: "settings-1"}, nil)
	admin.On("Update", mock.Anything, mock.Anything).Return(&models.PublicSettings{ID: "settings-1"}, nil)
	s := newTestServer(cfg, Dependencies{Admin: admin, Auth: auth})

	viewer, err := auth.IssueToken("viewer", middleware.RoleViewer, time.Hour)
	require.NoError(t, err)
	adminToken, err := auth.IssueToken("admin", middleware.RoleAdmin, time.Hour)
	require.NoError(t, err)

	w := doRequest(s, http.MethodGet, "/api/settings", nil, "Authorization", "Bearer "+viewer)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodPut, "/api/settings", map[string]any{"access_token": "new"}, "Authorization", "Bearer "+viewer)
	assert.Equal(t, http.StatusForbidden, w.Code)
	admin.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)

	w = doRequest(s, http.MethodPut, "/api/settings", map[string]any{"access_token": "new"}, "Authorization", "Bearer "+adminToken)
	assert.Equal(t, http.StatusOK, w.Code)
	admin.AssertCalled(t, "Update", mock.Anything, mock.MatchedBy(func(in models.APISettings) bool {
		return in.AccessToken == "new"
	}))
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 15*time.Second, seconds(0, 15))
	assert.Equal(t, 3*time.Second, seconds(3, 15))
}

func TestBackoffConfig(t *testing.T) {
	bc := backoffConfig(models.RetryConfig{})
	assert.Equal(t, 500*time.Millisecond, bc.InitialDelay)
	assert.Equal(t, 3, bc.MaxAttempts)

	bc = backoffConfig(models.RetryConfig{InitialBackoffMs: 10, MaxBackoffMs: 100, MaxAttempts: 7})
	assert.Equal(t, 10*time.Millisecond, bc.InitialDelay)
	assert.Equal(t, 100*time.Millisecond, bc.MaxDelay)
	assert.Equal(t, 7, bc.MaxAttempts)
}
