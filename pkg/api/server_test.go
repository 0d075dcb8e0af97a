package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
	"github.com/ledgerflow-xyz/evmindexer/pkg/config"
	"github.com/ledgerflow-xyz/evmindexer/tests/helpers"
	"github.com/stretchr/testify/require"
)

func testAPIConfig() *config.APIConfig {
	cfg := &config.APIConfig{Enabled: true, ListenAddress: ":0"}
	cfg.ApplyDefaults()
	return cfg
}

func TestNewServer_HealthzRoute(t *testing.T) {
	database := helpers.NewTestDB(t, "api_server_healthz")

	srv := NewServer(testAPIConfig(), database, nil, logger.NewNopLogger())

	w := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestNewServer_StatusRoute(t *testing.T) {
	database := helpers.NewTestDB(t, "api_server_status")

	srv := NewServer(testAPIConfig(), database, nil, logger.NewNopLogger())

	w := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestNewServer_CORSDisabledByDefault(t *testing.T) {
	database := helpers.NewTestDB(t, "api_server_cors_off")

	srv := NewServer(testAPIConfig(), database, nil, logger.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	w := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(w, req)

	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewServer_CORSEnabled(t *testing.T) {
	database := helpers.NewTestDB(t, "api_server_cors_on")

	cfg := testAPIConfig()
	cfg.CORS = config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://dashboard.example.com"}}

	srv := NewServer(cfg, database, nil, logger.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	w := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(w, req)

	require.Equal(t, "https://dashboard.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
