package bootstrap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itiportal/portal-session/config"
	mockauth "github.com/itiportal/portal-session/internal/mocks/auth"
	"github.com/itiportal/portal-session/internal/observability/metrics"
	"github.com/itiportal/portal-session/internal/service"
)

func TestGateway_ServeAndShutdown(t *testing.T) {
	cfg := &config.AppConfig{HTTP: config.HTTPConfig{Addr: "127.0.0.1:0", MetricsEnabled: true}}
	cfg.Sanitize()

	reg := prometheus.NewRegistry()
	prom, err := metrics.NewPrometheus(reg)
	require.NoError(t, err)

	authority := service.NewSessionAuthority(service.SessionAuthorityOptions{
		Store:   mockauth.NewMemoryCredentialStore(),
		API:     mockauth.NewFakePortalAPI(),
		Logger:  discardLogger(),
		Metrics: prom,
	})
	<-authority.Start(context.Background())

	gw, err := StartGateway(GatewayConfig{Config: cfg, Session: authority, Gatherer: reg, Logger: discardLogger()})
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- gw.Serve() }()

	base := "http://" + gw.Addr()
	for _, path := range []string{"/healthz", "/auth/session", "/metrics"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err, path)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	require.NoError(t, gw.Shutdown(context.Background()))
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not stop")
	}
}

func TestStartGateway_RequiresConfig(t *testing.T) {
	_, err := StartGateway(GatewayConfig{})
	require.Error(t, err)
}

func TestBuildGatewayHandler_MetricsDisabled(t *testing.T) {
	cfg := &config.AppConfig{}
	cfg.Sanitize()
	cfg.HTTP.MetricsEnabled = false

	authority := service.NewSessionAuthority(service.SessionAuthorityOptions{
		Store:  mockauth.NewMemoryCredentialStore(),
		API:    mockauth.NewFakePortalAPI(),
		Logger: discardLogger(),
	})
	h := BuildGatewayHandler(GatewayConfig{Config: cfg, Session: authority, Gatherer: prometheus.NewRegistry()})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateway_ShutdownNil(t *testing.T) {
	var gw *Gateway
	assert.NoError(t, gw.Shutdown(context.Background()))
}
