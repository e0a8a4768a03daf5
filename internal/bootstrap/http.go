package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itiportal/portal-session/config"
	httpx "github.com/itiportal/portal-session/internal/http"
	"github.com/itiportal/portal-session/internal/guard"
)

// GatewayConfig contains configuration for the local HTTP gateway.
type GatewayConfig struct {
	Config  *config.AppConfig
	Session httpx.SessionAuthority
	// Gatherer backs /metrics when metrics are enabled.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// BuildGatewayHandler assembles the router and its middleware.
// Order: Recover -> Logging -> Router.
func BuildGatewayHandler(cfg GatewayConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	var metricsHandler http.Handler
	if appCfg.HTTP.MetricsEnabled && cfg.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})
	}

	router := httpx.NewRouter(httpx.RouterServices{
		Session:   cfg.Session,
		Guard:     guard.New(appCfg.Session.LoginPath),
		Metrics:   metricsHandler,
		GuardWait: appCfg.Session.StartupRefreshTimeout,
		Logger:    logger,
	})

	var h http.Handler = router
	h = httpx.Logging(logger)(h)
	h = httpx.Recover(logger)(h)
	return h
}

// Gateway is a running HTTP gateway.
type Gateway struct {
	Server   *http.Server
	listener net.Listener
	logger   *slog.Logger
	timeout  time.Duration
}

// Addr returns the bound address, useful when configured with port 0.
func (g *Gateway) Addr() string {
	return g.listener.Addr().String()
}

// StartGateway binds the configured address and returns the gateway.
// Serving starts with Serve.
func StartGateway(cfg GatewayConfig) (*Gateway, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		return nil, errors.New("gateway config is required")
	}

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = "127.0.0.1:8090"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           BuildGatewayHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// WriteTimeout is left at zero so event streams stay open.
		IdleTimeout: 120 * time.Second,
	}

	return &Gateway{
		Server:   server,
		listener: ln,
		logger:   logger,
		timeout:  appCfg.HTTP.ShutdownTimeout,
	}, nil
}

// Serve blocks until the server stops. A graceful shutdown returns nil.
func (g *Gateway) Serve() error {
	g.logger.Info("starting HTTP gateway", "addr", g.Server.Addr)
	if err := g.Server.Serve(g.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the gateway.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g == nil || g.Server == nil {
		return nil
	}
	g.logger.Info("shutting down HTTP gateway")

	timeout := g.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := g.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	g.logger.Info("HTTP gateway stopped")
	return nil
}
