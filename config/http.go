package config

import (
	"strings"
	"time"
)

// HTTPConfig contains local gateway configuration.
type HTTPConfig struct {
	// Addr is the address to bind the gateway to. Loopback by default since
	// the gateway fronts a single user's session.
	Addr string `env:"HTTP_ADDR" envDefault:"127.0.0.1:8090"`

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool `env:"HTTP_METRICS_ENABLED" envDefault:"true"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.Addr = strings.TrimSpace(h.Addr)
	if h.Addr == "" {
		h.Addr = "127.0.0.1:8090"
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
}
