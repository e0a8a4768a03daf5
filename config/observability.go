package config

import (
	"strings"
)

// ObservabilityConfig groups configuration that controls logging and external metrics.
type ObservabilityConfig struct {
	Logging LoggingConfig
	Statsd  StatsdConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize(isDev bool) {
	c.Logging.Sanitize(isDev)
	c.Statsd.Sanitize()
}

// StatsdConfig controls the optional StatsD session metrics sink.
type StatsdConfig struct {
	Enabled bool   `env:"METRICS_STATSD_ENABLED" envDefault:"false"`
	Address string `env:"METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix  string `env:"METRICS_STATSD_PREFIX"  envDefault:"portal"`
}

// Sanitize disables the sink when no address is configured.
func (c *StatsdConfig) Sanitize() {
	c.Address = strings.TrimSpace(c.Address)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.Address == "" {
		c.Enabled = false
	}
}

// IsEnabled reports whether session metrics should be sent to StatsD.
func (c *StatsdConfig) IsEnabled() bool {
	return c.Enabled && c.Address != ""
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Empty means debug in dev and info otherwise.
	Level string `env:"LOG_LEVEL"`

	// Format is json or text. Empty means text in dev and json otherwise.
	Format string `env:"LOG_FORMAT"`

	// File, when set, receives logs through a daily rotating writer instead of stderr.
	File string `env:"LOG_FILE"`

	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int `env:"LOG_MAX_AGE_DAYS" envDefault:"7"`
}

// Sanitize normalises level and format, picking defaults by mode.
func (c *LoggingConfig) Sanitize(isDev bool) {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		c.Level = "info"
		if isDev {
			c.Level = "debug"
		}
	}

	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format != "json" && c.Format != "text" {
		c.Format = "json"
		if isDev {
			c.Format = "text"
		}
	}

	c.File = strings.TrimSpace(c.File)
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 7
	}
}
