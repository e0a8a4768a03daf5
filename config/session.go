package config

import (
	"strings"
	"time"
)

const minStartupRefreshTimeout = time.Second

// SessionConfig tunes the session authority.
type SessionConfig struct {
	// StartupRefreshTimeout bounds the background profile refresh at startup.
	StartupRefreshTimeout time.Duration `env:"SESSION_STARTUP_REFRESH_TIMEOUT" envDefault:"10s"`

	// LogoutOnUnauthorized ends a restored session whose token the backend rejects with 401.
	LogoutOnUnauthorized bool `env:"SESSION_LOGOUT_ON_UNAUTHORIZED" envDefault:"true"`

	// LoginPath is where guards send unauthenticated requests.
	LoginPath string `env:"SESSION_LOGIN_PATH" envDefault:"/login"`
}

// Sanitize clamps the startup timeout and normalises the login path.
func (c *SessionConfig) Sanitize() {
	if c.StartupRefreshTimeout < minStartupRefreshTimeout {
		c.StartupRefreshTimeout = minStartupRefreshTimeout
	}
	c.LoginPath = strings.TrimSpace(c.LoginPath)
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		c.LoginPath = "/" + c.LoginPath
	}
}
