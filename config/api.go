package config

import (
	"strings"
	"time"
)

// APIConfig describes the remote portal backend.
type APIConfig struct {
	// BaseURL is the API root; endpoint paths are appended to it.
	BaseURL string `env:"PORTAL_API_BASE_URL" envDefault:"http://localhost:8000/api"`

	// Timeout bounds every API request.
	Timeout time.Duration `env:"PORTAL_API_TIMEOUT" envDefault:"15s"`

	UserAgent string `env:"PORTAL_API_USER_AGENT" envDefault:"portal-session"`

	// JMESPath expressions locating payloads inside the {success, data, message} envelope.
	ProfileUserPath    string `env:"PORTAL_API_PROFILE_USER_PATH"    envDefault:"data.user"`
	CompanyProfilePath string `env:"PORTAL_API_COMPANY_PROFILE_PATH" envDefault:"data"`
	TokenPath          string `env:"PORTAL_API_TOKEN_PATH"           envDefault:"data.token"`
}

// Sanitize trims values and restores defaults for blanks.
func (c *APIConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	c.ProfileUserPath = orDefault(c.ProfileUserPath, "data.user")
	c.CompanyProfilePath = orDefault(c.CompanyProfilePath, "data")
	c.TokenPath = orDefault(c.TokenPath, "data.token")
}

func orDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
