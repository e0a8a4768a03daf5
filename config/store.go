package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StoreKind selects the credential store backend.
type StoreKind string

const (
	// StoreFile keeps credentials in a local JSON file.
	StoreFile StoreKind = "file"
	// StoreRedis keeps credentials in Redis.
	StoreRedis StoreKind = "redis"
	// StoreMemory keeps credentials in process memory only.
	StoreMemory StoreKind = "memory"
)

// ValidStoreKinds returns all valid store kinds.
func ValidStoreKinds() []StoreKind {
	return []StoreKind{StoreFile, StoreRedis, StoreMemory}
}

// ParseStoreKind parses a store kind case-insensitively.
func ParseStoreKind(s string) (StoreKind, error) {
	k := StoreKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case StoreFile, StoreRedis, StoreMemory:
		return k, nil
	default:
		return "", fmt.Errorf("invalid credential store: %s (valid options: %v)", s, ValidStoreKinds())
	}
}

// StoreConfig selects and configures the credential store.
type StoreConfig struct {
	Kind string `env:"CREDENTIAL_STORE" envDefault:"file"`

	// Path is the file store location. Empty means $HOME/.config/iti-portal/session.json.
	Path string `env:"CREDENTIAL_STORE_PATH"`

	// KeyPrefix namespaces the Redis keys.
	KeyPrefix string `env:"CREDENTIAL_STORE_KEY_PREFIX" envDefault:"portal:session:"`
}

// Sanitize normalises the kind and fills in the default file path.
func (c *StoreConfig) Sanitize() {
	c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))
	if c.Kind == "" {
		c.Kind = string(StoreFile)
	}
	c.Path = strings.TrimSpace(c.Path)
	if c.Path == "" {
		c.Path = DefaultStorePath()
	}
	if strings.TrimSpace(c.KeyPrefix) == "" {
		c.KeyPrefix = "portal:session:"
	}
}

// DefaultStorePath returns the per-user credential file location.
func DefaultStorePath() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "iti-portal", "session.json")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config", "iti-portal", "session.json")
	}
	return filepath.Join(os.TempDir(), "iti-portal", "session.json")
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}
