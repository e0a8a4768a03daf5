package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/itiportal/portal-session/config"
	"github.com/itiportal/portal-session/internal/adapters/filestore"
	"github.com/itiportal/portal-session/internal/adapters/memstore"
	"github.com/itiportal/portal-session/internal/adapters/portalapi"
	redisadapter "github.com/itiportal/portal-session/internal/adapters/redis"
	"github.com/itiportal/portal-session/internal/observability/metrics"
	"github.com/itiportal/portal-session/internal/observability/statsd"
	"github.com/itiportal/portal-session/internal/ports"
	"github.com/itiportal/portal-session/internal/service"
)

// StoreConfig contains configuration for the credential store.
type StoreConfig struct {
	Store  config.StoreConfig
	Redis  config.RedisConfig
	Logger *slog.Logger

	// RedisClient, when set, is used instead of dialing Redis.
	RedisClient redis.UniversalClient
}

// BuildCredentialStore returns the configured credential store and a func
// releasing whatever it opened.
//
//nolint:ireturn // the store kind is chosen at runtime.
func BuildCredentialStore(cfg StoreConfig) (ports.CredentialStore, func() error, error) {
	noop := func() error { return nil }

	kind, err := config.ParseStoreKind(cfg.Store.Kind)
	if err != nil {
		return nil, noop, err
	}

	switch kind {
	case config.StoreMemory:
		return memstore.NewCredentialStore(), noop, nil
	case config.StoreRedis:
		client := cfg.RedisClient
		closeFn := noop
		if client == nil {
			client, err = ConnectRedis(RedisConnConfig{Redis: cfg.Redis, Logger: cfg.Logger})
			if err != nil {
				return nil, noop, fmt.Errorf("connect redis: %w", err)
			}
			closeFn = client.Close
		}
		return redisadapter.NewCredentialStoreWithPrefix(client, cfg.Store.KeyPrefix), closeFn, nil
	default:
		fs, fsErr := filestore.NewCredentialStore(cfg.Store.Path)
		if fsErr != nil {
			return nil, noop, fsErr
		}
		if cfg.Logger != nil {
			cfg.Logger.Debug("using file credential store", "path", fs.Path())
		}
		return fs, noop, nil
	}
}

// SessionConfig contains everything needed to assemble the session stack.
type SessionConfig struct {
	Config *config.AppConfig
	Logger *slog.Logger

	// Registerer receives session metrics. Nil disables metrics.
	Registerer prometheus.Registerer

	// Store and API override the configured adapters (tests).
	Store ports.CredentialStore
	API   ports.PortalAPI
}

// SessionContainer holds the assembled session stack.
type SessionContainer struct {
	Authority *service.SessionAuthority
	Store     ports.CredentialStore
	API       ports.PortalAPI
	Metrics   *metrics.Prometheus
	Statsd    *statsd.Client

	closers []func() error
}

// Close stops the authority and releases the store connection.
func (c *SessionContainer) Close() error {
	if c == nil {
		return nil
	}
	if c.Authority != nil {
		c.Authority.Close()
	}
	var errs []error
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildSession wires the portal API client, credential store, metrics and
// session authority from configuration. It does not call Start.
func BuildSession(cfg SessionConfig) (*SessionContainer, error) {
	if cfg.Config == nil {
		return nil, errors.New("session config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	c := &SessionContainer{Store: cfg.Store, API: cfg.API}

	if c.API == nil {
		api, err := portalapi.NewClient(portalapi.Config{
			BaseURL:            appCfg.API.BaseURL,
			Timeout:            appCfg.API.Timeout,
			UserAgent:          appCfg.API.UserAgent,
			ProfileUserPath:    appCfg.API.ProfileUserPath,
			CompanyProfilePath: appCfg.API.CompanyProfilePath,
			TokenPath:          appCfg.API.TokenPath,
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build portal api client: %w", err)
		}
		c.API = api
	}

	if c.Store == nil {
		store, closeFn, err := BuildCredentialStore(StoreConfig{
			Store:  appCfg.Store,
			Redis:  appCfg.Redis,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build credential store: %w", err)
		}
		c.Store = store
		c.closers = append(c.closers, closeFn)
	}

	if cfg.Registerer != nil {
		prom, err := metrics.NewPrometheus(cfg.Registerer)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("register session metrics: %w", err)
		}
		c.Metrics = prom
	}

	if sc := appCfg.Observability.Statsd; sc.IsEnabled() {
		client, err := statsd.Dial(context.Background(), statsd.Config{
			Address: sc.Address,
			Prefix:  sc.Prefix,
			Tags:    map[string]string{"service": "portal-session"},
			Logger:  logger,
		})
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("connect statsd: %w", err)
		}
		c.Statsd = client
		c.closers = append(c.closers, client.Close)
		logger.Info("statsd session metrics enabled", "address", sc.Address)
	}

	var statsdSink metrics.Sink
	if c.Statsd != nil {
		statsdSink = metrics.NewStatsd(c.Statsd)
	}
	sink := metrics.Multi(c.Metrics, statsdSink)

	c.Authority = service.NewSessionAuthority(service.SessionAuthorityOptions{
		Store:                 c.Store,
		API:                   c.API,
		Logger:                logger.With("component", "session"),
		Metrics:               sink,
		StartupRefreshTimeout: appCfg.Session.StartupRefreshTimeout,
		LogoutOnUnauthorized:  appCfg.Session.LogoutOnUnauthorized,
	})
	if sink != nil {
		c.Authority.Subscribe(metrics.StateObserver(sink))
	}
	return c, nil
}
