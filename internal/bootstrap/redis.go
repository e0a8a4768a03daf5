package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/itiportal/portal-session/config"
)

// RedisConnConfig contains configuration for the Redis credential store connection.
type RedisConnConfig struct {
	Redis  config.RedisConfig
	Logger *slog.Logger
}

type redisMode string

const (
	redisDirect   redisMode = "direct"
	redisSentinel redisMode = "sentinel"
	redisCluster  redisMode = "cluster"
)

// ConnectRedis dials Redis in direct, sentinel or cluster mode and pings it.
//
//nolint:ireturn // the concrete client depends on the configured mode.
func ConnectRedis(cfg RedisConnConfig) (redis.UniversalClient, error) {
	mode, opts, err := redisOptions(cfg.Redis)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	switch mode {
	case redisCluster:
		client = redis.NewClusterClient(opts.Cluster())
	case redisSentinel:
		client = redis.NewFailoverClient(opts.Failover())
	default:
		client = redis.NewClient(opts.Simple())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis (%s): %w", mode, pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected",
			"mode", string(mode),
			"addrs", strings.Join(opts.Addrs, ","),
			"purpose", "credential store",
		)
	}
	return client, nil
}

// redisOptions resolves the configured mode into one option set. URL-form
// URIs (redis:// or rediss://) contribute address, credentials, DB and TLS;
// explicit REDIS_PASSWORD wins only when the URL carries none.
func redisOptions(cfg config.RedisConfig) (redisMode, *redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{Password: cfg.Password, DB: cfg.DB}

	if cfg.UseSentinel && !cfg.UseCluster {
		opts.Addrs = normalizeAddrs(cfg.SentinelNodes)
		if len(opts.Addrs) == 0 {
			return "", nil, errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		opts.MasterName = strings.TrimSpace(cfg.SentinelMasterName)
		if opts.MasterName == "" {
			return "", nil, errors.New("redis sentinel configuration requires a master name")
		}
		opts.SentinelPassword = cfg.SentinelPassword
		return redisSentinel, opts, nil
	}

	mode := redisDirect
	if cfg.UseCluster {
		mode = redisCluster
		opts.Addrs = normalizeAddrs(cfg.ClusterNodes)
		if len(opts.Addrs) > 0 {
			return mode, opts, nil
		}
	}

	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return "", nil, fmt.Errorf("redis %s configuration requires an address", mode)
	}
	if !isRedisURL(uri) {
		opts.Addrs = []string{uri}
		return mode, opts, nil
	}

	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return "", nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	if mode == redisDirect {
		opts.DB = parsed.DB
	}
	opts.TLSConfig = parsed.TLSConfig
	return mode, opts, nil
}

func normalizeAddrs(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		if a := strings.TrimSpace(addr); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}
