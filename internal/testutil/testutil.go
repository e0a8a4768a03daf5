// Package testutil holds shared helpers for tests: user builders and access
// to a disposable Redis database.
package testutil

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TestingTB is the subset of testing.TB the helpers need.
type TestingTB interface {
	Helper()
	Skipf(format string, args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

const defaultTestRedisDB = 13

// envBool parses common truthy values from env vars.
func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// redisCandidates lists addresses to probe, REDIS_ADDR first.
func redisCandidates() []string {
	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		return []string{addr}
	}
	return []string{"localhost:6379", "redis:6379"}
}

// testRedisDB returns TEST_REDIS_DB when it is a valid non-zero index. DB 0
// is refused because the helper flushes the database it hands out.
func testRedisDB(t TestingTB) int {
	v := strings.TrimSpace(os.Getenv("TEST_REDIS_DB"))
	if v == "" {
		return defaultTestRedisDB
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 || i > 15 {
		t.Logf("ignoring TEST_REDIS_DB=%q, using %d", v, defaultTestRedisDB)
		return defaultTestRedisDB
	}
	return i
}

// SetupTestRedis returns a client on an empty scratch database. The test is
// skipped when no Redis answers, unless TEST_REQUIRE_REDIS is set.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	db := testRedisDB(t)
	var lastErr error
	for _, addr := range redisCandidates() {
		client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := client.Ping(ctx).Err()
		if err == nil {
			err = client.FlushDB(ctx).Err()
		}
		cancel()
		if err != nil {
			lastErr = err
			_ = client.Close()
			continue
		}

		t.Cleanup(func() { _ = client.Close() })
		return client
	}

	if envBool("TEST_REQUIRE_REDIS") {
		t.Fatalf("redis not available for testing: %v", lastErr)
	}
	t.Skipf("redis not available for testing: %v", lastErr)
	return nil
}

// BoolPtr returns a pointer to the given bool value.
func BoolPtr(b bool) *bool {
	return &b
}
