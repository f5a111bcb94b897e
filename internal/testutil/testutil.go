//go:build integration

// Package testutil provides helpers for integration tests that need a live
// Redis or PostgreSQL instance.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq" // postgres driver
)

// RedisDB is the database index integration tests use.
const RedisDB = 15

// RedisAddr returns the address of the test Redis container (IP:port).
// It first checks NEWTNET_TEST_REDIS_ADDR, then discovers the Docker container IP.
func RedisAddr() string {
	if addr := os.Getenv("NEWTNET_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}

	ip := containerIP("newtnet-test-redis")
	if ip == "" {
		return ""
	}
	return ip + ":6379"
}

func containerIP(name string) string {
	out, err := exec.Command("docker", "inspect",
		"--format", "{{range .NetworkSettings.Networks}}{{.IPAddress}}{{end}}",
		name).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// SkipIfNoRedis skips the test if the test Redis container is not reachable.
func SkipIfNoRedis(t *testing.T) {
	t.Helper()

	addr := RedisAddr()
	if addr == "" {
		t.Skip("test Redis not available: set NEWTNET_TEST_REDIS_ADDR or start newtnet-test-redis")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("test Redis not reachable at %s: %v", addr, err)
	}
}

// RedisClient returns a client on RedisDB with the database flushed.
// The client is closed when the test ends.
func RedisClient(t *testing.T) *redis.Client {
	t.Helper()
	SkipIfNoRedis(t)

	client := redis.NewClient(&redis.Options{Addr: RedisAddr(), DB: RedisDB})
	t.Cleanup(func() { client.Close() })

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flushing DB %d: %v", RedisDB, err)
	}
	return client
}

// PostgresDB opens NEWTNET_TEST_POSTGRES_DSN, skipping the test when it is
// unset or unreachable. The handle is closed when the test ends.
func PostgresDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("NEWTNET_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("test PostgreSQL not available: set NEWTNET_TEST_POSTGRES_DSN")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("opening %s: %v", dsn, err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Skipf("test PostgreSQL not reachable: %v", err)
	}
	return db
}

// MigrationsDir returns the absolute path of the SQL migrations in the source tree.
func MigrationsDir() string {
	return filepath.Join(ProjectRoot(), "pkg", "store", "sqlstore", "migrations")
}

// ProjectRoot returns the absolute path to the project root.
func ProjectRoot() string {
	_, thisFile, _, _ := runtime.Caller(0)
	dir := filepath.Dir(thisFile)
	return filepath.Join(dir, "..", "..")
}

// Context returns a context with a reasonable timeout for tests.
// The cancel function is registered via t.Cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
