//go:build integration

// Package integration runs the fragmenter against real backends started with
// testcontainers.  Tests require Docker and are gated behind the
// "integration" build tag.
package integration

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/torsion-fragmenter/internal/config"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/database/postgres"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/database/redis"
)

const startupTimeout = 90 * time.Second

// startContainer runs image and returns host:port of the mapped port.
func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) (string, string) {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, port)
	require.NoError(t, err)
	return host, mapped.Port()
}

func startPostgres(t *testing.T) postgres.PostgresConfig {
	t.Helper()
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "fragmenter_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(startupTimeout),
	}, "5432/tcp")

	p, err := net.LookupPort("tcp", port)
	require.NoError(t, err)
	return postgres.PostgresConfig{
		Host:         host,
		Port:         p,
		Database:     "fragmenter_test",
		Username:     "test",
		Password:     "test",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}
}

func startRedis(t *testing.T) redis.RedisConfig {
	t.Helper()
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(startupTimeout),
	}, "6379/tcp")
	return redis.RedisConfig{Mode: "standalone", Addr: net.JoinHostPort(host, port)}
}

// testConfig enables postgres and redis on top of the defaults.
func testConfig(pg postgres.PostgresConfig, rc redis.RedisConfig) *config.Config {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	cfg.Postgres.Enabled = true
	cfg.Postgres.AutoMigrate = true
	cfg.Postgres.PostgresConfig = pg
	cfg.Redis.Enabled = true
	cfg.Redis.RedisConfig = rc
	cfg.Redis.KeyPrefix = "it:"
	cfg.Redis.CacheTTL = time.Hour
	return cfg
}
