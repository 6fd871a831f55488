package config

import (
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

func invalid(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeConfigError, "config: "+format, args...)
}

// Validate checks a fully defaulted Config.  Only enabled backends are
// checked.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return invalid("server.http_port %d is out of range [1, 65535]", c.Server.HTTPPort)
	}
	if c.Server.GRPCPort < 1 || c.Server.GRPCPort > 65535 {
		return invalid("server.grpc_port %d is out of range [1, 65535]", c.Server.GRPCPort)
	}
	if c.Server.HTTPPort == c.Server.GRPCPort {
		return invalid("server.http_port and server.grpc_port must differ")
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return invalid("server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if _, err := logging.ParseLevel(string(c.Log.Level)); err != nil {
		return invalid("log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format %q is invalid; expected json|console", c.Log.Format)
	}

	f := c.Fragmenter
	if f.WBOThreshold <= 0 {
		return invalid("fragmenter.wbo_threshold must be > 0, got %g", f.WBOThreshold)
	}
	if f.MinRotors < 1 || f.MaxRotors < f.MinRotors {
		return invalid("fragmenter rotor budget [%d, %d] is invalid", f.MinRotors, f.MaxRotors)
	}
	if f.MaxCombinations < 0 {
		return invalid("fragmenter.max_combinations must be >= 0, got %d", f.MaxCombinations)
	}
	if f.Workers < 1 {
		return invalid("fragmenter.workers must be >= 1, got %d", f.Workers)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" && len(c.Redis.ClusterAddrs) == 0 && len(c.Redis.SentinelAddrs) == 0 {
		return invalid("redis.addr is required when redis is enabled")
	}
	if c.Postgres.Enabled {
		if c.Postgres.Host == "" {
			return invalid("postgres.host is required when postgres is enabled")
		}
		if c.Postgres.Database == "" {
			return invalid("postgres.database is required when postgres is enabled")
		}
	}
	if c.Neo4j.Enabled && c.Neo4j.URI == "" {
		return invalid("neo4j.uri is required when neo4j is enabled")
	}
	if c.MinIO.Enabled && c.MinIO.Endpoint == "" {
		return invalid("minio.endpoint is required when minio is enabled")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return invalid("kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.GroupID == "" {
			return invalid("kafka.group_id is required")
		}
	}
	if c.Depiction.CellSize < 50 {
		return invalid("depiction.cell_size must be >= 50, got %d", c.Depiction.CellSize)
	}
	return nil
}
