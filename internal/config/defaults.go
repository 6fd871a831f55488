package config

import (
	"runtime"
	"time"

	"github.com/spf13/viper"

	"github.com/turtacn/torsion-fragmenter/internal/domain/fragment"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
)

const (
	DefaultHTTPPort   = 8080
	DefaultGRPCPort   = 9090
	DefaultServerMode = "release"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultRedisAddr     = "localhost:6379"
	DefaultPostgresHost  = "localhost"
	DefaultPostgresPort  = 5432
	DefaultPostgresDB    = "fragmenter"
	DefaultNeo4jURI      = "bolt://localhost:7687"
	DefaultMinIOEndpoint = "localhost:9000"
	DefaultKafkaBroker   = "localhost:9092"
	DefaultKafkaGroupID  = "fragmenter-workers"

	DefaultMetricsNamespace = "fragmenter"
	DefaultMetricsPath      = "/metrics"
)

// setDefaults registers every key with viper so that FRAGMENTER_* variables
// resolve even when the key is absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", DefaultHTTPPort)
	v.SetDefault("server.grpc_port", DefaultGRPCPort)
	v.SetDefault("server.mode", DefaultServerMode)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_body_size", 8<<20)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("fragmenter.wbo_threshold", fragment.DefaultThreshold)
	v.SetDefault("fragmenter.max_rotors", fragment.DefaultMaxRotors)
	v.SetDefault("fragmenter.min_rotors", fragment.DefaultMinRotors)
	v.SetDefault("fragmenter.max_combinations", 0)
	v.SetDefault("fragmenter.combinatorial", true)
	v.SetDefault("fragmenter.functional_groups_file", "")
	v.SetDefault("fragmenter.workers", runtime.NumCPU())
	v.SetDefault("fragmenter.estimate_wbo", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 24*time.Hour)
	v.SetDefault("redis.key_prefix", "fragmenter:")

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.auto_migrate", true)
	v.SetDefault("postgres.host", DefaultPostgresHost)
	v.SetDefault("postgres.port", DefaultPostgresPort)
	v.SetDefault("postgres.database", DefaultPostgresDB)
	v.SetDefault("postgres.username", "fragmenter")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.ssl_mode", "disable")

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", DefaultNeo4jURI)
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", DefaultMinIOEndpoint)
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "fragmenter-reports")
	v.SetDefault("minio.presign_expiry", time.Hour)
	v.SetDefault("minio.depiction_ttl_days", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{DefaultKafkaBroker})
	v.SetDefault("kafka.group_id", DefaultKafkaGroupID)
	v.SetDefault("kafka.auto_offset_reset", "earliest")
	v.SetDefault("kafka.auto_create_topics", false)
	v.SetDefault("kafka.num_partitions", 6)
	v.SetDefault("kafka.replication_factor", 1)
	v.SetDefault("kafka.job_timeout", 5*time.Minute)
	v.SetDefault("kafka.lock_ttl", 10*time.Minute)
	v.SetDefault("kafka.retry.max_retries", 3)
	v.SetDefault("kafka.retry.retry_backoff", time.Second)
	v.SetDefault("kafka.retry.max_retry_backoff", 30*time.Second)
	v.SetDefault("kafka.sasl_enabled", false)
	v.SetDefault("kafka.tls_enabled", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", DefaultMetricsNamespace)
	v.SetDefault("metrics.path", DefaultMetricsPath)

	v.SetDefault("depiction.cell_size", 300)
	v.SetDefault("depiction.columns", 3)
	v.SetDefault("depiction.font_path", "")
	v.SetDefault("depiction.font_size", 12.0)
}

// ApplyDefaults fills zero-value fields of a Config built in code.  Fields
// already set are left alone.  Booleans cannot be told apart from "unset" and
// are not touched.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = DefaultHTTPPort
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = DefaultGRPCPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 8 << 20
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = logging.LogLevel(DefaultLogLevel)
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	if cfg.Fragmenter.WBOThreshold == 0 {
		cfg.Fragmenter.WBOThreshold = fragment.DefaultThreshold
	}
	if cfg.Fragmenter.MaxRotors == 0 {
		cfg.Fragmenter.MaxRotors = fragment.DefaultMaxRotors
	}
	if cfg.Fragmenter.MinRotors == 0 {
		cfg.Fragmenter.MinRotors = fragment.DefaultMinRotors
	}
	if cfg.Fragmenter.Workers == 0 {
		cfg.Fragmenter.Workers = runtime.NumCPU()
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.CacheTTL == 0 {
		cfg.Redis.CacheTTL = 24 * time.Hour
	}
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = DefaultPostgresHost
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = DefaultPostgresPort
	}
	if cfg.Postgres.Database == "" {
		cfg.Postgres.Database = DefaultPostgresDB
	}
	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = DefaultNeo4jURI
	}
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.JobTimeout == 0 {
		cfg.Kafka.JobTimeout = 5 * time.Minute
	}
	if cfg.Kafka.LockTTL == 0 {
		cfg.Kafka.LockTTL = 10 * time.Minute
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.Depiction.CellSize == 0 {
		cfg.Depiction.CellSize = 300
	}
	if cfg.Depiction.Columns == 0 {
		cfg.Depiction.Columns = 3
	}
}

// Default returns a Config with every default applied and every backend
// disabled.  Commands that run without a config file start from it.
func Default() *Config {
	cfg, err := unmarshalAndFinalize(newViper())
	if err != nil {
		// The registered defaults always validate.
		panic(err)
	}
	return cfg
}
