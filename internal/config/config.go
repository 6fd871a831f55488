// Package config defines the fragmenter configuration tree.  Sections for the
// storage and messaging adapters embed the adapters' own config structs, so a
// loaded Config can be handed to them unchanged.
package config

import (
	"time"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/database/neo4j"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/database/postgres"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/database/redis"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/depiction"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/storage/minio"
)

// ServerConfig holds the HTTP and gRPC listener tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"` // requests per second per client, 0 disables
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// FragmenterConfig holds the fragmentation defaults.  Threshold, rotor budget
// and combination cap may be changed by a hot reload.
type FragmenterConfig struct {
	WBOThreshold         float64 `mapstructure:"wbo_threshold"`
	MaxRotors            int     `mapstructure:"max_rotors"`
	MinRotors            int     `mapstructure:"min_rotors"`
	MaxCombinations      int     `mapstructure:"max_combinations"`
	Combinatorial        bool    `mapstructure:"combinatorial"`
	FunctionalGroupsFile string  `mapstructure:"functional_groups_file"`
	Workers              int     `mapstructure:"workers"`

	// EstimateWBO falls back to topological bond-order estimates for
	// molecules that carry no weights.
	EstimateWBO bool `mapstructure:"estimate_wbo"`
}

type RedisSection struct {
	Enabled   bool          `mapstructure:"enabled"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`

	redis.RedisConfig `mapstructure:",squash"`
}

type PostgresSection struct {
	Enabled     bool `mapstructure:"enabled"`
	AutoMigrate bool `mapstructure:"auto_migrate"`

	postgres.PostgresConfig `mapstructure:",squash"`
}

type Neo4jSection struct {
	Enabled bool `mapstructure:"enabled"`

	neo4j.Neo4jConfig `mapstructure:",squash"`
}

type MinIOSection struct {
	Enabled bool `mapstructure:"enabled"`

	minio.MinIOConfig `mapstructure:",squash"`
}

// KafkaSection configures the job worker.  Producer and consumer share
// brokers and security settings.
type KafkaSection struct {
	Enabled           bool          `mapstructure:"enabled"`
	Brokers           []string      `mapstructure:"brokers"`
	GroupID           string        `mapstructure:"group_id"`
	AutoOffsetReset   string        `mapstructure:"auto_offset_reset"`
	AutoCreateTopics  bool          `mapstructure:"auto_create_topics"`
	NumPartitions     int           `mapstructure:"num_partitions"`
	ReplicationFactor int           `mapstructure:"replication_factor"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`

	Retry kafka.RetryConfig `mapstructure:"retry"`

	kafka.SecurityConfig `mapstructure:",squash"`
}

// ProducerConfig derives the result producer settings.
func (k KafkaSection) ProducerConfig() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:  k.Brokers,
		Acks:     "all",
		Security: k.SecurityConfig,
	}
}

// ConsumerConfig derives the job consumer settings.
func (k KafkaSection) ConsumerConfig() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:         k.Brokers,
		GroupID:         k.GroupID,
		Topics:          []string{kafka.TopicJobs},
		AutoOffsetReset: k.AutoOffsetReset,
		Retry:           k.Retry,
		Security:        k.SecurityConfig,
	}
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// Config is the root configuration.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Log        logging.LogConfig `mapstructure:"log"`
	Fragmenter FragmenterConfig  `mapstructure:"fragmenter"`
	Redis      RedisSection      `mapstructure:"redis"`
	Postgres   PostgresSection   `mapstructure:"postgres"`
	Neo4j      Neo4jSection      `mapstructure:"neo4j"`
	MinIO      MinIOSection      `mapstructure:"minio"`
	Kafka      KafkaSection      `mapstructure:"kafka"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Depiction  depiction.Config  `mapstructure:"depiction"`
}
