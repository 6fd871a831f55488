// Package bootstrap assembles the fragmentation service and its optional
// backends from a Config.  Every process entry point (CLI, API server,
// worker) builds one Container and closes it on exit.
package bootstrap

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/torsion-fragmenter/internal/application/fragmentation"
	"github.com/turtacn/torsion-fragmenter/internal/chem/fgroups"
	"github.com/turtacn/torsion-fragmenter/internal/chem/molfile"
	"github.com/turtacn/torsion-fragmenter/internal/chem/wbo"
	"github.com/turtacn/torsion-fragmenter/internal/config"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/database/neo4j"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/database/postgres"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/database/redis"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/depiction"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/storage/minio"
)

// HealthCheck probes one backend.
type HealthCheck struct {
	name  string
	check func(ctx context.Context) error
}

func (h HealthCheck) Name() string                    { return h.name }
func (h HealthCheck) Check(ctx context.Context) error { return h.check(ctx) }

type closer struct {
	name string
	fn   func() error
}

// Container owns the service and every backend client it was built with.
// Backend fields are nil when the backend is disabled.
type Container struct {
	Config  *config.Config
	Logger  logging.Logger
	Version string

	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics
	Service   fragmentation.Service

	Redis    *redis.Client
	Locker   *redis.Locker
	Postgres *postgres.Connection
	Neo4j    *neo4j.Driver
	MinIO    *minio.Client
	Reports  *minio.ReportStore

	checks   []HealthCheck
	closers  []closer
	defaults atomic.Pointer[fragmentation.Options]
	once     sync.Once
}

// New connects the enabled backends and builds the service.  extra options
// are applied last and override the configured ones.  On error every
// backend already opened is closed.
func New(ctx context.Context, cfg *config.Config, log logging.Logger, version string, extra ...fragmentation.Option) (*Container, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &Container{Config: cfg, Logger: log, Version: version}
	built := false
	defer func() {
		if !built {
			_ = c.Close()
		}
	}()
	opts := OptionsFromConfig(cfg.Fragmenter)
	c.defaults.Store(&opts)

	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableGoMetrics:      true,
			EnableProcessMetrics: true,
		}, log)
		if err != nil {
			return nil, err
		}
		c.Collector = collector
		c.Metrics = prometheus.NewAppMetrics(collector)
	}

	lib, err := fgroups.LoadOrDefault(cfg.Fragmenter.FunctionalGroupsFile)
	if err != nil {
		return nil, err
	}
	svcOpts := []fragmentation.Option{
		fragmentation.WithLibrary(lib),
		fragmentation.WithWeightProvider(weightProvider(cfg.Fragmenter)),
		fragmentation.WithWorkers(cfg.Fragmenter.Workers),
		fragmentation.WithVersion(version),
		fragmentation.WithDepicter(depiction.NewRenderer(cfg.Depiction, log)),
	}
	if c.Metrics != nil {
		svcOpts = append(svcOpts, fragmentation.WithMetrics(c.Metrics))
	}

	if cfg.Redis.Enabled {
		rc := cfg.Redis.RedisConfig
		if c.Redis, err = redis.NewClient(&rc, log); err != nil {
			return nil, err
		}
		c.addCloser("redis", c.Redis.Close)
		c.addCheck("redis", c.Redis.Ping)
		c.Locker = redis.NewLocker(c.Redis, log)
		svcOpts = append(svcOpts, fragmentation.WithCache(redis.NewResultCache(c.Redis, log,
			redis.WithPrefix(cfg.Redis.KeyPrefix), redis.WithTTL(cfg.Redis.CacheTTL))))
	}

	if cfg.Postgres.Enabled {
		if c.Postgres, err = postgres.NewConnection(cfg.Postgres.PostgresConfig, log); err != nil {
			return nil, err
		}
		c.addCloser("postgres", c.Postgres.Close)
		c.addCheck("postgres", c.Postgres.HealthCheck)
		if cfg.Postgres.AutoMigrate {
			if err := Migrate(c.Postgres, log); err != nil {
				return nil, err
			}
		}
		svcOpts = append(svcOpts, fragmentation.WithRunRepository(postgres.NewRunRepository(c.Postgres, log)))
	}

	if cfg.Neo4j.Enabled {
		if c.Neo4j, err = neo4j.NewDriver(cfg.Neo4j.Neo4jConfig, log); err != nil {
			return nil, err
		}
		c.addCloser("neo4j", c.Neo4j.Close)
		c.addCheck("neo4j", c.Neo4j.HealthCheck)
		graph := neo4j.NewLineageGraph(c.Neo4j, log)
		if err := graph.EnsureSchema(ctx); err != nil {
			log.Warn("lineage schema setup failed", logging.Err(err))
		}
		svcOpts = append(svcOpts, fragmentation.WithLineage(graph))
	}

	if cfg.MinIO.Enabled {
		mc := cfg.MinIO.MinIOConfig
		if c.MinIO, err = minio.NewClient(&mc, log); err != nil {
			return nil, err
		}
		c.addCheck("minio", c.MinIO.HealthCheck)
		c.Reports = minio.NewReportStore(c.MinIO, log)
		svcOpts = append(svcOpts, fragmentation.WithReportStore(c.Reports))
	}

	c.Service = fragmentation.NewService(log, append(svcOpts, extra...)...)
	built = true
	log.Info("fragmenter assembled",
		logging.Bool("redis", cfg.Redis.Enabled),
		logging.Bool("postgres", cfg.Postgres.Enabled),
		logging.Bool("neo4j", cfg.Neo4j.Enabled),
		logging.Bool("minio", cfg.MinIO.Enabled),
		logging.Int("workers", cfg.Fragmenter.Workers))
	return c, nil
}

// Migrate applies every pending schema migration.
func Migrate(conn *postgres.Connection, log logging.Logger) error {
	m, err := postgres.NewMigrator(conn, log)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

func weightProvider(f config.FragmenterConfig) wbo.Provider {
	chain := wbo.Chain{wbo.Existing{}, wbo.SDTag{Tag: molfile.DefaultWeightTag}}
	if f.EstimateWBO {
		chain = append(chain, wbo.Estimator{})
	}
	return chain
}

// OptionsFromConfig maps the fragmenter section onto request defaults.
func OptionsFromConfig(f config.FragmenterConfig) fragmentation.Options {
	return fragmentation.Options{
		Combinatorial:   f.Combinatorial,
		MaxRotors:       f.MaxRotors,
		MinRotors:       f.MinRotors,
		Threshold:       f.WBOThreshold,
		MaxCombinations: f.MaxCombinations,
	}
}

// Options returns the current request defaults.
func (c *Container) Options() fragmentation.Options { return *c.defaults.Load() }

// Reload applies the hot-reloadable part of cfg: request defaults and the
// log level.  Backend settings need a restart.
func (c *Container) Reload(cfg *config.Config) {
	opts := OptionsFromConfig(cfg.Fragmenter)
	c.defaults.Store(&opts)
	if !logging.SetLevel(c.Logger, cfg.Log.Level) {
		c.Logger.Debug("log level not reloadable")
	}
	c.Logger.Info("configuration reloaded",
		logging.Float64("wbo_threshold", opts.Threshold),
		logging.Int("max_rotors", opts.MaxRotors),
		logging.Int("min_rotors", opts.MinRotors))
}

// HealthChecks lists a probe per enabled backend.
func (c *Container) HealthChecks() []HealthCheck {
	return append([]HealthCheck(nil), c.checks...)
}

func (c *Container) addCheck(name string, fn func(context.Context) error) {
	c.checks = append(c.checks, HealthCheck{name: name, check: fn})
}

func (c *Container) addCloser(name string, fn func() error) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// Close releases the backends in reverse order of opening.  It is safe to
// call more than once.
func (c *Container) Close() error {
	var first error
	c.once.Do(func() {
		for i := len(c.closers) - 1; i >= 0; i-- {
			if err := c.closers[i].fn(); err != nil {
				c.Logger.Warn("close failed", logging.String("backend", c.closers[i].name), logging.Err(err))
				if first == nil {
					first = err
				}
			}
		}
	})
	return first
}

// ShutdownContext returns a context bounded by the configured shutdown
// timeout.
func (c *Container) ShutdownContext() (context.Context, context.CancelFunc) {
	d := c.Config.Server.ShutdownTimeout
	if d <= 0 {
		d = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}
