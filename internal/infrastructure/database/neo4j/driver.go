// Package neo4j records fragment lineage as a property graph.
package neo4j

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

type Neo4jConfig struct {
	URI                          string        `mapstructure:"uri"`
	Username                     string        `mapstructure:"username"`
	Password                     string        `mapstructure:"password"`
	Database                     string        `mapstructure:"database"`
	MaxConnectionPoolSize        int           `mapstructure:"max_connection_pool_size"`
	MaxConnectionLifetime        time.Duration `mapstructure:"max_connection_lifetime"`
	ConnectionAcquisitionTimeout time.Duration `mapstructure:"connection_acquisition_timeout"`
}

const (
	defaultDatabase      = "neo4j"
	defaultPoolSize      = 50
	defaultConnLifetime  = time.Hour
	defaultAcquireWait   = time.Minute
	connectivityDeadline = 10 * time.Second
)

// apply copies the configured pool limits onto the driver config, keeping
// the defaults for zero values.
func (cfg Neo4jConfig) apply(c *neo4j.Config) {
	c.MaxConnectionPoolSize = orInt(cfg.MaxConnectionPoolSize, defaultPoolSize)
	c.MaxConnectionLifetime = orDuration(cfg.MaxConnectionLifetime, defaultConnLifetime)
	c.ConnectionAcquisitionTimeout = orDuration(cfg.ConnectionAcquisitionTimeout, defaultAcquireWait)
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

// Result is the part of neo4j.ResultWithContext read here.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Transaction runs cypher inside a managed transaction.
type Transaction interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// Work is a unit of cypher run by ExecuteRead or ExecuteWrite.
type Work func(Transaction) (any, error)

type session interface {
	ExecuteRead(ctx context.Context, work func(Transaction) (any, error)) (any, error)
	ExecuteWrite(ctx context.Context, work func(Transaction) (any, error)) (any, error)
	Close(ctx context.Context) error
}

type sessionFactory interface {
	VerifyConnectivity(ctx context.Context) error
	NewSession(ctx context.Context, config neo4j.SessionConfig) session
	Close(ctx context.Context) error
}

// boltTx narrows a managed transaction to Transaction.
type boltTx struct{ neo4j.ManagedTransaction }

func (t boltTx) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return t.ManagedTransaction.Run(ctx, cypher, params)
}

func managed(work func(Transaction) (any, error)) neo4j.ManagedTransactionWork {
	return func(tx neo4j.ManagedTransaction) (any, error) { return work(boltTx{tx}) }
}

type boltSession struct{ s neo4j.SessionWithContext }

func (b boltSession) ExecuteRead(ctx context.Context, work func(Transaction) (any, error)) (any, error) {
	return b.s.ExecuteRead(ctx, managed(work))
}

func (b boltSession) ExecuteWrite(ctx context.Context, work func(Transaction) (any, error)) (any, error) {
	return b.s.ExecuteWrite(ctx, managed(work))
}

func (b boltSession) Close(ctx context.Context) error { return b.s.Close(ctx) }

type boltDriver struct{ neo4j.DriverWithContext }

func (b boltDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) session {
	return boltSession{s: b.DriverWithContext.NewSession(ctx, config)}
}

// Driver owns the bolt connection pool.
type Driver struct {
	driver    sessionFactory
	database  string
	logger    logging.Logger
	closeOnce sync.Once
}

// NewDriver connects to cfg.URI and verifies connectivity before returning.
func NewDriver(cfg Neo4jConfig, log logging.Logger) (*Driver, error) {
	if cfg.URI == "" {
		return nil, errors.New(errors.ErrCodeConfigError, "neo4j uri is required")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	nd, err := neo4j.NewDriverWithContext(cfg.URI, auth, cfg.apply)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGraphStoreError, "create neo4j driver").WithDetail(cfg.URI)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectivityDeadline)
	defer cancel()
	if err := nd.VerifyConnectivity(ctx); err != nil {
		_ = nd.Close(ctx)
		return nil, errors.Wrap(err, errors.ErrCodeGraphStoreError, "connect to neo4j").WithDetail(cfg.URI)
	}
	d := newDriver(boltDriver{nd}, cfg.Database, log)
	d.logger.Info("lineage graph connected", logging.String("uri", cfg.URI), logging.String("database", d.database))
	return d, nil
}

func newDriver(f sessionFactory, database string, log logging.Logger) *Driver {
	if database == "" {
		database = defaultDatabase
	}
	return &Driver{driver: f, database: database, logger: log.Named("neo4j")}
}

func (d *Driver) run(ctx context.Context, mode neo4j.AccessMode, work Work) (any, error) {
	s := d.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: d.database, AccessMode: mode})
	defer s.Close(ctx)
	if mode == neo4j.AccessModeRead {
		return s.ExecuteRead(ctx, work)
	}
	return s.ExecuteWrite(ctx, work)
}

// ExecuteRead runs work in a read transaction with driver-managed retries.
func (d *Driver) ExecuteRead(ctx context.Context, work Work) (any, error) {
	out, err := d.run(ctx, neo4j.AccessModeRead, work)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGraphStoreError, "lineage read failed")
	}
	return out, nil
}

// ExecuteWrite runs work in a write transaction with driver-managed retries.
func (d *Driver) ExecuteWrite(ctx context.Context, work Work) (any, error) {
	out, err := d.run(ctx, neo4j.AccessModeWrite, work)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGraphStoreError, "lineage write failed")
	}
	return out, nil
}

func (d *Driver) HealthCheck(ctx context.Context) error {
	if err := d.driver.VerifyConnectivity(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeGraphStoreError, "neo4j unreachable")
	}
	return nil
}

// Close releases the pool.  Later calls return nil.
func (d *Driver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if err = d.driver.Close(context.Background()); err != nil {
			d.logger.Error("neo4j close failed", logging.Err(err))
		}
	})
	return err
}

// CollectRecords maps every remaining record of result.
func CollectRecords[T any](ctx context.Context, result Result, mapper func(*neo4j.Record) (T, error)) ([]T, error) {
	var items []T
	for result.Next(ctx) {
		item, err := mapper(result.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
