package postgres

import (
	"context"
	"embed"
	stderrors "errors"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrator applies the embedded schema migrations.
type Migrator struct {
	m      *migrate.Migrate
	logger logging.Logger
}

func NewMigrator(conn *Connection, log logging.Logger) (*Migrator, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMigrationError, "open migration source")
	}
	ctx := context.Background()
	sqlConn, err := conn.DB().Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "acquire migration connection")
	}
	// A dedicated connection, so closing the driver leaves the pool open.
	driver, err := migratepg.WithConnection(ctx, sqlConn, &migratepg.Config{})
	if err != nil {
		_ = sqlConn.Close()
		return nil, errors.Wrap(err, errors.ErrCodeMigrationError, "create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return nil, errors.Wrap(err, errors.ErrCodeMigrationError, "create migrator")
	}
	return &Migrator{m: m, logger: log.Named("migrate")}, nil
}

// Up applies all pending migrations.  No pending change is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, errors.ErrCodeMigrationError, "migrate up")
	}
	v, dirty, _ := mg.Status()
	mg.logger.Info("migrations applied", logging.Int64("version", int64(v)), logging.Bool("dirty", dirty))
	return nil
}

// Down rolls back steps migrations.
func (mg *Migrator) Down(steps int) error {
	if steps <= 0 {
		return errors.Newf(errors.ErrCodeValidation, "steps must be positive, got %d", steps)
	}
	if err := mg.m.Steps(-steps); err != nil {
		return errors.Wrap(err, errors.ErrCodeMigrationError, "migrate down")
	}
	return nil
}

// Status returns the applied version, zero when none.
func (mg *Migrator) Status() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if stderrors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, errors.ErrCodeMigrationError, "read migration version")
	}
	return v, dirty, nil
}

// Force marks version as applied without running it, to clear a dirty state.
func (mg *Migrator) Force(version int) error {
	if err := mg.m.Force(version); err != nil {
		return errors.Wrap(err, errors.ErrCodeMigrationError, "force version")
	}
	return nil
}

// Close releases the migration connection.  The pool stays open.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	if srcErr != nil {
		return errors.Wrap(srcErr, errors.ErrCodeMigrationError, "close migration source")
	}
	if dbErr != nil {
		return errors.Wrap(dbErr, errors.ErrCodeMigrationError, "close migration driver")
	}
	return nil
}
