package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/database/postgres"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m *postgres.Migrator) error { return m.Up() })
			},
		},
		&cobra.Command{
			Use:   "down [N]",
			Short: "Roll back N migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil {
						return errors.Newf(errors.ErrCodeValidation, "invalid step count %q", args[0])
					}
					steps = n
				}
				return withMigrator(cmd, func(m *postgres.Migrator) error { return m.Down(steps) })
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m *postgres.Migrator) error {
					v, dirty, err := m.Status()
					if err != nil {
						return err
					}
					return PrintResult(cmd, migrationStatus{Version: v, Dirty: dirty})
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return errors.Newf(errors.ErrCodeValidation, "invalid version %q", args[0])
				}
				return withMigrator(cmd, func(m *postgres.Migrator) error { return m.Force(v) })
			},
		},
	)
	return cmd
}

type migrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (s migrationStatus) TableHeaders() []string { return []string{"VERSION", "DIRTY"} }

func (s migrationStatus) TableRows() [][]string {
	return [][]string{{strconv.FormatUint(uint64(s.Version), 10), strconv.FormatBool(s.Dirty)}}
}

func (s migrationStatus) Text(st Styles) string {
	out := "schema version " + strconv.FormatUint(uint64(s.Version), 10)
	if s.Dirty {
		out += " " + st.Error.Render("(dirty)")
	}
	return out
}

// withMigrator connects to the configured database without building the
// service, so auto-migration does not run first.
func withMigrator(cmd *cobra.Command, fn func(*postgres.Migrator) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	pg := cliCtx.Config.Postgres
	if !pg.Enabled {
		return errors.New(errors.ErrCodeConfigError, "postgres is disabled; set postgres.enabled to migrate")
	}
	conn, err := postgres.NewConnection(pg.PostgresConfig, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer conn.Close()
	m, err := postgres.NewMigrator(conn, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}
