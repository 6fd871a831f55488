// Package cli implements the fragmenter command line on cobra.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/turtacn/torsion-fragmenter/internal/application/fragmentation"
	"github.com/turtacn/torsion-fragmenter/internal/bootstrap"
	"github.com/turtacn/torsion-fragmenter/internal/config"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// Build information, set with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type cliContextKey struct{}

// RootOptions are the persistent flags.
type RootOptions struct {
	ConfigPath   string
	EnvFile      string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	NoColor      bool
}

// CLIContext is attached to the command context by the root pre-run.
type CLIContext struct {
	Config       *config.Config
	ConfigPath   string
	Logger       logging.Logger
	OutputFormat string
	Verbose      bool
	Styles       Styles
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fragmenter",
		Short: "Torsion fragmenter: rotor-centred molecular fragments for torsion scans",
		Long: "fragmenter cuts molecules into small fragments around each rotatable bond,\n" +
			"growing every fragment until the bond orders around the rotor are preserved.\n" +
			"Results can be written as provenance JSON, served over HTTP and gRPC, or\n" +
			"produced by a Kafka worker.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: environment only)")
	pf.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json, table)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		newFragmentCmd(),
		newCutCmd(),
		newSortCmd(),
		newWatchCmd(),
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newVersionCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	switch strings.ToLower(opts.OutputFormat) {
	case "text", "json", "table":
	default:
		return errors.Newf(errors.ErrCodeValidation, "unknown output format %q", opts.OutputFormat)
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, errors.ErrCodeConfigError, "load env file").WithDetail(opts.EnvFile)
		}
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg, opts)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)

	cliCtx := &CLIContext{
		Config:       cfg,
		ConfigPath:   opts.ConfigPath,
		Logger:       logger,
		OutputFormat: strings.ToLower(opts.OutputFormat),
		Verbose:      opts.Verbose,
		Styles:       NewStyles(cmd.OutOrStdout(), opts.NoColor),
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cliCtx))
	return nil
}

// initLogger logs to stderr so stdout stays clean for results.
func initLogger(cfg *config.Config, opts *RootOptions) (logging.Logger, error) {
	logCfg := cfg.Log
	logCfg.OutputPaths = []string{"stderr"}
	logCfg.ErrorOutputPaths = []string{"stderr"}
	if opts.LogLevel != "" {
		level, err := logging.ParseLevel(opts.LogLevel)
		if err != nil {
			return nil, err
		}
		logCfg.Level = level
	}
	if opts.Verbose {
		logCfg.Level = logging.LevelDebug
	}
	return logging.NewLogger(logCfg)
}

// GetCLIContext returns the context set up by the root pre-run.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "CLI context not initialised")
	}
	return cliCtx, nil
}

// container assembles the service for a command.
func container(cmd *cobra.Command, extra ...fragmentation.Option) (*bootstrap.Container, *CLIContext, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	c, err := bootstrap.New(cmd.Context(), cliCtx.Config, cliCtx.Logger, Version, extra...)
	if err != nil {
		return nil, nil, err
	}
	return c, cliCtx, nil
}

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute() error { return ExecuteWith() }

// ExecuteWith runs the root command with prefix placed before the process
// arguments.  Single-purpose binaries use it to pin a subcommand.
func ExecuteWith(prefix ...string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	rootCmd.SetArgs(append(append([]string(nil), prefix...), os.Args[1:]...))
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}
