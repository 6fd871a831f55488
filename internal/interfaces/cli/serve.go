package cli

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/torsion-fragmenter/internal/bootstrap"
	"github.com/turtacn/torsion-fragmenter/internal/config"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	grpcserver "github.com/turtacn/torsion-fragmenter/internal/interfaces/grpc"
	httpserver "github.com/turtacn/torsion-fragmenter/internal/interfaces/http"
	"github.com/turtacn/torsion-fragmenter/internal/interfaces/http/handlers"
)

func newServeCmd() *cobra.Command {
	var (
		httpPort, grpcPort int
		noGRPC, reflection bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC APIs",
		Long: "Serve exposes the fragmenter over HTTP (/api/v1) and gRPC, with health\n" +
			"probes and Prometheus metrics.  When started with --config the file is\n" +
			"watched and request defaults and the log level follow its changes.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			srv := &cliCtx.Config.Server
			if cmd.Flags().Changed("http-port") {
				srv.HTTPPort = httpPort
			}
			if cmd.Flags().Changed("grpc-port") {
				srv.GRPCPort = grpcPort
			}
			c, _, err := container(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			return serve(cmd.Context(), c, cliCtx.ConfigPath, !noGRPC, reflection)
		},
	}
	cmd.Flags().IntVar(&httpPort, "http-port", 0, "HTTP port (default from config)")
	cmd.Flags().IntVar(&grpcPort, "grpc-port", 0, "gRPC port (default from config)")
	cmd.Flags().BoolVar(&noGRPC, "no-grpc", false, "serve HTTP only")
	cmd.Flags().BoolVar(&reflection, "grpc-reflection", false, "register the gRPC reflection service")
	return cmd
}

// serve runs both servers until ctx ends or one of them fails, then stops
// both within the shutdown timeout.
func serve(ctx context.Context, c *bootstrap.Container, configPath string, withGRPC, reflection bool) error {
	cfg := c.Config.Server
	log := c.Logger
	gin.SetMode(ginMode(cfg.Mode))

	if configPath != "" {
		if _, err := config.Watch(configPath, c.Reload, func(err error) {
			log.Warn("config reload rejected", logging.Err(err))
		}); err != nil {
			log.Warn("config watch disabled", logging.Err(err))
		}
	}

	httpSrv := httpserver.NewServer(httpserver.ServerConfig{
		Addr:            net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.HTTPPort)),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		RateLimit:       cfg.RateLimit,
	}, routerConfig(c))

	var grpcSrv *grpcserver.Server
	if withGRPC {
		opts := []grpcserver.Option{
			grpcserver.WithLogger(log),
			grpcserver.WithReflection(reflection),
			grpcserver.WithGracefulTimeout(cfg.ShutdownTimeout),
		}
		if cfg.MaxBodySize > 0 {
			opts = append(opts, grpcserver.WithMaxRecvMsgSize(int(cfg.MaxBodySize)))
		}
		if c.Metrics != nil {
			opts = append(opts, grpcserver.WithMetrics(c.Metrics))
		}
		var err error
		grpcSrv, err = grpcserver.NewServer(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.GRPCPort)), opts...)
		if err != nil {
			return err
		}
		grpcserver.NewFragmenterService(c.Service, c.Options).Register(grpcSrv)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpSrv.Start)
	if grpcSrv != nil {
		g.Go(grpcSrv.Start)
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down servers")
		sctx, cancel := c.ShutdownContext()
		defer cancel()
		var first error
		if err := httpSrv.Stop(sctx); err != nil {
			first = err
		}
		if grpcSrv != nil {
			if err := grpcSrv.Stop(sctx); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
	log.Info("fragmenter serving",
		logging.Int("http_port", cfg.HTTPPort),
		logging.Bool("grpc", withGRPC),
		logging.Int("grpc_port", cfg.GRPCPort),
		logging.String("version", c.Version))
	return g.Wait()
}

func routerConfig(c *bootstrap.Container) httpserver.RouterConfig {
	checks := c.HealthChecks()
	checkers := make([]handlers.HealthChecker, len(checks))
	for i, hc := range checks {
		checkers[i] = hc
	}
	rc := httpserver.RouterConfig{
		Service:     c.Service,
		Defaults:    c.Options,
		Checks:      checkers,
		Logger:      c.Logger,
		Version:     fmt.Sprintf("%s (%s)", c.Version, GitCommit),
		MaxBodySize: c.Config.Server.MaxBodySize,
		CORSOrigins: c.Config.Server.CORSOrigins,
	}
	// Interfaces stay nil when a backend is off; a typed nil pointer would not.
	if c.Reports != nil {
		rc.Reports = c.Reports
	}
	if c.Metrics != nil {
		rc.Metrics = c.Metrics
	}
	if c.Collector != nil {
		rc.MetricsHandler = c.Collector.Handler()
		rc.MetricsPath = c.Config.Metrics.Path
	}
	return rc
}

func ginMode(mode string) string {
	switch mode {
	case gin.DebugMode, gin.TestMode:
		return mode
	}
	return gin.ReleaseMode
}
