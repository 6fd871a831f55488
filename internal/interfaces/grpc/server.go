// Package grpc serves the fragmentation service over gRPC.  Messages are
// google.protobuf.Struct documents carrying the same JSON shapes as the
// HTTP API, so no generated stubs are needed.
package grpc

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// metadataRequestID carries the request id, like X-Request-ID over HTTP.
const metadataRequestID = "x-request-id"

const (
	defaultMaxRecvMsgSize  = 16 * 1024 * 1024
	defaultMaxSendMsgSize  = 16 * 1024 * 1024
	defaultGracefulTimeout = 10 * time.Second
)

// Fragmentation calls on large batches can run for minutes, so connections
// are recycled only when idle.
var (
	keepaliveParams = keepalive.ServerParameters{
		MaxConnectionIdle: 15 * time.Minute,
		Time:              2 * time.Minute,
		Timeout:           20 * time.Second,
	}
	keepalivePolicy = keepalive.EnforcementPolicy{
		MinTime:             30 * time.Second,
		PermitWithoutStream: true,
	}
)

// Recorder receives one observation per RPC.
type Recorder interface {
	RecordGRPCRequest(method, code string, d time.Duration)
}

// Option configures the server.
type Option func(*serverOptions)

type serverOptions struct {
	logger          logging.Logger
	metrics         Recorder
	reflection      bool
	maxRecvMsgSize  int
	maxSendMsgSize  int
	gracefulTimeout time.Duration
}

func WithLogger(l logging.Logger) Option { return func(o *serverOptions) { o.logger = l } }

func WithMetrics(m Recorder) Option { return func(o *serverOptions) { o.metrics = m } }

// WithReflection registers the reflection service, for grpcurl and friends.
func WithReflection(on bool) Option { return func(o *serverOptions) { o.reflection = on } }

func WithMaxRecvMsgSize(size int) Option {
	return func(o *serverOptions) {
		if size > 0 {
			o.maxRecvMsgSize = size
		}
	}
}

func WithGracefulTimeout(d time.Duration) Option {
	return func(o *serverOptions) {
		if d > 0 {
			o.gracefulTimeout = d
		}
	}
}

// Server owns the listener, the grpc.Server and its health service.
type Server struct {
	grpcServer   *grpc.Server
	listener     net.Listener
	opts         *serverOptions
	healthServer *health.Server
	mu           sync.Mutex
	started      bool
}

// NewServer binds addr and prepares the server.  Services are added with
// RegisterService before Start.
func NewServer(addr string, opts ...Option) (*Server, error) {
	sopts := &serverOptions{
		maxRecvMsgSize:  defaultMaxRecvMsgSize,
		maxSendMsgSize:  defaultMaxSendMsgSize,
		gracefulTimeout: defaultGracefulTimeout,
	}
	for _, o := range opts {
		o(sopts)
	}
	if sopts.logger == nil {
		sopts.logger = logging.NewNopLogger()
	}
	sopts.logger = sopts.logger.Named("grpc")

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "listen").WithDetail(addr)
	}

	gs := grpc.NewServer(
		grpc.MaxRecvMsgSize(sopts.maxRecvMsgSize),
		grpc.MaxSendMsgSize(sopts.maxSendMsgSize),
		grpc.KeepaliveParams(keepaliveParams),
		grpc.KeepaliveEnforcementPolicy(keepalivePolicy),
		grpc.ChainUnaryInterceptor(
			recoverPanics(sopts.logger),
			propagateRequestID(),
			observe(sopts.logger, sopts.metrics),
		),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if sopts.reflection {
		reflection.Register(gs)
		sopts.logger.Info("grpc reflection service registered")
	}

	return &Server{
		grpcServer:   gs,
		listener:     lis,
		opts:         sopts,
		healthServer: hs,
	}, nil
}

// RegisterService adds a service and marks it SERVING.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	s.grpcServer.RegisterService(desc, impl)
	s.healthServer.SetServingStatus(desc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.opts.logger.Info("grpc service registered", logging.String("service", desc.ServiceName))
}

// Start serves until Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeConflict, "grpc server already started")
	}
	s.started = true
	s.mu.Unlock()

	s.opts.logger.Info("gRPC server listening", logging.String("addr", s.listener.Addr().String()))
	if err := s.grpcServer.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return errors.Wrap(err, errors.ErrCodeInternal, "grpc server")
	}
	return nil
}

// Stop marks the server NOT_SERVING and stops gracefully, forcing the stop
// when the graceful timeout or ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		_ = s.listener.Close()
		return nil
	}
	s.mu.Unlock()

	// Probes see NOT_SERVING while in-flight RPCs drain.
	s.healthServer.Shutdown()
	ctx, cancel := context.WithTimeout(ctx, s.opts.gracefulTimeout)
	defer cancel()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		s.grpcServer.GracefulStop()
	}()
	select {
	case <-drained:
		s.opts.logger.Info("gRPC server stopped")
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-drained
		s.opts.logger.Warn("gRPC drain timed out, connections closed")
	}
	return nil
}

// Addr is the bound listener address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// recoverPanics turns a handler panic into codes.Internal.
func recoverPanics(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithContext(ctx).Error("grpc panic recovered",
					logging.String("method", info.FullMethod),
					logging.String("panic", fmt.Sprint(r)),
					logging.String("stack", string(debug.Stack())))
				err = status.Error(codes.Internal, errors.DefaultMessageForCode(errors.ErrCodeInternal))
			}
		}()
		return handler(ctx, req)
	}
}

// propagateRequestID reads x-request-id from the incoming metadata, or mints
// one, stores it for the loggers and echoes it in the response header.
func propagateRequestID() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(metadataRequestID); len(vals) > 0 && len(vals[0]) <= 128 {
				id = vals[0]
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(metadataRequestID, id))
		return handler(logging.WithRequestID(ctx, id), req)
	}
}

// observe logs every RPC except health probes and feeds the recorder.
func observe(logger logging.Logger, rec Recorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)
		code := status.Code(err)
		_, method := splitMethodName(info.FullMethod)
		if rec != nil {
			rec.RecordGRPCRequest(method, code.String(), elapsed)
		}

		log := logger.WithContext(ctx)
		fields := []logging.Field{
			logging.String("method", method),
			logging.String("code", code.String()),
			logging.Duration("duration", elapsed),
		}
		switch code {
		case codes.OK:
			log.Info("grpc request", fields...)
		case codes.Internal, codes.Unknown, codes.Unavailable:
			log.Error("grpc request failed", append(fields, logging.Err(err))...)
		default:
			log.Warn("grpc request rejected", append(fields, logging.Err(err))...)
		}
		return resp, err
	}
}

// splitMethodName splits "/pkg.Service/Method" into service and method.
func splitMethodName(fullMethod string) (string, string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	idx := strings.LastIndex(fullMethod, "/")
	if idx < 0 {
		return "unknown", fullMethod
	}
	return fullMethod[:idx], fullMethod[idx+1:]
}
