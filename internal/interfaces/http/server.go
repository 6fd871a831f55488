package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/internal/interfaces/http/middleware"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// RateLimit is requests per second per client IP.  Zero disables it.
	RateLimit int
}

// Server runs the API router on an http.Server.
type Server struct {
	srv      *http.Server
	router   *gin.Engine
	limiter  *middleware.TokenBucketLimiter
	logger   logging.Logger
	shutdown time.Duration
}

// NewServer builds the router and the http.Server around it.
func NewServer(cfg ServerConfig, rc RouterConfig) *Server {
	log := rc.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	s := &Server{logger: log.Named("http"), shutdown: cfg.ShutdownTimeout}
	if s.shutdown <= 0 {
		s.shutdown = 30 * time.Second
	}

	var limiter middleware.RateLimiter
	if cfg.RateLimit > 0 {
		s.limiter = middleware.NewTokenBucketLimiter(float64(cfg.RateLimit), 2*cfg.RateLimit, 5*time.Minute)
		limiter = s.limiter
	}
	s.router = NewRouter(rc, limiter)
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start listens on the configured address and blocks until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "listen").WithDetail(s.srv.Addr)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and blocks until Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", logging.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, errors.ErrCodeInternal, "http server")
	}
	return nil
}

// Stop drains in-flight requests, bounded by the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdown)
	defer cancel()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "http server shutdown")
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
