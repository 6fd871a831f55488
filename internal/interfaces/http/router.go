// Package http exposes the fragmentation service over a JSON API built on
// gin.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/torsion-fragmenter/internal/application/fragmentation"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/internal/interfaces/http/handlers"
	"github.com/turtacn/torsion-fragmenter/internal/interfaces/http/middleware"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
	types "github.com/turtacn/torsion-fragmenter/pkg/types/fragment"
)

// APIPrefix is the mount point of the versioned API.
const APIPrefix = "/api/v1"

// RouterConfig collects what the router needs.  Nil Reports, Metrics and
// MetricsHandler switch the corresponding feature off.
type RouterConfig struct {
	Service  fragmentation.Service
	Defaults func() fragmentation.Options
	Reports  handlers.ReportLinker
	Checks   []handlers.HealthChecker
	Logger   logging.Logger
	Version  string

	Metrics        middleware.RequestRecorder
	MetricsHandler http.Handler
	MetricsPath    string

	MaxBodySize int64
	CORSOrigins []string
}

// NewRouter builds the gin engine.  A nil limiter disables rate limiting.
func NewRouter(cfg RouterConfig, limiter middleware.RateLimiter) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID(), middleware.Recovery(log))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(middleware.RequestLogging(log, middleware.DefaultLoggingConfig()))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	}

	r.NoRoute(func(c *gin.Context) {
		middleware.Abort(c, errors.NotFound("route not found").WithDetail(c.Request.URL.Path))
	})
	r.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, types.ErrorResponse{Error: types.ErrorBody{
			Code:      string(errors.ErrCodeBadRequest),
			Message:   "method not allowed",
			RequestID: middleware.GetRequestID(c),
		}})
	})

	handlers.NewHealthHandler(cfg.Version, cfg.Checks...).RegisterRoutes(r)
	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsHandler))
	}

	api := r.Group(APIPrefix)
	if limiter != nil {
		api.Use(middleware.RateLimit(limiter, middleware.DefaultRateLimitConfig()))
	}
	api.Use(middleware.BodyLimit(cfg.MaxBodySize))
	handlers.NewFragmentHandler(cfg.Service, cfg.Defaults, cfg.Reports, log).RegisterRoutes(api)

	return r
}
