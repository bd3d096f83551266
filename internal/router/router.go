package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/carriage/carriage-api/internal/handler/health"
	"github.com/carriage/carriage-api/internal/handler/prometheus"
	"github.com/carriage/carriage-api/internal/middleware"
	"github.com/carriage/carriage-api/pkg/auth"
	"github.com/carriage/carriage-api/pkg/logger"
	"github.com/carriage/carriage-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
}

type Router struct {
	engine *gin.Engine
}

// NewRouter mounts health and metrics at the root and every API handler under /api/v1
// behind authentication.
func NewRouter(
	cfg RouterConfig,
	log *logger.Logger,
	m *metrics.Metrics,
	jwt auth.JWTService,
	healthH *health.Handler,
	metricsH *prometheus.Handler,
	handlers ...Handler,
) *Router {
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log, m),
		middleware.Recovery(log),
	)

	healthH.RegisterRoutes(engine)
	metricsH.RegisterRoutes(engine)

	api := engine.Group("/api/v1")
	api.Use(middleware.Authenticate(jwt))
	if cfg.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  cfg.RateLimit,
			Burst: cfg.RateBurst,
		})
		api.Use(limiter.RateLimit())
	}
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}

	return &Router{engine: engine}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
