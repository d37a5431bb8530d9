// Package server exposes the damage engines over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ZanzyTHEbar/quakesim/internal/cache"
	"github.com/ZanzyTHEbar/quakesim/internal/database"
	apperrors "github.com/ZanzyTHEbar/quakesim/internal/errors"
	"github.com/ZanzyTHEbar/quakesim/internal/inference"
	"github.com/ZanzyTHEbar/quakesim/internal/middleware"
	"github.com/ZanzyTHEbar/quakesim/internal/model"
	"github.com/ZanzyTHEbar/quakesim/internal/monitoring"
	"github.com/ZanzyTHEbar/quakesim/internal/privacy"
	"github.com/ZanzyTHEbar/quakesim/internal/ratelimit"
	"github.com/ZanzyTHEbar/quakesim/internal/resilience"
	"github.com/ZanzyTHEbar/quakesim/internal/security"
	"github.com/ZanzyTHEbar/quakesim/internal/summary"
)

// ModelService is the name under which the model is tracked by the
// degradation manager and the breaker registry.
const ModelService = "model"

// Options carries everything the router needs. Nil fields get inert
// defaults or disable the feature they serve.
type Options struct {
	Heuristic *inference.HeuristicEngine
	Model     *inference.ModelEngine
	ModelInfo *model.Info

	Metrics     *monitoring.Metrics
	Logger      *monitoring.Logger
	Breakers    *resilience.CircuitBreakerRegistry
	Degradation *resilience.DegradationManager

	Limiter   *ratelimit.RateLimiter
	Cache     cache.Store
	History   *database.HistoryService
	Database  *database.DB
	Summary   *summary.Service
	Retention *privacy.Service

	Security    *security.SecurityMiddleware
	Compression *middleware.CompressionMiddleware

	StageDelay time.Duration
}

// Server holds the request handlers and their collaborators.
type Server struct {
	opts Options
}

// New fills in optional collaborators with inert defaults.
func New(opts Options) *Server {
	if opts.Heuristic == nil {
		opts.Heuristic = inference.NewHeuristicEngine()
	}
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = monitoring.NewLogger(monitoring.ParseLevel("info"))
	}
	if opts.Breakers == nil {
		opts.Breakers = resilience.NewCircuitBreakerRegistry()
	}
	if opts.Degradation == nil {
		opts.Degradation = resilience.NewDegradationManager(resilience.DefaultDegradationConfig())
	}
	if opts.Security == nil {
		opts.Security = security.NewSecurityMiddleware(security.DefaultSecurityConfig())
	}
	if opts.Compression == nil {
		cfg := middleware.DefaultCompressionConfig()
		cfg.SkipPath = security.IsStreamPath
		opts.Compression = middleware.NewCompressionMiddleware(cfg)
	}
	if opts.Model != nil {
		if _, ok := opts.Degradation.GetServiceHealth(ModelService); !ok {
			opts.Degradation.RegisterService(ModelService, nil)
		}
	}
	return &Server{opts: opts}
}

// Router builds the gin engine with middleware and routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	sec := s.opts.Security

	r.Use(apperrors.RecoveryHandler())
	r.Use(monitoring.RequestIDMiddleware())
	r.Use(monitoring.MonitoringMiddleware(s.opts.Metrics, s.opts.Logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(s.opts.Logger, sec.Config().MaxBodyBytes))
	r.Use(s.opts.Compression.Handler())
	r.Use(apperrors.ErrorHandler())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  sec.Config().AllowedOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", monitoring.RequestIDHeader},
		ExposeHeaders: []string{monitoring.RequestIDHeader, "X-Cache", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}))
	r.Use(sec.SecurityHeaders)
	r.Use(sec.RequestTimeout)
	r.Use(sec.ValidateContentType)
	r.Use(sec.LimitBody)
	if s.opts.Limiter != nil {
		r.Use(s.opts.Limiter.IPRateLimitMiddleware())
	}

	simulate := s.chain(s.simulateLimit(), sec.ValidateJSONBody, s.cache())
	streaming := s.chain(s.streamLimit())

	r.POST("/simulate", with(simulate, s.handleSimulate)...)
	r.POST("/api/predict", with(simulate, s.handlePredict)...)
	r.POST("/simulate/stream", with(streaming, s.handleSimulateStream)...)
	r.POST("/api/predict/stream", with(streaming, s.handlePredictStream)...)

	r.GET("/health", s.handleHealth)
	r.GET("/health/services", s.handleServiceHealth)
	r.GET("/startGame", s.handleStartGame)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/model", s.handleModel)
	r.GET("/simulations", s.handleListSimulations)
	r.GET("/simulations/:id", s.handleGetSimulation)
	r.GET("/stats", s.handleStats)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// NewRouter is shorthand for New(opts).Router().
func NewRouter(opts Options) *gin.Engine {
	return New(opts).Router()
}

// chain drops the middleware that is not configured.
func (s *Server) chain(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	var out []gin.HandlerFunc
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

// with returns a fresh slice so routes sharing a chain never alias.
func with(chain []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(chain)+1)
	out = append(out, chain...)
	return append(out, handler)
}

func (s *Server) simulateLimit() gin.HandlerFunc {
	if s.opts.Limiter == nil {
		return nil
	}
	return s.opts.Limiter.SimulateRateLimit()
}

func (s *Server) streamLimit() gin.HandlerFunc {
	if s.opts.Limiter == nil {
		return nil
	}
	return s.opts.Limiter.StreamRateLimit()
}

func (s *Server) cache() gin.HandlerFunc {
	if s.opts.Cache == nil {
		return nil
	}
	return cache.Middleware(s.opts.Cache, s.opts.Metrics)
}
