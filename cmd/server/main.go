package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/ZanzyTHEbar/quakesim/docs"
	"github.com/ZanzyTHEbar/quakesim/internal/cache"
	"github.com/ZanzyTHEbar/quakesim/internal/config"
	"github.com/ZanzyTHEbar/quakesim/internal/database"
	"github.com/ZanzyTHEbar/quakesim/internal/events"
	"github.com/ZanzyTHEbar/quakesim/internal/inference"
	"github.com/ZanzyTHEbar/quakesim/internal/model"
	"github.com/ZanzyTHEbar/quakesim/internal/monitoring"
	"github.com/ZanzyTHEbar/quakesim/internal/privacy"
	"github.com/ZanzyTHEbar/quakesim/internal/ratelimit"
	"github.com/ZanzyTHEbar/quakesim/internal/resilience"
	"github.com/ZanzyTHEbar/quakesim/internal/security"
	"github.com/ZanzyTHEbar/quakesim/internal/server"
	"github.com/ZanzyTHEbar/quakesim/internal/summary"
)

// @title        quakesim API
// @version      1.0
// @description  Earthquake damage risk estimates for buildings, as JSON responses or progress streams.
// @BasePath     /
func main() {
	configPath := flag.String("config", getEnvOrDefault("QUAKESIM_CONFIG", "quakesim.yaml"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logging setup
	appLogger := monitoring.NewLogger(monitoring.ParseLevel(cfg.LogLevel))
	slog.SetDefault(appLogger.Logger)
	appMetrics := monitoring.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Simulation history
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	publisher := newPublisher(cfg.Events)
	history := database.NewHistoryService(
		repo,
		cfg.History.Workers,
		cfg.History.QueueSize,
		appMetrics.RecordHistoryWrite,
		events.Hook(publisher, appMetrics.RecordEventPublish),
	)

	// Redis backs the rate limiter and the response cache when configured
	redisClient, err := ratelimit.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("Redis unavailable, continuing without it", "error", err)
	}
	limiter := ratelimit.NewRateLimiter(redisClient, cfg.Limits, appMetrics)

	var responseCache cache.Store
	var memoryCache *cache.Cache
	if cfg.Cache.Enabled {
		if redisClient.IsEnabled() {
			responseCache = cache.NewRedisStore(redisClient.GetClient(), cfg.Cache.TTL)
		} else {
			memoryCache = cache.NewCache(cfg.Cache.TTL)
			responseCache = memoryCache
		}
	}

	// Period statistics share the response cache backend
	var summaryStore cache.Store
	if redisClient.IsEnabled() {
		summaryStore = cache.NewRedisStore(redisClient.GetClient(), cfg.Summary.CacheTTL)
	} else {
		summaryCache := cache.NewCache(cfg.Summary.CacheTTL)
		defer summaryCache.Close()
		summaryStore = summaryCache
	}
	summaries := summary.NewService(repo, summary.NewReportCache(summaryStore))
	retention := privacy.NewService(repo, cfg.History.Retention)

	// Resilience around the model
	breakers := resilience.NewCircuitBreakerRegistry()
	degradation := resilience.NewDegradationManager(resilience.DefaultDegradationConfig())
	if redisClient.IsEnabled() {
		degradation.RegisterService("redis", redisClient.HealthCheck)
	}
	degradation.RegisterService("database", db.HealthCheck)

	opts := server.Options{
		Heuristic:   inference.NewHeuristicEngine(),
		Metrics:     appMetrics,
		Logger:      appLogger,
		Breakers:    breakers,
		Degradation: degradation,
		Limiter:     limiter,
		Cache:       responseCache,
		History:     history,
		Database:    db,
		Summary:     summaries,
		Retention:   retention,
		Security:    security.NewSecurityMiddleware(cfg.Security),
		StageDelay:  cfg.Stream.StageDelay,
	}

	var loaded *model.Model
	if cfg.Model.URI != "" {
		loaded, err = loadModel(ctx, cfg)
		if err == nil {
			breaker := breakers.GetOrCreate(server.ModelService, resilience.CircuitBreakerConfig{
				FailureThreshold: cfg.Model.FailureThreshold,
				RecoveryTimeout:  cfg.Model.ResetTimeout,
				SuccessThreshold: 1,
			}).WithTripPredicate(inference.BreakerTrips)
			opts.Model, err = inference.NewModelEngine(loaded, breaker)
		}
		if err != nil {
			if cfg.Model.IsRequired() {
				slog.Error("Failed to load model", "uri", cfg.Model.URI, "error", err)
				os.Exit(1)
			}
			appLogger.ModelLogger("load_failed", cfg.Model.URI, map[string]interface{}{"error": err.Error()})
			opts.Model = nil
		}
	}
	if opts.Model != nil {
		info := loaded.Info()
		opts.ModelInfo = &info
		appLogger.ModelLogger("loaded", info.Name, map[string]interface{}{
			"task":       info.Task,
			"backend":    info.Backend,
			"features":   len(info.FeatureNames),
			"calibrated": info.Calibrated,
		})
	} else {
		slog.Warn("No model loaded, predictions use the heuristic scorer")
	}

	// Background loops stop when ctx is cancelled
	go degradation.StartHealthChecks(ctx)
	go retention.Run(ctx)
	if cfg.Summary.RefreshInterval > 0 {
		go summaries.AutoRefresh(ctx, cfg.Summary.RefreshInterval)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// History drains before the publishers it feeds are closed
	if err := history.Close(shutdownCtx); err != nil {
		slog.Error("History writer did not drain", "error", err)
	}
	if err := publisher.Close(); err != nil {
		slog.Error("Failed to close event publishers", "error", err)
	}

	cancel()
	degradation.GracefulShutdown()
	limiter.Close()
	if memoryCache != nil {
		memoryCache.Close()
	}
	if err := redisClient.Close(); err != nil {
		slog.Error("Failed to close Redis client", "error", err)
	}
	if loaded != nil {
		if err := loaded.Close(); err != nil {
			slog.Error("Failed to release model", "error", err)
		}
	}

	slog.Info("Server exited")
}
