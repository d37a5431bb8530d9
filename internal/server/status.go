package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/quakesim/internal/cache"
	"github.com/ZanzyTHEbar/quakesim/internal/database"
	apperrors "github.com/ZanzyTHEbar/quakesim/internal/errors"
	"github.com/ZanzyTHEbar/quakesim/internal/inference"
	"github.com/ZanzyTHEbar/quakesim/internal/resilience"
	"github.com/ZanzyTHEbar/quakesim/internal/summary"
)

// handleHealth godoc
// @Summary  Liveness probe
// @Produce  plain
// @Success  200  {string}  string  "OK"
// @Router   /health [get]
func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// handleStartGame answers the frontend session handshake.
func (s *Server) handleStartGame(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// handleServiceHealth godoc
// @Summary  Degradation, breaker and backend status
// @Produce  json
// @Success  200  {object}  map[string]interface{}
// @Failure  503  {object}  map[string]interface{}
// @Router   /health/services [get]
func (s *Server) handleServiceHealth(c *gin.Context) {
	services := s.opts.Degradation.GetAllServiceHealth()
	mode := inference.ModeHeuristic
	if s.modelAvailable() {
		mode = inference.ModeModel
	}

	response := gin.H{
		"status":           "ok",
		"mode":             mode,
		"services":         services,
		"circuit_breakers": s.opts.Breakers.GetStats(),
		"metrics":          s.opts.Metrics.GetStats(),
		"compression":      s.opts.Compression.GetStats(),
		"timestamp":        time.Now().Format(time.RFC3339),
	}
	if s.opts.Limiter != nil {
		response["rate_limit"] = s.opts.Limiter.GetStats()
	}
	if mem, ok := s.opts.Cache.(*cache.Cache); ok {
		response["cache"] = mem.Stats()
	}
	if s.opts.Database != nil {
		pool := s.opts.Database.GetPoolStats()
		if err := s.opts.Database.HealthCheck(c.Request.Context()); err != nil {
			pool["error"] = err.Error()
			response["status"] = "degraded"
		}
		response["database"] = pool
	}

	// Any service in emergency state degrades the whole report
	for _, service := range services {
		if service.Level == resilience.LevelEmergency {
			response["status"] = "degraded"
		}
	}

	if response["status"] != "ok" {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// handleMetrics returns the in-process counters.
func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Metrics.GetStats())
}

// handleModel godoc
// @Summary  Loaded model bundle metadata
// @Produce  json
// @Success  200  {object}  model.Info
// @Failure  404  {object}  map[string]string
// @Router   /model [get]
func (s *Server) handleModel(c *gin.Context) {
	if s.opts.ModelInfo == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "no model loaded",
			"mode":  inference.ModeHeuristic,
		})
		return
	}
	c.JSON(http.StatusOK, s.opts.ModelInfo)
}

// handleListSimulations godoc
// @Summary  Most recent simulations
// @Produce  json
// @Param    limit  query     int  false  "Maximum records (1-100)"
// @Success  200    {object}  map[string]interface{}
// @Failure  400    {object}  map[string]string
// @Router   /simulations [get]
func (s *Server) handleListSimulations(c *gin.Context) {
	if !s.historyEnabled(c) {
		return
	}

	limit := database.DefaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > database.MaxListLimit {
			apperrors.Respond(c, apperrors.NewValidationError(
				"limit must be an integer between 1 and "+strconv.Itoa(database.MaxListLimit)))
			return
		}
		limit = n
	}

	sims, err := s.opts.History.Repository().ListSimulations(c.Request.Context(), limit)
	if err != nil {
		apperrors.Respond(c, apperrors.NewInternalError("failed to list simulations", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"simulations": sims,
		"count":       len(sims),
	})
}

// handleGetSimulation godoc
// @Summary  One stored simulation
// @Produce  json
// @Param    id   path      string  true  "Simulation id"
// @Success  200  {object}  database.Simulation
// @Failure  404  {object}  map[string]string
// @Router   /simulations/{id} [get]
func (s *Server) handleGetSimulation(c *gin.Context) {
	if !s.historyEnabled(c) {
		return
	}

	sim, err := s.opts.History.Repository().GetSimulation(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "simulation not found"})
		return
	}
	if err != nil {
		apperrors.Respond(c, apperrors.NewInternalError("failed to load simulation", err))
		return
	}
	c.JSON(http.StatusOK, sim)
}

// handleStats godoc
// @Summary  Aggregate damage statistics for a calendar period
// @Produce  json
// @Param    period  query     string  false  "daily, weekly, monthly or all_time"  default(all_time)
// @Success  200     {object}  summary.Report
// @Failure  400     {object}  map[string]string
// @Router   /stats [get]
func (s *Server) handleStats(c *gin.Context) {
	if s.opts.Summary == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "simulation history is disabled"})
		return
	}

	period, err := summary.ParsePeriod(c.Query("period"))
	if err != nil {
		apperrors.Respond(c, apperrors.NewValidationError(err.Error()))
		return
	}

	report, err := s.opts.Summary.Report(c.Request.Context(), period)
	if err != nil {
		apperrors.Respond(c, apperrors.NewInternalError("failed to summarize simulations", err))
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) historyEnabled(c *gin.Context) bool {
	if s.opts.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "simulation history is disabled"})
		return false
	}
	return true
}
