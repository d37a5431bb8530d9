package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/quakesim/internal/cache"
	"github.com/ZanzyTHEbar/quakesim/internal/database"
	apperrors "github.com/ZanzyTHEbar/quakesim/internal/errors"
	"github.com/ZanzyTHEbar/quakesim/internal/inference"
	"github.com/ZanzyTHEbar/quakesim/internal/resilience"
)

// SimulateResponse is the body of a successful heuristic simulation.
type SimulateResponse struct {
	DamageGrade       int                `json:"damage_grade"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	RiskLevel         string             `json:"risk_level"`
	ID                string             `json:"id,omitempty"`
}

// PredictResponse is the body of a successful model prediction or of its
// heuristic fallback.
type PredictResponse struct {
	Prediction        float64            `json:"prediction"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	Mode              string             `json:"mode"`
	Model             string             `json:"model,omitempty"`
	DamageGrade       int                `json:"damage_grade,omitempty"`
	Probabilities     map[string]float64 `json:"probabilities,omitempty"`
	RiskLevel         string             `json:"risk_level,omitempty"`
	RiskLevels        map[string]string  `json:"risk_levels,omitempty"`
	ID                string             `json:"id,omitempty"`
}

// handleSimulate godoc
// @Summary      Heuristic damage estimate
// @Description  Scores a building with the deterministic weighted formula.
// @Tags         simulate
// @Accept       json
// @Produce      json
// @Param        building  body      types.SimulationFeatures  true  "Building attributes, optionally wrapped in simulation_features"
// @Success      200       {object}  SimulateResponse
// @Failure      400       {object}  map[string]string
// @Failure      500       {object}  map[string]string
// @Router       /simulate [post]
func (s *Server) handleSimulate(c *gin.Context) {
	start := time.Now()
	body, raw, ok := s.readInput(c)
	if !ok {
		return
	}

	out, err := s.opts.Heuristic.Infer(c.Request.Context(), raw)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	id := s.complete(c, body, out, time.Since(start))
	c.JSON(http.StatusOK, SimulateResponse{
		DamageGrade:       out.DamageGrade,
		FeatureImportance: out.FeatureImportance,
		RiskLevel:         string(out.RiskLevel),
		ID:                id,
	})
}

// handlePredict godoc
// @Summary      Model damage estimate
// @Description  Runs the trained model with feature attribution. Falls back to the heuristic scorer when the model is unavailable.
// @Tags         simulate
// @Accept       json
// @Produce      json
// @Param        building  body      map[string]interface{}  true  "Building attributes or schema-encoded columns"
// @Success      200       {object}  PredictResponse
// @Failure      400       {object}  map[string]string
// @Failure      500       {object}  map[string]string
// @Router       /api/predict [post]
func (s *Server) handlePredict(c *gin.Context) {
	start := time.Now()
	body, raw, ok := s.readInput(c)
	if !ok {
		return
	}

	if !s.modelAvailable() {
		c.Set(cache.SkipKey, true)
		out, err := s.opts.Heuristic.Infer(c.Request.Context(), raw)
		if err != nil {
			apperrors.Respond(c, err)
			return
		}
		id := s.complete(c, body, out, time.Since(start))
		c.JSON(http.StatusOK, predictResponse(out, id))
		return
	}

	out, err := s.opts.Model.Infer(c.Request.Context(), raw)
	s.recordModelResult(err)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	id := s.complete(c, body, out, time.Since(start))
	c.JSON(http.StatusOK, predictResponse(out, id))
}

func predictResponse(out *inference.Outcome, id string) PredictResponse {
	resp := PredictResponse{
		Prediction:        out.Value(),
		FeatureImportance: out.FeatureImportance,
		Mode:              out.Mode,
		Model:             out.Model,
		DamageGrade:       out.DamageGrade,
		Probabilities:     out.Probabilities,
		RiskLevel:         string(out.RiskLevel),
		ID:                id,
	}
	if len(out.RiskLevels) > 0 {
		resp.RiskLevels = make(map[string]string, len(out.RiskLevels))
		for name, level := range out.RiskLevels {
			resp.RiskLevels[name] = string(level)
		}
	}
	return resp
}

// readInput reads and parses the request body, responding on failure.
func (s *Server) readInput(c *gin.Context) ([]byte, inference.RawInput, bool) {
	body, err := c.GetRawData()
	if err != nil {
		apperrors.Respond(c, apperrors.NewValidationError("failed to read request body", err.Error()))
		return nil, inference.RawInput{}, false
	}
	raw, err := inference.ParseRaw(body)
	if err != nil {
		apperrors.Respond(c, err)
		return nil, inference.RawInput{}, false
	}
	return body, raw, true
}

// modelAvailable reports whether requests should reach the model. The
// breaker check lets a half-open breaker through so it can recover.
func (s *Server) modelAvailable() bool {
	if s.opts.Model == nil {
		return false
	}
	if !s.opts.Degradation.IsServiceAvailable(ModelService) {
		return false
	}
	if breaker, ok := s.opts.Breakers.Get(ModelService); ok && breaker.State() == resilience.StateOpen {
		return false
	}
	return true
}

// recordModelResult feeds the degradation manager. Client errors say
// nothing about model health and are not recorded.
func (s *Server) recordModelResult(err error) {
	if err != nil && (!inference.BreakerTrips(err) || errors.Is(err, context.Canceled)) {
		return
	}
	if err != nil {
		s.opts.Metrics.IncrementModelFailure()
		s.opts.Degradation.RecordError(ModelService, err)
		return
	}
	s.opts.Degradation.RecordRequest(ModelService, true)
}

// complete logs and counts a finished simulation and queues it for the
// history store. It returns the history id, or "" when history is off.
func (s *Server) complete(c *gin.Context, body []byte, out *inference.Outcome, elapsed time.Duration) string {
	s.opts.Metrics.RecordSimulation(out.Mode)
	s.opts.Logger.SimulationLogger(out.Mode, out.Value(), out.TopFeature(), elapsed, c.GetBool("cache_hit"))
	return s.record(c.Request.URL.Path, c.GetString("request_id"), body, out, elapsed)
}

func (s *Server) record(route, requestID string, body []byte, out *inference.Outcome, elapsed time.Duration) string {
	if s.opts.History == nil {
		return ""
	}

	input := json.RawMessage(body)
	if !json.Valid(body) {
		input = nil
	}
	sim := database.NewSimulation(route, out.Mode, input)
	sim.RequestID = requestID
	sim.Model = out.Model
	sim.Prediction = out.Value()
	sim.DamageGrade = out.DamageGrade
	sim.RiskLevel = string(out.RiskLevel)
	sim.FeatureImportance = out.FeatureImportance
	sim.DurationMS = elapsed.Milliseconds()

	if !s.opts.History.Record(sim) {
		return ""
	}
	return sim.ID
}

// failedSession reports a request that could not be parsed as a
// validation failure of the stream.
type failedSession struct{ err error }

func (f failedSession) Validate() error                      { return f.err }
func (f failedSession) Build() error                         { return f.err }
func (f failedSession) Predict(context.Context) error        { return f.err }
func (f failedSession) Explain(context.Context) error        { return f.err }
func (f failedSession) Outcome() (*inference.Outcome, error) { return nil, f.err }
