// Package inference runs a building description through validation, feature
// encoding, prediction and attribution, either against a trained model or the
// heuristic scorer.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ZanzyTHEbar/quakesim/internal/analysis"
	"github.com/ZanzyTHEbar/quakesim/internal/attribution"
	apperrors "github.com/ZanzyTHEbar/quakesim/internal/errors"
	"github.com/ZanzyTHEbar/quakesim/internal/features"
	"github.com/ZanzyTHEbar/quakesim/internal/model"
	"github.com/ZanzyTHEbar/quakesim/internal/resilience"
	"github.com/ZanzyTHEbar/quakesim/internal/types"
)

const (
	ModeModel     = "model"
	ModeHeuristic = "heuristic"
)

// Classifier produces predictions from an encoded feature vector.
type Classifier interface {
	Predict(ctx context.Context, x []float64) (float64, error)
	PredictProba(ctx context.Context, x []float64) ([]float64, error)
}

// Explainer produces per-output base values and per-feature contributions,
// indexed [feature][output].
type Explainer interface {
	Explain(ctx context.Context, x []float64) ([]float64, [][]float64, error)
}

// Outcome is the result of one inference.
type Outcome struct {
	Prediction        *float64                      `json:"prediction,omitempty"`
	DamageGrade       int                           `json:"damage_grade,omitempty"`
	Probabilities     map[string]float64            `json:"probabilities,omitempty"`
	FeatureImportance map[string]float64            `json:"feature_importance"`
	Ranking           []attribution.Ranked          `json:"ranking,omitempty"`
	RiskLevel         analysis.RiskLevel            `json:"risk_level,omitempty"`
	RiskLevels        map[string]analysis.RiskLevel `json:"risk_levels,omitempty"`
	Mode              string                        `json:"mode"`
	Model             string                        `json:"model,omitempty"`
}

// Value is the headline number of the outcome: the model prediction when
// there is one, otherwise the damage grade.
func (o *Outcome) Value() float64 {
	if o.Prediction != nil {
		return *o.Prediction
	}
	return float64(o.DamageGrade)
}

// TopFeature returns the highest ranked feature, if any.
func (o *Outcome) TopFeature() string {
	if len(o.Ranking) > 0 {
		return o.Ranking[0].Name
	}
	best, bestVal := "", -1.0
	for name, v := range o.FeatureImportance {
		if v > bestVal || (v == bestVal && name < best) {
			best, bestVal = name, v
		}
	}
	return best
}

// Session is one inference split into stages so callers can report progress
// between them. Stages must run in order; each one fails if the previous one
// did not succeed.
type Session interface {
	Validate() error
	Build() error
	Predict(ctx context.Context) error
	Explain(ctx context.Context) error
	Outcome() (*Outcome, error)
}

// Engine starts inference sessions.
type Engine interface {
	Start(raw RawInput) Session
	Mode() string
}

// Run drives a session through every stage.
func Run(ctx context.Context, s Session) (*Outcome, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := s.Build(); err != nil {
		return nil, err
	}
	if err := s.Predict(ctx); err != nil {
		return nil, err
	}
	if err := s.Explain(ctx); err != nil {
		return nil, err
	}
	return s.Outcome()
}

// Config describes the bundle behind a ModelEngine.
type Config struct {
	Name            string
	Task            model.Task
	Schema          features.Schema
	Classes         []int
	TopK            int
	ImportanceScale float64
	// Calibrate maps a raw regression output to the reported prediction.
	Calibrate func(float64) float64
}

// ModelEngine serves a trained bundle.
type ModelEngine struct {
	cfg       Config
	builder   *features.Builder
	clf       Classifier
	exp       Explainer
	breaker   *resilience.CircuitBreaker
	attribute attribution.Options
}

// NewEngine wires a classifier and explainer for the given bundle
// description. breaker may be nil.
func NewEngine(cfg Config, clf Classifier, exp Explainer, breaker *resilience.CircuitBreaker) (*ModelEngine, error) {
	if clf == nil || exp == nil {
		return nil, fmt.Errorf("classifier and explainer are required")
	}
	builder, err := features.NewBuilder(cfg.Schema)
	if err != nil {
		return nil, err
	}
	if cfg.Task == model.TaskClassifier && len(cfg.Classes) < 2 {
		return nil, fmt.Errorf("classifier needs at least two classes")
	}
	if cfg.Calibrate == nil {
		cfg.Calibrate = func(v float64) float64 { return v }
	}

	opts := attribution.DefaultOptions()
	if cfg.TopK > 0 {
		opts.TopK = cfg.TopK
	}
	if cfg.ImportanceScale != 0 {
		opts.Scale = cfg.ImportanceScale
	}
	if cfg.Task == model.TaskRegressor {
		opts.Decimals = -1
	}

	return &ModelEngine{
		cfg:       cfg,
		builder:   builder,
		clf:       clf,
		exp:       exp,
		breaker:   breaker,
		attribute: opts,
	}, nil
}

// NewModelEngine serves a loaded model.
func NewModelEngine(m *model.Model, breaker *resilience.CircuitBreaker) (*ModelEngine, error) {
	b := m.Bundle()
	return NewEngine(Config{
		Name:            b.Name,
		Task:            b.Task,
		Schema:          m.Schema(),
		Classes:         b.Classes,
		TopK:            b.TopK,
		ImportanceScale: b.ImportanceScale,
		Calibrate:       m.Calibrate,
	}, m, m, breaker)
}

// Mode implements Engine.
func (e *ModelEngine) Mode() string { return ModeModel }

// Name is the bundle name.
func (e *ModelEngine) Name() string { return e.cfg.Name }

// Schema is the feature order the bundle was trained on.
func (e *ModelEngine) Schema() features.Schema { return e.cfg.Schema }

// Start implements Engine.
func (e *ModelEngine) Start(raw RawInput) Session {
	return &modelSession{engine: e, raw: raw}
}

// Infer runs one full inference.
func (e *ModelEngine) Infer(ctx context.Context, raw RawInput) (*Outcome, error) {
	return Run(ctx, e.Start(raw))
}

// BreakerTrips reports whether err should count against the model circuit
// breaker. Client input errors never do.
func BreakerTrips(err error) bool {
	return err != nil && !apperrors.IsCategory(err, apperrors.CategoryValidation)
}

type stage int

const (
	stageNew stage = iota
	stageValidated
	stageBuilt
	stagePredicted
	stageExplained
)

var errStageOrder = errors.New("inference stages called out of order")

type modelSession struct {
	engine *ModelEngine
	raw    RawInput
	stage  stage

	encoded  bool
	building types.SimulationFeatures
	values   map[string]float64
	vector   features.Vector

	prediction float64
	proba      []float64

	ranking    []attribution.Ranked
	importance map[string]float64
}

func checkStage(got, want stage) error {
	if got != want {
		return apperrors.NewInternalError(errStageOrder.Error(), errStageOrder)
	}
	return nil
}

func (s *modelSession) Validate() error {
	if err := checkStage(s.stage, stageNew); err != nil {
		return err
	}

	schema := s.engine.cfg.Schema
	s.encoded = s.raw.IsEncoded(schema)
	if s.encoded {
		values, err := s.raw.RequireEncoded(schema)
		if err != nil {
			return err
		}
		s.values = values
	} else {
		f, err := s.raw.RequireFeatures()
		if err != nil {
			return err
		}
		s.building = f
	}
	s.stage = stageValidated
	return nil
}

func (s *modelSession) Build() error {
	if err := checkStage(s.stage, stageValidated); err != nil {
		return err
	}

	var (
		vec features.Vector
		err error
	)
	if s.encoded {
		vec, err = s.engine.builder.BuildEncoded(s.values)
	} else {
		vec, err = s.engine.builder.Build(s.building)
	}
	if err != nil {
		return err
	}
	if len(vec) != len(s.engine.cfg.Schema) {
		return apperrors.NewSchemaMismatchError(
			fmt.Sprintf("vector has %d values, schema has %d", len(vec), len(s.engine.cfg.Schema)), nil)
	}
	s.vector = vec
	s.stage = stageBuilt
	return nil
}

func (s *modelSession) Predict(ctx context.Context) error {
	if err := checkStage(s.stage, stageBuilt); err != nil {
		return err
	}

	err := s.engine.guarded("predict", func() error {
		pred, err := s.engine.clf.Predict(ctx, s.vector)
		if err != nil {
			return err
		}
		s.prediction = pred
		if s.engine.cfg.Task == model.TaskClassifier {
			proba, err := s.engine.clf.PredictProba(ctx, s.vector)
			if err != nil {
				return err
			}
			if len(proba) != len(s.engine.cfg.Classes) {
				return apperrors.NewSchemaMismatchError(
					fmt.Sprintf("%d probabilities for %d classes", len(proba), len(s.engine.cfg.Classes)), nil)
			}
			s.proba = proba
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.stage = stagePredicted
	return nil
}

func (s *modelSession) Explain(ctx context.Context) error {
	if err := checkStage(s.stage, stagePredicted); err != nil {
		return err
	}

	var (
		base    []float64
		contrib [][]float64
	)
	err := s.engine.guarded("explain", func() error {
		var err error
		base, contrib, err = s.engine.exp.Explain(ctx, s.vector)
		return err
	})
	if err != nil {
		return err
	}

	names := s.engine.cfg.Schema
	if len(contrib) != len(names) {
		return apperrors.NewSchemaMismatchError(
			fmt.Sprintf("explainer returned %d contribution rows for %d features", len(contrib), len(names)), nil)
	}

	if s.engine.cfg.Task == model.TaskRegressor {
		scores := make([]float64, len(contrib))
		for i, row := range contrib {
			if len(row) == 0 {
				return apperrors.NewSchemaMismatchError("empty contribution row for "+names[i], nil)
			}
			scores[i] = row[0]
		}
		ranking, err := attribution.Rank(names, scores, s.engine.attribute)
		if err != nil {
			return apperrors.NewSchemaMismatchError(err.Error(), err)
		}
		s.ranking = ranking
	} else {
		res, err := attribution.Attribute(names, base, contrib, s.engine.attribute)
		if err != nil {
			return apperrors.NewSchemaMismatchError(err.Error(), err)
		}
		s.ranking = res.Ranking
	}
	s.importance = attribution.ToMap(s.ranking)
	s.stage = stageExplained
	return nil
}

func (s *modelSession) Outcome() (*Outcome, error) {
	if err := checkStage(s.stage, stageExplained); err != nil {
		return nil, err
	}

	out := &Outcome{
		FeatureImportance: s.importance,
		Ranking:           s.ranking,
		Mode:              ModeModel,
		Model:             s.engine.cfg.Name,
	}

	if s.engine.cfg.Task == model.TaskRegressor {
		pred := s.engine.cfg.Calibrate(s.prediction)
		out.Prediction = &pred
		return out, nil
	}

	pred := s.prediction
	out.Prediction = &pred
	out.DamageGrade = int(pred)
	out.Probabilities = make(map[string]float64, len(s.proba))
	for i, p := range s.proba {
		out.Probabilities[strconv.Itoa(s.engine.cfg.Classes[i])] = p
	}
	out.RiskLevels = analysis.ImportanceRiskLevels(s.importance)
	return out, nil
}

// guarded runs a model call behind the circuit breaker and turns failures
// and panics into inference errors.
func (e *ModelEngine) guarded(name string, fn func() error) error {
	call := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v", name, r)
			}
		}()
		return fn()
	}

	var err error
	if e.breaker != nil {
		err = e.breaker.Call(call)
	} else {
		err = call()
	}
	if err == nil {
		return nil
	}

	var cbErr *resilience.CircuitBreakerError
	if errors.As(err, &cbErr) {
		return apperrors.NewInferenceError(name, errors.New("model temporarily unavailable"))
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.NewInferenceError(name, err)
}
