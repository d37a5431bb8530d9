package inference

import (
	"context"
	"sort"

	"github.com/ZanzyTHEbar/quakesim/internal/analysis"
	"github.com/ZanzyTHEbar/quakesim/internal/attribution"
	"github.com/ZanzyTHEbar/quakesim/internal/types"
)

// HeuristicEngine scores buildings with the rule-based scorer. It needs no
// artifacts and is always available.
type HeuristicEngine struct{}

// NewHeuristicEngine returns the rule-based engine.
func NewHeuristicEngine() *HeuristicEngine { return &HeuristicEngine{} }

// Mode implements Engine.
func (HeuristicEngine) Mode() string { return ModeHeuristic }

// Start implements Engine.
func (h *HeuristicEngine) Start(raw RawInput) Session {
	return &heuristicSession{raw: raw}
}

// Infer runs one full heuristic scoring.
func (h *HeuristicEngine) Infer(ctx context.Context, raw RawInput) (*Outcome, error) {
	return Run(ctx, h.Start(raw))
}

type heuristicSession struct {
	raw      RawInput
	stage    stage
	building types.SimulationFeatures
	result   analysis.ScoreResult
}

func (s *heuristicSession) Validate() error {
	if err := checkStage(s.stage, stageNew); err != nil {
		return err
	}
	f, err := s.raw.RequireFeatures()
	if err != nil {
		return err
	}
	s.building = f
	s.stage = stageValidated
	return nil
}

// Build has nothing to encode; validation already covered the inputs.
func (s *heuristicSession) Build() error {
	if err := checkStage(s.stage, stageValidated); err != nil {
		return err
	}
	s.stage = stageBuilt
	return nil
}

func (s *heuristicSession) Predict(ctx context.Context) error {
	if err := checkStage(s.stage, stageBuilt); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := analysis.Score(s.building)
	if err != nil {
		return err
	}
	s.result = res
	s.stage = stagePredicted
	return nil
}

func (s *heuristicSession) Explain(ctx context.Context) error {
	if err := checkStage(s.stage, stagePredicted); err != nil {
		return err
	}
	s.stage = stageExplained
	return nil
}

func (s *heuristicSession) Outcome() (*Outcome, error) {
	if err := checkStage(s.stage, stageExplained); err != nil {
		return nil, err
	}
	return &Outcome{
		DamageGrade:       s.result.DamageGrade,
		FeatureImportance: s.result.FeatureImportance,
		Ranking:           rankImportance(s.result.FeatureImportance),
		RiskLevel:         s.result.RiskLevel,
		Mode:              ModeHeuristic,
	}, nil
}

func rankImportance(importance map[string]float64) []attribution.Ranked {
	out := make([]attribution.Ranked, 0, len(importance))
	for name, v := range importance {
		out = append(out, attribution.Ranked{Name: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Name < out[j].Name
	})
	return out
}
