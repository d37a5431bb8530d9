package model

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/quakesim/internal/analysis"
	"github.com/ZanzyTHEbar/quakesim/internal/attribution"
	"github.com/ZanzyTHEbar/quakesim/internal/features"
)

// Model serves predictions and explanations for one loaded bundle. It is
// immutable after construction and safe for concurrent use.
type Model struct {
	bundle      *Bundle
	schema      features.Schema
	ensemble    *Ensemble
	onnx        *onnxClassifier
	calibration analysis.QuantileCalibration
}

// Option customizes a Model.
type Option func(*Model)

// WithCalibration overrides the calibration embedded in the bundle.
func WithCalibration(c analysis.QuantileCalibration) Option {
	return func(m *Model) {
		if !c.Empty() {
			m.calibration = c
		}
	}
}

// New validates the bundle and prepares its evaluators. When the bundle names
// an ONNX classifier, probabilities come from ONNX Runtime and the trees are
// used for explanations only.
func New(b *Bundle, opts ...Option) (*Model, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model bundle: %w", err)
	}
	schema, err := b.Schema()
	if err != nil {
		return nil, err
	}

	m := &Model{
		bundle:      b,
		schema:      schema,
		ensemble:    NewEnsemble(b),
		calibration: analysis.NewQuantileCalibration(b.Calibration),
	}
	for _, opt := range opts {
		opt(m)
	}

	if b.ONNX != nil {
		if b.Task != TaskClassifier {
			return nil, fmt.Errorf("onnx backend only serves classifiers")
		}
		m.onnx, err = newONNXClassifier(*b.ONNX, len(b.FeatureNames), len(b.Classes))
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Bundle returns the manifest the model was built from.
func (m *Model) Bundle() *Bundle { return m.bundle }

// Schema returns the feature order the model expects.
func (m *Model) Schema() features.Schema { return m.schema }

// Task reports whether the model classifies or regresses.
func (m *Model) Task() Task { return m.bundle.Task }

func (m *Model) check(ctx context.Context, x []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(x) != len(m.schema) {
		return fmt.Errorf("feature vector has %d values, model expects %d", len(x), len(m.schema))
	}
	return nil
}

// PredictProba returns class probabilities for a classifier.
func (m *Model) PredictProba(ctx context.Context, x []float64) ([]float64, error) {
	if err := m.check(ctx, x); err != nil {
		return nil, err
	}
	if m.bundle.Task != TaskClassifier {
		return nil, fmt.Errorf("predict_proba is not available for %s bundles", m.bundle.Task)
	}
	if m.onnx != nil {
		return m.onnx.predictProba(x)
	}
	return attribution.Softmax(m.ensemble.Raw(x)), nil
}

// Predict returns the class label with the highest probability for a
// classifier, or the raw regression output for a regressor.
func (m *Model) Predict(ctx context.Context, x []float64) (float64, error) {
	if m.bundle.Task == TaskRegressor {
		if err := m.check(ctx, x); err != nil {
			return 0, err
		}
		return m.ensemble.Raw(x)[0], nil
	}

	proba, err := m.PredictProba(ctx, x)
	if err != nil {
		return 0, err
	}
	best := 0
	for i, p := range proba {
		if p > proba[best] {
			best = i
		}
	}
	return float64(m.bundle.Classes[best]), nil
}

// Explain returns per-output base values and per-feature contributions in
// logit space, indexed [feature][output].
func (m *Model) Explain(ctx context.Context, x []float64) ([]float64, [][]float64, error) {
	if err := m.check(ctx, x); err != nil {
		return nil, nil, err
	}
	base, contrib := m.ensemble.Explain(x)
	return base, contrib, nil
}

// Calibrate maps a raw regression output through the quantile calibration
// and applies the prediction scale, rounded to one decimal.
func (m *Model) Calibrate(raw float64) float64 {
	return analysis.Round(m.calibration.Transform(raw)*m.bundle.PredictionScale, 1)
}

// Info is the public description of a loaded model.
type Info struct {
	Name            string   `json:"name"`
	Version         string   `json:"version,omitempty"`
	Task            Task     `json:"task"`
	Backend         string   `json:"backend"`
	FeatureNames    []string `json:"feature_names"`
	Classes         []int    `json:"classes,omitempty"`
	Trees           int      `json:"trees"`
	Calibrated      bool     `json:"calibrated"`
	PredictionScale float64  `json:"prediction_scale"`
	ImportanceScale float64  `json:"importance_scale"`
	TopK            int      `json:"top_k"`
}

// Info describes the model.
func (m *Model) Info() Info {
	backend := "trees"
	if m.onnx != nil {
		backend = "onnx"
	}
	return Info{
		Name:            m.bundle.Name,
		Version:         m.bundle.Version,
		Task:            m.bundle.Task,
		Backend:         backend,
		FeatureNames:    append([]string(nil), m.bundle.FeatureNames...),
		Classes:         append([]int(nil), m.bundle.Classes...),
		Trees:           len(m.bundle.Trees),
		Calibrated:      !m.calibration.Empty(),
		PredictionScale: m.bundle.PredictionScale,
		ImportanceScale: m.bundle.ImportanceScale,
		TopK:            m.bundle.TopK,
	}
}

// Close releases the ONNX session, if any.
func (m *Model) Close() error {
	if m.onnx != nil {
		return m.onnx.close()
	}
	return nil
}
