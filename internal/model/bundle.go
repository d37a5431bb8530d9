// Package model loads trained damage model bundles and serves predictions and
// per-feature explanations from them.
package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ZanzyTHEbar/quakesim/internal/features"
)

// Task is the kind of estimator a bundle carries.
type Task string

const (
	TaskClassifier Task = "classifier"
	TaskRegressor  Task = "regressor"
)

// Aggregation combines the outputs of the trees targeting one class.
type Aggregation string

const (
	AggregateSum  Aggregation = "sum"
	AggregateMean Aggregation = "mean"
)

const (
	defaultTopK                 = 4
	defaultClassifierImportance = 25
	defaultRegressorPrediction  = 100
)

// Tree is one decision tree in flat node-array form. Node 0 is the root, a
// node is a leaf when its left child is -1, and Value holds the expected
// output at every node (not only leaves).
type Tree struct {
	Left      []int     `json:"children_left"`
	Right     []int     `json:"children_right"`
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Value     []float64 `json:"value"`
	Class     int       `json:"class"`
}

// ONNXConfig points at an optional ONNX classifier used for predictions.
type ONNXConfig struct {
	Path        string `json:"path"`
	LibraryPath string `json:"library_path,omitempty"`
}

// Bundle is the on-disk description of a trained model.
type Bundle struct {
	Name            string      `json:"name"`
	Version         string      `json:"version,omitempty"`
	Task            Task        `json:"task"`
	FeatureNames    []string    `json:"feature_names"`
	Classes         []int       `json:"classes,omitempty"`
	BaseScore       []float64   `json:"base_score"`
	Aggregation     Aggregation `json:"aggregation,omitempty"`
	Trees           []Tree      `json:"trees"`
	Calibration     []float64   `json:"calibration,omitempty"`
	PredictionScale float64     `json:"prediction_scale,omitempty"`
	ImportanceScale float64     `json:"importance_scale,omitempty"`
	TopK            int         `json:"top_k,omitempty"`
	ONNX            *ONNXConfig `json:"onnx,omitempty"`
}

// Parse decodes and validates a bundle manifest.
func Parse(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode model bundle: %w", err)
	}
	b.applyDefaults()
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadFile reads a bundle from disk.
func LoadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model bundle: %w", err)
	}
	return Parse(data)
}

func (b *Bundle) applyDefaults() {
	if b.Aggregation == "" {
		b.Aggregation = AggregateSum
	}
	if b.TopK == 0 {
		b.TopK = defaultTopK
	}
	switch b.Task {
	case TaskClassifier:
		if b.PredictionScale == 0 {
			b.PredictionScale = 1
		}
		if b.ImportanceScale == 0 {
			b.ImportanceScale = defaultClassifierImportance
		}
	case TaskRegressor:
		if b.PredictionScale == 0 {
			b.PredictionScale = defaultRegressorPrediction
		}
		if b.ImportanceScale == 0 {
			b.ImportanceScale = 1
		}
		if len(b.BaseScore) == 0 {
			b.BaseScore = []float64{0}
		}
	}
}

// Outputs is the number of logits the ensemble produces.
func (b *Bundle) Outputs() int {
	if b.Task == TaskClassifier {
		return len(b.Classes)
	}
	return 1
}

// Schema returns the feature schema of the bundle.
func (b *Bundle) Schema() (features.Schema, error) {
	return features.NewSchema(b.FeatureNames)
}

// Validate checks the manifest for internal consistency.
func (b *Bundle) Validate() error {
	switch b.Task {
	case TaskClassifier:
		if len(b.Classes) < 2 {
			return fmt.Errorf("classifier bundle needs at least two classes, has %d", len(b.Classes))
		}
	case TaskRegressor:
		if len(b.Classes) > 0 {
			return fmt.Errorf("regressor bundle must not declare classes")
		}
	default:
		return fmt.Errorf("unknown task %q", b.Task)
	}

	if _, err := b.Schema(); err != nil {
		return fmt.Errorf("feature_names: %w", err)
	}
	if len(b.BaseScore) != b.Outputs() {
		return fmt.Errorf("base_score has %d values, want %d", len(b.BaseScore), b.Outputs())
	}
	if b.Aggregation != AggregateSum && b.Aggregation != AggregateMean {
		return fmt.Errorf("unknown aggregation %q", b.Aggregation)
	}
	if len(b.Trees) == 0 {
		return fmt.Errorf("bundle has no trees")
	}
	for i, t := range b.Trees {
		if err := t.validate(len(b.FeatureNames), b.Outputs()); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	if b.TopK < 0 {
		return fmt.Errorf("top_k must not be negative")
	}
	if b.ONNX != nil && b.ONNX.Path == "" {
		return fmt.Errorf("onnx.path is empty")
	}
	return nil
}

func (t Tree) validate(numFeatures, outputs int) error {
	n := len(t.Left)
	if n == 0 {
		return fmt.Errorf("no nodes")
	}
	if len(t.Right) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays differ in length")
	}
	if t.Class < 0 || t.Class >= outputs {
		return fmt.Errorf("class %d out of range", t.Class)
	}
	for i := 0; i < n; i++ {
		l, r := t.Left[i], t.Right[i]
		if l == -1 && r == -1 {
			continue
		}
		// children always come after their parent, which also rules out cycles
		if l <= i || r <= i || l >= n || r >= n {
			return fmt.Errorf("node %d has invalid children %d, %d", i, l, r)
		}
		if f := t.Feature[i]; f < 0 || f >= numFeatures {
			return fmt.Errorf("node %d splits on feature %d of %d", i, f, numFeatures)
		}
	}
	return nil
}
