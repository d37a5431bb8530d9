// Package modeltest provides small hand-checked bundles for tests.
package modeltest

import (
	"github.com/ZanzyTHEbar/quakesim/internal/model"
)

// ClassifierFeatures is the schema of ClassifierBundle.
var ClassifierFeatures = []string{
	"num_floors",
	"age",
	"plinth_area",
	"foundation_type_Mud mortar-Stone/Brick",
	"foundation_type_Bamboo/Timber",
	"foundation_type_Cement-Stone/Brick",
	"foundation_type_RC",
	"foundation_type_Other",
	"has_superstructure_adobe_mud",
	"has_superstructure_timber",
	"has_superstructure_rc_engineered",
}

func tree(class int, nodes ...[5]float64) model.Tree {
	t := model.Tree{Class: class}
	for _, n := range nodes {
		t.Left = append(t.Left, int(n[0]))
		t.Right = append(t.Right, int(n[1]))
		t.Feature = append(t.Feature, int(n[2]))
		t.Threshold = append(t.Threshold, n[3])
		t.Value = append(t.Value, n[4])
	}
	return t
}

// leafNode is a node row {left, right, feature, threshold, value} without children.
func leafNode(v float64) [5]float64 {
	return [5]float64{-1, -1, -2, -2, v}
}

// ClassifierBundle returns a three-grade classifier. For a two storey,
// ten year old reinforced concrete building the raw logits are
// [1.5, 0.1, -0.5] and the predicted grade is 1.
func ClassifierBundle() *model.Bundle {
	return &model.Bundle{
		Name:         "sample-classifier",
		Version:      "test",
		Task:         model.TaskClassifier,
		FeatureNames: append([]string(nil), ClassifierFeatures...),
		Classes:      []int{1, 2, 3},
		BaseScore:    []float64{0, 0, 0},
		Aggregation:  model.AggregateSum,
		Trees: []model.Tree{
			// grade 1 on reinforced concrete foundations
			tree(0,
				[5]float64{1, 2, 6, 0.5, 0},
				leafNode(-0.5),
				leafNode(1.5),
			),
			// grade 2 on adobe walls
			tree(1,
				[5]float64{1, 2, 8, 0.5, 0.3},
				leafNode(0.1),
				leafNode(0.8),
			),
			// grade 3 on tall or old buildings
			tree(2,
				[5]float64{1, 2, 0, 2.5, 0.2},
				[5]float64{3, 4, 1, 30, -0.2},
				leafNode(1.0),
				leafNode(-0.5),
				leafNode(0.5),
			),
		},
		PredictionScale: 1,
		ImportanceScale: 25,
		TopK:            4,
	}
}

// RegressorBundle returns a mean-aggregated regressor over num_floors, age
// and plinth_area. For two floors and age ten the raw output is 2.0, which
// the calibration maps to 50.0.
func RegressorBundle() *model.Bundle {
	return &model.Bundle{
		Name:         "sample-regressor",
		Task:         model.TaskRegressor,
		FeatureNames: []string{"num_floors", "age", "plinth_area"},
		BaseScore:    []float64{0.5},
		Aggregation:  model.AggregateMean,
		Trees: []model.Tree{
			tree(0,
				[5]float64{1, 2, 1, 20, 2.0},
				leafNode(1.0),
				leafNode(3.0),
			),
			tree(0,
				[5]float64{1, 2, 0, 1.5, 1.5},
				leafNode(1.0),
				leafNode(2.0),
			),
		},
		Calibration:     []float64{0, 1, 2, 3, 4},
		PredictionScale: 100,
		ImportanceScale: 1,
		TopK:            4,
	}
}
