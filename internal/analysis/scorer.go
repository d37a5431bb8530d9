// Package analysis implements the deterministic heuristic damage scorer and the
// calibration helpers shared with the model path.
package analysis

import (
	"math"

	"github.com/ZanzyTHEbar/quakesim/internal/features"
	"github.com/ZanzyTHEbar/quakesim/internal/types"
)

// Age and plinth area are divided by their scale before weighting. Folding
// the scale into the weight changes the last bit and flips grades on halves.
const (
	floorWeight = 0.3
	ageWeight   = 0.25
	areaWeight  = 0.15

	ageScale  = 50
	areaScale = 2000

	numComponents = 5
	minGrade      = 1
	maxGrade      = 5
)

// static importance weights reported for the numeric components
var importanceWeights = map[string]float64{
	"num_floors":  floorWeight,
	"age":         ageWeight,
	"plinth_area": areaWeight,
}

// FoundationWeight returns the vulnerability weight of a foundation type.
func FoundationWeight(f types.FoundationType) float64 {
	switch f {
	case types.FoundationMudMortarStoneBrick:
		return 0.8
	case types.FoundationBambooTimber:
		return 0.9
	case types.FoundationCementStoneBrick:
		return 0.5
	case types.FoundationReinforcedConcrete:
		return 0.2
	case types.FoundationOther:
		return 0.7
	}
	return 0
}

// SuperstructureWeight returns the vulnerability weight of a wall material.
func SuperstructureWeight(m types.SuperstructureType) float64 {
	switch m {
	case types.SuperstructureAdobeMud:
		return 0.9
	case types.SuperstructureStoneFlag, types.SuperstructureMudMortarStone:
		return 0.8
	case types.SuperstructureCementMortarStone:
		return 0.7
	case types.SuperstructureMudMortarBrick:
		return 0.6
	case types.SuperstructureCementMortarBrick:
		return 0.5
	case types.SuperstructureTimber:
		return 0.4
	case types.SuperstructureRCNonEngineered:
		return 0.35
	case types.SuperstructureBamboo:
		return 0.3
	case types.SuperstructureOther:
		return 0.2
	case types.SuperstructureReEngineered:
		return 0.15
	}
	return 0
}

func scoreComponents(f types.SimulationFeatures) Breakdown {
	var super float64
	for _, m := range f.SuperstructureType {
		super += SuperstructureWeight(m)
	}
	super /= float64(len(f.SuperstructureType))

	return Breakdown{
		Floors:         math.Min(float64(f.NumFloors)*floorWeight, 1),
		Age:            math.Min(float64(f.Age)/ageScale*ageWeight, 1),
		Area:           math.Min(f.PlinthArea/areaScale*areaWeight, 1),
		Foundation:     FoundationWeight(f.FoundationType),
		Superstructure: super,
	}
}

// Score computes the heuristic damage grade of a building. Validation is the
// same as the feature builder's, so an empty superstructure set is rejected
// before any division happens.
func Score(f types.SimulationFeatures) (ScoreResult, error) {
	if err := features.Validate(f); err != nil {
		return ScoreResult{}, err
	}

	b := scoreComponents(f)
	raw := b.Sum() / numComponents

	grade := GradeFromRaw(raw)
	return ScoreResult{
		DamageGrade: grade,
		RiskLevel:   GradeRiskLevel(grade),
		RawScore:    raw,
		FeatureImportance: map[string]float64{
			"num_floors":     importanceWeights["num_floors"],
			"age":            importanceWeights["age"],
			"plinth_area":    importanceWeights["plinth_area"],
			"foundation":     b.Foundation,
			"superstructure": b.Superstructure,
		},
		Breakdown: b,
	}, nil
}

// GradeFromRaw maps a raw score in [0,1] onto the 1..5 grade scale. Halves
// round to even.
func GradeFromRaw(raw float64) int {
	g := int(math.RoundToEven(raw * maxGrade))
	return int(clip(float64(g), minGrade, maxGrade))
}

// GradeRiskLevel labels a damage grade.
func GradeRiskLevel(grade int) RiskLevel {
	switch {
	case grade <= 1:
		return RiskLow
	case grade == 2:
		return RiskModerate
	case grade == 3:
		return RiskElevated
	case grade == 4:
		return RiskHigh
	default:
		return RiskSevere
	}
}

// ImportanceRiskLevel labels a display-scaled attribution value.
func ImportanceRiskLevel(v float64) RiskLevel {
	switch {
	case v >= 10:
		return RiskHigh
	case v >= 5:
		return RiskModerate
	case v >= 0:
		return RiskLow
	case v <= -5:
		return RiskHighlyProtective
	default:
		return RiskProtective
	}
}

// ImportanceRiskLevels labels every entry of an importance map.
func ImportanceRiskLevels(importance map[string]float64) map[string]RiskLevel {
	out := make(map[string]RiskLevel, len(importance))
	for k, v := range importance {
		out[k] = ImportanceRiskLevel(v)
	}
	return out
}
