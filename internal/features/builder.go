// Package features turns building descriptions into the fixed-order numeric
// vectors a trained damage model consumes.
package features

import (
	"fmt"
	"math"

	apperrors "github.com/ZanzyTHEbar/quakesim/internal/errors"
	"github.com/ZanzyTHEbar/quakesim/internal/types"
)

// Vector is a feature vector in schema order.
type Vector []float64

// Builder encodes SimulationFeatures against one schema. Column resolution
// happens once in NewBuilder; Build is pure and safe for concurrent use.
type Builder struct {
	schema  Schema
	columns []column
	strict  map[string]bool
}

// NewBuilder resolves every schema column. It fails with a schema mismatch
// when a column has no corresponding input attribute.
func NewBuilder(schema Schema) (*Builder, error) {
	if len(schema) == 0 {
		return nil, apperrors.NewSchemaMismatchError("schema has no columns", nil)
	}

	b := &Builder{
		schema:  schema,
		columns: make([]column, len(schema)),
		strict:  make(map[string]bool),
	}
	for i, name := range schema {
		col, err := resolveColumn(name)
		if err != nil {
			return nil, apperrors.NewSchemaMismatchError(err.Error(), err)
		}
		b.columns[i] = col
		if col.kind == kindFoundation || col.kind == kindPlan {
			b.strict[col.group] = true
		}
	}
	return b, nil
}

// Schema returns the schema the builder encodes against.
func (b *Builder) Schema() Schema {
	return b.schema
}

// Build encodes f in schema order.
func Build(f types.SimulationFeatures, schema Schema) (Vector, error) {
	b, err := NewBuilder(schema)
	if err != nil {
		return nil, err
	}
	return b.Build(f)
}

// Build encodes f. Numeric attributes are copied, superstructure materials are
// multi-hot, foundation and plan configuration are one-hot.
func (b *Builder) Build(f types.SimulationFeatures) (Vector, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}

	vec := make(Vector, len(b.columns))
	hot := make(map[string]int, len(b.strict))

	for i, col := range b.columns {
		var v float64
		switch col.kind {
		case kindNumFloors:
			v = float64(f.NumFloors)
		case kindAge:
			v = float64(f.Age)
		case kindPlinthArea:
			v = f.PlinthArea
		case kindHeightRatio:
			v = f.HeightFt / f.PlinthArea
		case kindGeotechnical:
			v = boolFlag(f.GeotechnicalRisk)
		case kindSuperstructure:
			v = boolFlag(f.SuperstructureType.Contains(col.material))
		case kindFoundation:
			v = boolFlag(f.FoundationType == col.foundation)
		case kindPlan:
			v = boolFlag(f.Plan() == col.plan)
		case kindLabel:
			v = boolFlag(labelFor(f, col.group) == col.label)
		}
		if v == 1 && col.group != "" {
			hot[col.group]++
		}
		vec[i] = v
	}

	for group := range b.strict {
		if hot[group] != 1 {
			return nil, apperrors.NewSchemaMismatchError(
				fmt.Sprintf("schema has no %s column for %q", group, selectedValue(f, group)), nil)
		}
	}

	return vec, nil
}

// BuildEncoded orders values that are already keyed by schema column.
func (b *Builder) BuildEncoded(values map[string]float64) (Vector, error) {
	vec := make(Vector, len(b.schema))
	for i, name := range b.schema {
		v, ok := values[name]
		if !ok {
			return nil, apperrors.NewSchemaMismatchError(fmt.Sprintf("no value for column %q", name), nil)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, apperrors.NewInvalidFeaturesError(name, "must be a finite number")
		}
		vec[i] = v
	}
	return vec, nil
}

// Validate checks the domain of every attribute.
func Validate(f types.SimulationFeatures) error {
	switch {
	case f.NumFloors <= 0:
		return apperrors.NewInvalidFeaturesError("num_floors", "must be a positive integer")
	case f.Age < 0:
		return apperrors.NewInvalidFeaturesError("age", "must not be negative")
	case math.IsNaN(f.PlinthArea) || math.IsInf(f.PlinthArea, 0) || f.PlinthArea <= 0:
		return apperrors.NewInvalidFeaturesError("plinth_area", "must be a positive number")
	case !f.FoundationType.Valid():
		return apperrors.NewInvalidFeaturesError("foundation_type", "is missing or not a recognized type")
	case len(f.SuperstructureType) == 0:
		return apperrors.NewInvalidFeaturesError("superstructure_type", "must contain at least one material")
	case f.PlanConfiguration != "" && !f.PlanConfiguration.Valid():
		return apperrors.NewInvalidFeaturesError("plan_configuration", "is not a recognized configuration")
	case f.HeightFt < 0 || math.IsNaN(f.HeightFt):
		return apperrors.NewInvalidFeaturesError("height_ft", "must not be negative")
	}

	for _, m := range f.SuperstructureType {
		if !m.Valid() {
			return apperrors.NewInvalidFeaturesError("superstructure_type", fmt.Sprintf("contains unknown material %q", m))
		}
	}
	return nil
}

func labelFor(f types.SimulationFeatures, group string) string {
	switch group {
	case groupRoof:
		return f.RoofType
	case groupGroundFloor:
		return f.GroundFloorType
	case groupOtherFloor:
		return f.OtherFloorType
	case groupPosition:
		return f.Position
	}
	return ""
}

func selectedValue(f types.SimulationFeatures, group string) string {
	switch group {
	case groupFoundation:
		return string(f.FoundationType)
	case groupPlan:
		return string(f.Plan())
	}
	return labelFor(f, group)
}

func boolFlag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
