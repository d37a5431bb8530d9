package features

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/quakesim/internal/types"
)

// Schema is the ordered list of column names a trained model expects.
type Schema []string

// NewSchema validates that names is non-empty and free of duplicates.
func NewSchema(names []string) (Schema, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("schema has no columns")
	}
	seen := make(map[string]int, len(names))
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			return nil, fmt.Errorf("schema column %d is empty", i)
		}
		if j, dup := seen[n]; dup {
			return nil, fmt.Errorf("schema column %q repeated at %d and %d", n, j, i)
		}
		seen[n] = i
	}
	out := make(Schema, len(names))
	copy(out, names)
	return out, nil
}

// Index returns the position of name, or -1.
func (s Schema) Index(name string) int {
	for i, n := range s {
		if n == name {
			return i
		}
	}
	return -1
}

// Contains reports whether name is a column of the schema.
func (s Schema) Contains(name string) bool {
	return s.Index(name) >= 0
}

type columnKind int

const (
	kindNumFloors columnKind = iota
	kindAge
	kindPlinthArea
	kindHeightRatio
	kindGeotechnical
	kindSuperstructure
	kindFoundation
	kindPlan
	kindLabel
)

// group names for one-hot columns
const (
	groupFoundation      = "foundation_type"
	groupPlan            = "plan_configuration"
	groupRoof            = "roof_type"
	groupGroundFloor     = "ground_floor_type"
	groupOtherFloor      = "other_floor_type"
	groupPosition        = "position"
	superstructurePrefix = "has_superstructure_"
)

type column struct {
	name       string
	kind       columnKind
	group      string
	material   types.SuperstructureType
	foundation types.FoundationType
	plan       types.PlanConfiguration
	label      string
}

var numericAliases = map[string]columnKind{
	"num_floors":            kindNumFloors,
	"count_floors_pre_eq":   kindNumFloors,
	"age":                   kindAge,
	"age_building":          kindAge,
	"plinth_area":           kindPlinthArea,
	"plinth_area_sq_ft":     kindPlinthArea,
	"height_plinth_ratio":   kindHeightRatio,
	"geotechnical_risk":     kindGeotechnical,
	"has_geotechnical_risk": kindGeotechnical,
}

// resolveColumn maps a schema column onto the input attribute that feeds it.
func resolveColumn(name string) (column, error) {
	if kind, ok := numericAliases[name]; ok {
		return column{name: name, kind: kind}, nil
	}

	if suffix, ok := strings.CutPrefix(name, superstructurePrefix); ok {
		for _, m := range types.SuperstructureTypes {
			if suffix == m.ColumnSuffix() || suffix == string(m) {
				return column{name: name, kind: kindSuperstructure, material: m}, nil
			}
		}
		return column{}, fmt.Errorf("column %q names an unknown superstructure material", name)
	}

	if label, ok := strings.CutPrefix(name, groupFoundation+"_"); ok {
		for _, f := range types.FoundationTypes {
			if label == f.DatasetLabel() || label == string(f) {
				return column{name: name, kind: kindFoundation, group: groupFoundation, foundation: f}, nil
			}
		}
		return column{}, fmt.Errorf("column %q names an unknown foundation type", name)
	}

	if label, ok := strings.CutPrefix(name, groupPlan+"_"); ok {
		p := types.PlanConfiguration(label)
		if p.Valid() {
			return column{name: name, kind: kindPlan, group: groupPlan, plan: p}, nil
		}
		for _, candidate := range planConfigurations {
			if label == candidate.DatasetLabel() {
				return column{name: name, kind: kindPlan, group: groupPlan, plan: candidate}, nil
			}
		}
		return column{}, fmt.Errorf("column %q names an unknown plan configuration", name)
	}

	for _, group := range []string{groupRoof, groupGroundFloor, groupOtherFloor, groupPosition} {
		if label, ok := strings.CutPrefix(name, group+"_"); ok && label != "" {
			return column{name: name, kind: kindLabel, group: group, label: label}, nil
		}
	}

	return column{}, fmt.Errorf("column %q has no corresponding input attribute", name)
}

var planConfigurations = []types.PlanConfiguration{
	types.PlanRectangular,
	types.PlanSquare,
	types.PlanLShape,
	types.PlanTShape,
	types.PlanUShape,
	types.PlanEShape,
	types.PlanHShape,
	types.PlanMultiProjected,
	types.PlanCentralCourtyard,
	types.PlanOthers,
}
