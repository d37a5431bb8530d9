package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FoundationType is the closed set of foundation constructions.
type FoundationType string

const (
	FoundationMudMortarStoneBrick FoundationType = "mud_mortar_stone_brick"
	FoundationBambooTimber        FoundationType = "bamboo_timber"
	FoundationCementStoneBrick    FoundationType = "cement_stone_brick"
	FoundationReinforcedConcrete  FoundationType = "reinforced_concrete"
	FoundationOther               FoundationType = "other"
)

// FoundationTypes lists every foundation type in declaration order.
var FoundationTypes = []FoundationType{
	FoundationMudMortarStoneBrick,
	FoundationBambooTimber,
	FoundationCementStoneBrick,
	FoundationReinforcedConcrete,
	FoundationOther,
}

// Valid reports whether f is a recognized foundation type.
func (f FoundationType) Valid() bool {
	switch f {
	case FoundationMudMortarStoneBrick, FoundationBambooTimber, FoundationCementStoneBrick,
		FoundationReinforcedConcrete, FoundationOther:
		return true
	}
	return false
}

// DatasetLabel returns the label used by the training dataset columns
// (e.g. "foundation_type_Bamboo/Timber").
func (f FoundationType) DatasetLabel() string {
	switch f {
	case FoundationMudMortarStoneBrick:
		return "Mud mortar-Stone/Brick"
	case FoundationBambooTimber:
		return "Bamboo/Timber"
	case FoundationCementStoneBrick:
		return "Cement-Stone/Brick"
	case FoundationReinforcedConcrete:
		return "RC"
	case FoundationOther:
		return "Other"
	}
	return ""
}

func (f *FoundationType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("foundation_type must be a string: %w", err)
	}
	v := FoundationType(s)
	if !v.Valid() {
		return fmt.Errorf("unknown foundation_type %q", s)
	}
	*f = v
	return nil
}

// SuperstructureType is the closed set of load-bearing wall materials.
type SuperstructureType string

const (
	SuperstructureAdobeMud          SuperstructureType = "adobe_mud"
	SuperstructureMudMortarStone    SuperstructureType = "mud_mortar_stone"
	SuperstructureStoneFlag         SuperstructureType = "stone_flag"
	SuperstructureCementMortarStone SuperstructureType = "cement_mortar_stone"
	SuperstructureMudMortarBrick    SuperstructureType = "mud_mortar_brick"
	SuperstructureCementMortarBrick SuperstructureType = "cement_mortar_brick"
	SuperstructureTimber            SuperstructureType = "timber"
	SuperstructureBamboo            SuperstructureType = "bamboo"
	SuperstructureRCNonEngineered   SuperstructureType = "rc_non_engineered"
	SuperstructureReEngineered      SuperstructureType = "re_engineered"
	SuperstructureOther             SuperstructureType = "other"
)

// SuperstructureTypes lists every material in declaration order.
var SuperstructureTypes = []SuperstructureType{
	SuperstructureAdobeMud,
	SuperstructureMudMortarStone,
	SuperstructureStoneFlag,
	SuperstructureCementMortarStone,
	SuperstructureMudMortarBrick,
	SuperstructureCementMortarBrick,
	SuperstructureTimber,
	SuperstructureBamboo,
	SuperstructureRCNonEngineered,
	SuperstructureReEngineered,
	SuperstructureOther,
}

// Valid reports whether s is a recognized superstructure material.
func (s SuperstructureType) Valid() bool {
	switch s {
	case SuperstructureAdobeMud, SuperstructureMudMortarStone, SuperstructureStoneFlag,
		SuperstructureCementMortarStone, SuperstructureMudMortarBrick, SuperstructureCementMortarBrick,
		SuperstructureTimber, SuperstructureBamboo, SuperstructureRCNonEngineered,
		SuperstructureReEngineered, SuperstructureOther:
		return true
	}
	return false
}

// ColumnSuffix returns the suffix of the has_superstructure_* dataset column.
// The dataset spells the engineered reinforced concrete column "rc_engineered".
func (s SuperstructureType) ColumnSuffix() string {
	if s == SuperstructureReEngineered {
		return "rc_engineered"
	}
	return string(s)
}

func (s *SuperstructureType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("superstructure_type entries must be strings: %w", err)
	}
	v := SuperstructureType(raw)
	if !v.Valid() {
		return fmt.Errorf("unknown superstructure_type %q", raw)
	}
	*s = v
	return nil
}

// SuperstructureSet holds the distinct materials of a building. It decodes
// from either a JSON array or a single string.
type SuperstructureSet []SuperstructureType

func (set *SuperstructureSet) UnmarshalJSON(data []byte) error {
	var list []SuperstructureType
	if err := json.Unmarshal(data, &list); err != nil {
		var single SuperstructureType
		if errSingle := json.Unmarshal(data, &single); errSingle != nil {
			if len(data) > 0 && data[0] == '"' {
				return errSingle
			}
			return err
		}
		list = []SuperstructureType{single}
	}

	seen := make(map[SuperstructureType]bool, len(list))
	out := make(SuperstructureSet, 0, len(list))
	for _, m := range list {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	*set = out
	return nil
}

// Contains reports whether m is part of the set.
func (set SuperstructureSet) Contains(m SuperstructureType) bool {
	for _, v := range set {
		if v == m {
			return true
		}
	}
	return false
}

// Sorted returns a copy ordered by material name, used for stable cache keys and storage.
func (set SuperstructureSet) Sorted() SuperstructureSet {
	out := make(SuperstructureSet, len(set))
	copy(out, set)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PlanConfiguration is the closed set of building plan shapes.
type PlanConfiguration string

const (
	PlanRectangular      PlanConfiguration = "rectangular"
	PlanSquare           PlanConfiguration = "square"
	PlanLShape           PlanConfiguration = "l_shape"
	PlanTShape           PlanConfiguration = "t_shape"
	PlanUShape           PlanConfiguration = "u_shape"
	PlanEShape           PlanConfiguration = "e_shape"
	PlanHShape           PlanConfiguration = "h_shape"
	PlanMultiProjected   PlanConfiguration = "multi_projected"
	PlanCentralCourtyard PlanConfiguration = "central_courtyard"
	PlanOthers           PlanConfiguration = "others"
)

// Valid reports whether p is a recognized plan configuration.
func (p PlanConfiguration) Valid() bool {
	return p.DatasetLabel() != ""
}

// DatasetLabel returns the label used by plan_configuration_* dataset columns.
func (p PlanConfiguration) DatasetLabel() string {
	switch p {
	case PlanRectangular:
		return "Rectangular"
	case PlanSquare:
		return "Square"
	case PlanLShape:
		return "L-shape"
	case PlanTShape:
		return "T-shape"
	case PlanUShape:
		return "U-shape"
	case PlanEShape:
		return "E-shape"
	case PlanHShape:
		return "H-shape"
	case PlanMultiProjected:
		return "Multi-projected"
	case PlanCentralCourtyard:
		return "Building with Central Courtyard"
	case PlanOthers:
		return "Others"
	}
	return ""
}

func (p *PlanConfiguration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("plan_configuration must be a string: %w", err)
	}
	v := PlanConfiguration(s)
	if !v.Valid() {
		return fmt.Errorf("unknown plan_configuration %q", s)
	}
	*p = v
	return nil
}

// SimulationFeatures is the building description submitted by clients.
type SimulationFeatures struct {
	NumFloors          int               `json:"num_floors"`
	Age                int               `json:"age"`
	PlinthArea         float64           `json:"plinth_area"`
	FoundationType     FoundationType    `json:"foundation_type"`
	SuperstructureType SuperstructureSet `json:"superstructure_type"`

	PlanConfiguration PlanConfiguration `json:"plan_configuration,omitempty"`
	HeightFt          float64           `json:"height_ft,omitempty"`
	GeotechnicalRisk  bool              `json:"geotechnical_risk,omitempty"`
	RoofType          string            `json:"roof_type,omitempty"`
	GroundFloorType   string            `json:"ground_floor_type,omitempty"`
	OtherFloorType    string            `json:"other_floor_type,omitempty"`
	Position          string            `json:"position,omitempty"`
}

// RequiredFeatureKeys are the keys every SimulationFeatures payload must carry,
// in the order they are reported when missing.
var RequiredFeatureKeys = []string{
	"num_floors",
	"age",
	"plinth_area",
	"foundation_type",
	"superstructure_type",
}

// Plan returns the plan configuration, defaulting to rectangular.
func (f SimulationFeatures) Plan() PlanConfiguration {
	if f.PlanConfiguration == "" {
		return PlanRectangular
	}
	return f.PlanConfiguration
}

// SimulateEnvelope is the legacy request shape that nests the features.
type SimulateEnvelope struct {
	SimulationFeatures json.RawMessage `json:"simulation_features"`
}
