package database

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Simulation is one scored building kept in the history table
type Simulation struct {
	ID                string             `json:"id"`
	RequestID         string             `json:"request_id,omitempty"`
	Route             string             `json:"route"`
	Mode              string             `json:"mode"`
	Model             string             `json:"model,omitempty"`
	Input             json.RawMessage    `json:"input"`
	Prediction        float64            `json:"prediction"`
	DamageGrade       int                `json:"damage_grade,omitempty"`
	RiskLevel         string             `json:"risk_level,omitempty"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	DurationMS        int64              `json:"duration_ms"`
	CreatedAt         time.Time          `json:"created_at"`
}

// NewSimulation creates a history record with a generated ID
func NewSimulation(route, mode string, input json.RawMessage) *Simulation {
	return &Simulation{
		ID:        uuid.New().String(),
		Route:     route,
		Mode:      mode,
		Input:     input,
		CreatedAt: time.Now().UTC(),
	}
}
