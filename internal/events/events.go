package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/quakesim/internal/database"
	"github.com/ZanzyTHEbar/quakesim/internal/encoding"
)

// TopicSimulationCompleted carries one message per persisted simulation.
const TopicSimulationCompleted = "simulation.completed"

// EventTypeSimulationCompleted is the type field of SimulationCompleted.
const EventTypeSimulationCompleted = "simulation.completed"

// SimulationCompleted is the payload published after a history write.
type SimulationCompleted struct {
	Type              string             `json:"type"`
	ID                string             `json:"id"`
	RequestID         string             `json:"request_id,omitempty"`
	Route             string             `json:"route"`
	Mode              string             `json:"mode"`
	Model             string             `json:"model,omitempty"`
	Prediction        float64            `json:"prediction"`
	DamageGrade       int                `json:"damage_grade,omitempty"`
	RiskLevel         string             `json:"risk_level,omitempty"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	DurationMS        int64              `json:"duration_ms"`
	CompletedAt       time.Time          `json:"completed_at"`
}

// FromSimulation builds the event for a stored record. The raw input is
// left out of the payload.
func FromSimulation(sim *database.Simulation) SimulationCompleted {
	return SimulationCompleted{
		Type:              EventTypeSimulationCompleted,
		ID:                sim.ID,
		RequestID:         sim.RequestID,
		Route:             sim.Route,
		Mode:              sim.Mode,
		Model:             sim.Model,
		Prediction:        sim.Prediction,
		DamageGrade:       sim.DamageGrade,
		RiskLevel:         sim.RiskLevel,
		FeatureImportance: sim.FeatureImportance,
		DurationMS:        sim.DurationMS,
		CompletedAt:       sim.CreatedAt.UTC(),
	}
}

// Encode returns the message key and JSON value for evt.
func (evt SimulationCompleted) Encode() ([]byte, []byte, error) {
	if evt.ID == "" {
		return nil, nil, errors.New("event id is required")
	}
	value, err := encoding.MarshalJSON(evt)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", evt.Type, err)
	}
	return []byte(evt.ID), value, nil
}

// Publisher delivers simulation events to a broker.
type Publisher interface {
	Publish(ctx context.Context, evt SimulationCompleted) error
	Name() string
	Close() error
}

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, SimulationCompleted) error { return nil }
func (Noop) Name() string                                       { return "noop" }
func (Noop) Close() error                                       { return nil }

// Multi fans an event out to several publishers.
type Multi []Publisher

// Publish delivers to every publisher and joins their errors.
func (m Multi) Publish(ctx context.Context, evt SimulationCompleted) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Name() string { return "multi" }

// Close closes every publisher.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Hook adapts p into a history save hook. onPublish may be nil.
func Hook(p Publisher, onPublish func(success bool)) database.SaveHook {
	if onPublish == nil {
		onPublish = func(bool) {}
	}
	return func(ctx context.Context, sim *database.Simulation) {
		err := p.Publish(ctx, FromSimulation(sim))
		if err != nil {
			slog.Error("Failed to publish simulation event",
				"publisher", p.Name(),
				"simulation_id", sim.ID,
				"error", err)
		}
		onPublish(err == nil)
	}
}
