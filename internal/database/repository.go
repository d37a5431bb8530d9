package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no simulation has the requested ID.
var ErrNotFound = errors.New("simulation not found")

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

const simulationColumns = `id, request_id, route, mode, model, input, prediction,
	damage_grade, risk_level, feature_importance, duration_ms, created_at`

// SaveSimulation inserts a history record
func (r *Repository) SaveSimulation(ctx context.Context, sim *Simulation) error {
	if sim.ID == "" {
		sim.ID = uuid.New().String()
	}
	if sim.CreatedAt.IsZero() {
		sim.CreatedAt = time.Now().UTC()
	}
	input := sim.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	importance, err := json.Marshal(sim.FeatureImportance)
	if err != nil {
		return fmt.Errorf("failed to encode feature importance: %w", err)
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO simulations (`+simulationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		sim.ID, nullString(sim.RequestID), sim.Route, sim.Mode, nullString(sim.Model), string(input),
		sim.Prediction, nullInt(sim.DamageGrade), nullString(sim.RiskLevel), string(importance),
		sim.DurationMS, sim.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save simulation: %w", err)
	}
	return nil
}

// GetSimulation loads one history record
func (r *Repository) GetSimulation(ctx context.Context, id string) (*Simulation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+simulationColumns+` FROM simulations WHERE id = ?
	`), id)

	sim, err := scanSimulation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query simulation: %w", err)
	}
	return sim, nil
}

// ListSimulations returns the most recent records first. limit is clamped
// to [1, MaxListLimit]; zero means DefaultListLimit.
func (r *Repository) ListSimulations(ctx context.Context, limit int) ([]*Simulation, error) {
	switch {
	case limit == 0:
		limit = DefaultListLimit
	case limit < 0:
		limit = 1
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT `+simulationColumns+` FROM simulations
		ORDER BY created_at DESC, id
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list simulations: %w", err)
	}
	defer rows.Close()

	sims := make([]*Simulation, 0, limit)
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan simulation: %w", err)
		}
		sims = append(sims, sim)
	}
	return sims, rows.Err()
}

// Summary aggregates the history recorded since a point in time.
type Summary struct {
	Total          int64            `json:"total"`
	ByMode         map[string]int64 `json:"by_mode"`
	ByGrade        map[string]int64 `json:"by_grade"`
	ByRiskLevel    map[string]int64 `json:"by_risk_level"`
	MeanPrediction float64          `json:"mean_prediction"`
	MeanDurationMS float64          `json:"mean_duration_ms"`
}

// Summarize aggregates the records created at or after since. A zero
// since covers the whole table.
func (r *Repository) Summarize(ctx context.Context, since time.Time) (*Summary, error) {
	where, args := "", []any{}
	if !since.IsZero() {
		where, args = " WHERE created_at >= ?", []any{since.UTC()}
	}

	summary := &Summary{}
	var meanPrediction, meanDuration sql.NullFloat64
	err := r.db.QueryRowContext(ctx, r.db.Rebind(
		`SELECT COUNT(*), AVG(prediction), AVG(duration_ms) FROM simulations`+where), args...,
	).Scan(&summary.Total, &meanPrediction, &meanDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize simulations: %w", err)
	}
	summary.MeanPrediction = meanPrediction.Float64
	summary.MeanDurationMS = meanDuration.Float64

	if summary.ByMode, err = r.countBy(ctx, "mode", where, args); err != nil {
		return nil, err
	}
	if summary.ByGrade, err = r.countBy(ctx, "damage_grade", where, args); err != nil {
		return nil, err
	}
	if summary.ByRiskLevel, err = r.countBy(ctx, "risk_level", where, args); err != nil {
		return nil, err
	}
	return summary, nil
}

// countBy groups on one column; NULL values are left out.
func (r *Repository) countBy(ctx context.Context, column, where string, args []any) (map[string]int64, error) {
	cond := " WHERE " + column + " IS NOT NULL"
	if where != "" {
		cond = where + " AND " + column + " IS NOT NULL"
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(
		`SELECT `+column+`, COUNT(*) FROM simulations`+cond+` GROUP BY `+column), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count simulations by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key sql.NullString
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key.String] = n
	}
	return counts, rows.Err()
}

// DeleteSimulationsBefore removes records older than cutoff and returns
// how many were deleted.
func (r *Repository) DeleteSimulationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(
		`DELETE FROM simulations WHERE created_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old simulations: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSimulation(s scanner) (*Simulation, error) {
	var (
		sim                         Simulation
		requestID, model, riskLevel sql.NullString
		damageGrade                 sql.NullInt64
		input, importance           []byte
	)
	err := s.Scan(
		&sim.ID, &requestID, &sim.Route, &sim.Mode, &model, &input, &sim.Prediction,
		&damageGrade, &riskLevel, &importance, &sim.DurationMS, &sim.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	sim.RequestID = requestID.String
	sim.Model = model.String
	sim.RiskLevel = riskLevel.String
	sim.DamageGrade = int(damageGrade.Int64)
	sim.Input = json.RawMessage(input)
	sim.CreatedAt = sim.CreatedAt.UTC()
	if err := json.Unmarshal(importance, &sim.FeatureImportance); err != nil {
		return nil, fmt.Errorf("failed to decode feature importance: %w", err)
	}
	return &sim, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
