package database

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleSimulation(grade int, at time.Time) *Simulation {
	sim := NewSimulation("/simulate", "heuristic", json.RawMessage(`{"num_floors":2}`))
	sim.Prediction = float64(grade)
	sim.DamageGrade = grade
	sim.RiskLevel = "low"
	sim.FeatureImportance = map[string]float64{"foundation": 0.2, "superstructure": 0.4}
	sim.DurationMS = 3
	sim.CreatedAt = at
	return sim
}

func TestDSN(t *testing.T) {
	dialect, conn, err := dsn(Config{URL: "postgres://u:p@db:5432/quakesim?sslmode=disable"})
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, dialect)
	assert.Equal(t, "postgres://u:p@db:5432/quakesim?sslmode=disable", conn)

	dialect, conn, err = dsn(Config{URL: "sqlite:///var/lib/quakesim/history.db"})
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, dialect)
	assert.Contains(t, conn, "file:/var/lib/quakesim/history.db?")

	_, _, err = dsn(Config{URL: "mysql://db"})
	assert.Error(t, err)
	_, _, err = dsn(Config{})
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = ? AND b = ?", (&DB{dialect: DialectSQLite}).Rebind("a = ? AND b = ?"))
	assert.Equal(t, "a = $1 AND b = $2", (&DB{dialect: DialectPostgres}).Rebind("a = ? AND b = ?"))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		db, err := Open(context.Background(), Config{DataDir: dir})
		require.NoError(t, err)
		require.NoError(t, db.HealthCheck(context.Background()))
		require.NoError(t, db.Close())
	}
}

func TestSaveAndGetSimulation(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()

	sim := sampleSimulation(1, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sim.RequestID = "req-1"
	require.NoError(t, repo.SaveSimulation(ctx, sim))

	got, err := repo.GetSimulation(ctx, sim.ID)
	require.NoError(t, err)
	assert.Equal(t, sim.ID, got.ID)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "/simulate", got.Route)
	assert.Equal(t, "heuristic", got.Mode)
	assert.Empty(t, got.Model)
	assert.JSONEq(t, `{"num_floors":2}`, string(got.Input))
	assert.Equal(t, 1, got.DamageGrade)
	assert.Equal(t, sim.FeatureImportance, got.FeatureImportance)
	assert.True(t, sim.CreatedAt.Equal(got.CreatedAt))

	_, err = repo.GetSimulation(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetSimulation(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSimulations(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 5; i++ {
		sim := sampleSimulation(i+1, start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.SaveSimulation(ctx, sim))
		ids = append(ids, sim.ID)
	}

	sims, err := repo.ListSimulations(ctx, 3)
	require.NoError(t, err)
	require.Len(t, sims, 3)
	assert.Equal(t, ids[4], sims[0].ID)
	assert.Equal(t, ids[2], sims[2].ID)

	sims, err = repo.ListSimulations(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, sims, 5)

}

func TestSummarize(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, grade := range []int{1, 1, 3} {
		sim := sampleSimulation(grade, start.Add(time.Duration(i)*time.Hour))
		if grade == 3 {
			sim.RiskLevel = "high"
		}
		require.NoError(t, repo.SaveSimulation(ctx, sim))
	}
	model := sampleSimulation(2, start.Add(3*time.Hour))
	model.Mode = "model"
	model.DamageGrade = 0
	model.RiskLevel = ""
	model.Prediction = 0.5
	require.NoError(t, repo.SaveSimulation(ctx, model))

	all, err := repo.Summarize(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), all.Total)
	assert.Equal(t, map[string]int64{"heuristic": 3, "model": 1}, all.ByMode)
	assert.Equal(t, map[string]int64{"1": 2, "3": 1}, all.ByGrade)
	assert.Equal(t, map[string]int64{"low": 2, "high": 1}, all.ByRiskLevel)
	assert.InDelta(t, 5.5/4, all.MeanPrediction, 1e-9)
	assert.InDelta(t, 3, all.MeanDurationMS, 1e-9)

	recent, err := repo.Summarize(ctx, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), recent.Total)
	assert.Equal(t, map[string]int64{"heuristic": 1, "model": 1}, recent.ByMode)

	empty, err := repo.Summarize(ctx, start.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.MeanPrediction)
	assert.Empty(t, empty.ByMode)
}

func TestDeleteSimulationsBefore(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.SaveSimulation(ctx, sampleSimulation(1, start.AddDate(0, 0, i))))
	}

	deleted, err := repo.DeleteSimulationsBefore(ctx, start.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	sims, err := repo.ListSimulations(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, sims, 2)

	deleted, err = repo.DeleteSimulationsBefore(ctx, start)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestHistoryServicePersistsInBackground(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	var writes atomic.Int64
	var hooked atomic.Int64
	svc := NewHistoryService(repo, 2, 16,
		func(success bool) {
			if success {
				writes.Add(1)
			}
		},
		func(ctx context.Context, sim *Simulation) { hooked.Add(1) },
	)

	for i := 0; i < 4; i++ {
		assert.True(t, svc.Record(sampleSimulation(2, time.Now().UTC())))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Close(ctx))

	assert.Equal(t, int64(4), writes.Load())
	assert.Equal(t, int64(4), hooked.Load())
	assert.False(t, svc.Record(sampleSimulation(2, time.Now().UTC())))

	sims, err := repo.ListSimulations(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, sims, 4)
}
