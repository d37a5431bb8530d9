package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/quakesim/internal/analysis"
	"github.com/ZanzyTHEbar/quakesim/internal/config"
	"github.com/ZanzyTHEbar/quakesim/internal/events"
	"github.com/ZanzyTHEbar/quakesim/internal/model/modeltest"
)

func TestBundleName(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"./models/damage.json", "damage"},
		{"s3://bucket/models/v2/damage-v2.json", "damage-v2"},
		{"gs://bucket/bundle", "bundle"},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, bundleName(tt.uri))
		})
	}
}

func TestNewPublisherWithoutBrokers(t *testing.T) {
	p := newPublisher(config.EventsConfig{})
	assert.Equal(t, events.Noop{}, p)

	p = newPublisher(config.EventsConfig{Kafka: events.KafkaConfig{Brokers: []string{" "}}})
	assert.Equal(t, "noop", p.Name())
}

func writeBundle(t *testing.T, dir string) string {
	t.Helper()
	data, err := json.Marshal(modeltest.ClassifierBundle())
	require.NoError(t, err)
	path := filepath.Join(dir, "classifier.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadModel(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Model.URI = writeBundle(t, dir)

	m, err := loadModel(context.Background(), cfg)
	require.NoError(t, err)
	defer m.Close()

	info := m.Info()
	assert.Equal(t, "sample-classifier", info.Name)
	assert.False(t, info.Calibrated)
}

func TestLoadModelAppliesStoredCalibration(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Model.URI = writeBundle(t, dir)

	store := analysis.NewCalibrationStore(filepath.Join(dir, "calibration"))
	require.NoError(t, store.SaveCalibration("classifier", analysis.NewQuantileCalibration([]float64{1, 2, 3})))

	m, err := loadModel(context.Background(), cfg)
	require.NoError(t, err)
	defer m.Close()

	assert.True(t, m.Info().Calibrated)
}

func TestLoadModelMissingBundle(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Model.URI = filepath.Join(cfg.DataDir, "missing.json")

	_, err := loadModel(context.Background(), cfg)
	assert.Error(t, err)
}
