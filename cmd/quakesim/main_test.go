package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/quakesim/internal/model/modeltest"
)

const concreteHouse = `{"num_floors":2,"age":10,"plinth_area":800,"foundation_type":"reinforced_concrete","superstructure_type":["timber"]}`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MODEL_URI", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func writeBundle(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(modeltest.ClassifierBundle())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "classifier.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestScore(t *testing.T) {
	out, err := run(t, concreteHouse, "score")
	require.NoError(t, err)

	var res scoreResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "heuristic", res.Mode)
	assert.Equal(t, 1, res.DamageGrade)
	assert.Equal(t, "low", res.RiskLevel)
	assert.Equal(t, "superstructure", res.TopFeature)
}

func TestScoreFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "house.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"simulation_features":`+concreteHouse+`}`), 0o644))

	out, err := run(t, "", "score", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"damage_grade": 1`)
}

func TestScoreRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		want  string
	}{
		{"missing keys", `{"num_floors":2}`, "validation: Missing keys: ['age', 'plinth_area', 'foundation_type', 'superstructure_type']"},
		{"not an object", `[]`, "validation: Request body must be a JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.stdin, "score")
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestPredict(t *testing.T) {
	out, err := run(t, concreteHouse, "predict", "--model", writeBundle(t))
	require.NoError(t, err)

	var res scoreResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "model", res.Mode)
	assert.Equal(t, "sample-classifier", res.Model)
	assert.Equal(t, 1.0, res.Prediction)
	assert.Equal(t, "foundation_type_RC", res.TopFeature)
	assert.Equal(t, 11.72, res.FeatureImportance["foundation_type_RC"])
}

func TestPredictNeedsModel(t *testing.T) {
	_, err := run(t, concreteHouse, "predict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model bundle")
}

func TestBundleInspect(t *testing.T) {
	out, err := run(t, "", "bundle", "inspect", writeBundle(t))
	require.NoError(t, err)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "sample-classifier", info["name"])
	assert.Equal(t, "trees", info["backend"])
}

func TestBundlePush(t *testing.T) {
	src := writeBundle(t)
	dst := filepath.Join(t.TempDir(), "published", "damage.json")

	out, err := run(t, "", "bundle", "push", src, dst)
	require.NoError(t, err)
	assert.Equal(t, "pushed sample-classifier (classifier) to "+dst+"\n", out)

	want, err := os.ReadFile(src)
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBundlePushRejectsInvalidBundle(t *testing.T) {
	src := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"name":"broken"}`), 0o644))
	dst := filepath.Join(t.TempDir(), "damage.json")

	_, err := run(t, "", "bundle", "push", src, dst)
	require.Error(t, err)
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}
