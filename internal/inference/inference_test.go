package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/quakesim/internal/analysis"
	"github.com/ZanzyTHEbar/quakesim/internal/attribution"
	apperrors "github.com/ZanzyTHEbar/quakesim/internal/errors"
	"github.com/ZanzyTHEbar/quakesim/internal/model"
	"github.com/ZanzyTHEbar/quakesim/internal/model/modeltest"
	"github.com/ZanzyTHEbar/quakesim/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const concreteHouse = `{
	"num_floors": 2,
	"age": 10,
	"plinth_area": 800,
	"foundation_type": "reinforced_concrete",
	"superstructure_type": ["timber"]
}`

func raw(t *testing.T, body string) RawInput {
	t.Helper()
	r, err := ParseRaw([]byte(body))
	require.NoError(t, err)
	return r
}

func classifierEngine(t *testing.T) *ModelEngine {
	t.Helper()
	m, err := model.New(modeltest.ClassifierBundle())
	require.NoError(t, err)
	e, err := NewModelEngine(m, nil)
	require.NoError(t, err)
	return e
}

type fakeModel struct {
	predict func() (float64, error)
	proba   func() ([]float64, error)
	explain func() ([]float64, [][]float64, error)
}

func (f *fakeModel) Predict(context.Context, []float64) (float64, error) { return f.predict() }

func (f *fakeModel) PredictProba(context.Context, []float64) ([]float64, error) { return f.proba() }

func (f *fakeModel) Explain(context.Context, []float64) ([]float64, [][]float64, error) {
	return f.explain()
}

func healthyFake() *fakeModel {
	return &fakeModel{
		predict: func() (float64, error) { return 2, nil },
		proba:   func() ([]float64, error) { return []float64{0.2, 0.8}, nil },
		explain: func() ([]float64, [][]float64, error) {
			return []float64{0, 0}, [][]float64{{0.1, -0.1}, {0.3, 0}, {0, 0.2}}, nil
		},
	}
}

func fakeEngine(t *testing.T, f *fakeModel, breaker *resilience.CircuitBreaker) *ModelEngine {
	t.Helper()
	e, err := NewEngine(Config{
		Name:    "fake",
		Task:    model.TaskClassifier,
		Schema:  []string{"num_floors", "age", "plinth_area"},
		Classes: []int{1, 2},
	}, f, f, breaker)
	require.NoError(t, err)
	return e
}

func TestParseRaw(t *testing.T) {
	r, err := ParseRaw([]byte(`{"simulation_features": {"age": 3}}`))
	require.NoError(t, err)
	assert.True(t, r.Has("age"))
	assert.False(t, r.Has("simulation_features"))
	assert.JSONEq(t, `{"age": 3}`, string(r.Body))

	for _, body := range []string{"", "   ", "[1,2]", "{not json", `{"simulation_features": 4}`, "null"} {
		_, err := ParseRaw([]byte(body))
		assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation), "body %q", body)
	}
}

func TestClassifierOutcome(t *testing.T) {
	out, err := classifierEngine(t).Infer(context.Background(), raw(t, concreteHouse))
	require.NoError(t, err)

	require.NotNil(t, out.Prediction)
	assert.Equal(t, 1.0, *out.Prediction)
	assert.Equal(t, 1, out.DamageGrade)
	assert.Equal(t, ModeModel, out.Mode)
	assert.Equal(t, "sample-classifier", out.Model)

	expected := attribution.Softmax([]float64{1.5, 0.1, -0.5})
	assert.InDelta(t, expected[0], out.Probabilities["1"], 1e-12)
	assert.InDelta(t, expected[2], out.Probabilities["3"], 1e-12)

	require.Len(t, out.Ranking, 4)
	assert.Equal(t, "foundation_type_RC", out.Ranking[0].Name)
	assert.Equal(t, map[string]float64{
		"foundation_type_RC":           11.72,
		"num_floors":                   2.98,
		"age":                          1.9,
		"has_superstructure_adobe_mud": 0.59,
	}, out.FeatureImportance)
	assert.Equal(t, analysis.RiskHigh, out.RiskLevels["foundation_type_RC"])
	assert.Equal(t, analysis.RiskLow, out.RiskLevels["age"])
}

func TestEnvelopeAndFlatBodiesAgree(t *testing.T) {
	e := classifierEngine(t)
	flat, err := e.Infer(context.Background(), raw(t, concreteHouse))
	require.NoError(t, err)
	nested, err := e.Infer(context.Background(), raw(t, `{"simulation_features": `+concreteHouse+`}`))
	require.NoError(t, err)
	assert.Equal(t, flat, nested)
}

func TestEncodedBody(t *testing.T) {
	body := `{
		"num_floors": 2, "age": 10, "plinth_area": 800,
		"foundation_type_Mud mortar-Stone/Brick": 0,
		"foundation_type_Bamboo/Timber": 0,
		"foundation_type_Cement-Stone/Brick": 0,
		"foundation_type_RC": 1,
		"foundation_type_Other": 0,
		"has_superstructure_adobe_mud": false,
		"has_superstructure_timber": true,
		"has_superstructure_rc_engineered": 0
	}`
	out, err := classifierEngine(t).Infer(context.Background(), raw(t, body))
	require.NoError(t, err)
	assert.Equal(t, 1.0, *out.Prediction)
	assert.Equal(t, 11.72, out.FeatureImportance["foundation_type_RC"])
}

func TestMissingKeys(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{
			name:    "features body",
			body:    `{"num_floors": 2, "foundation_type": "other", "superstructure_type": "timber"}`,
			message: "Missing keys: ['age', 'plinth_area']",
		},
		{
			name:    "empty body",
			body:    `{}`,
			message: "Missing keys: ['num_floors', 'age', 'plinth_area', 'foundation_type', 'superstructure_type']",
		},
		{
			name:    "encoded body",
			body:    `{"num_floors": 2, "age": 10, "plinth_area": 800, "foundation_type_RC": 1}`,
			message: "Missing keys: ['foundation_type_Mud mortar-Stone/Brick', 'foundation_type_Bamboo/Timber', 'foundation_type_Cement-Stone/Brick', 'foundation_type_Other', 'has_superstructure_adobe_mud', 'has_superstructure_timber', 'has_superstructure_rc_engineered']",
		},
	}

	e := classifierEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Infer(context.Background(), raw(t, tt.body))
			appErr := apperrors.ToAppError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, apperrors.CategoryValidation, appErr.Category)
			assert.Equal(t, tt.message, appErr.Message())
		})
	}
}

func TestInvalidFeatures(t *testing.T) {
	bodies := map[string]string{
		"empty superstructure": `{"num_floors": 2, "age": 1, "plinth_area": 5, "foundation_type": "other", "superstructure_type": []}`,
		"unknown foundation":   `{"num_floors": 2, "age": 1, "plinth_area": 5, "foundation_type": "sand", "superstructure_type": "timber"}`,
		"negative age":         `{"num_floors": 2, "age": -1, "plinth_area": 5, "foundation_type": "other", "superstructure_type": "timber"}`,
		"string floors":        `{"num_floors": "two", "age": 1, "plinth_area": 5, "foundation_type": "other", "superstructure_type": "timber"}`,
		"encoded string":       `{"num_floors": 2, "age": 10, "plinth_area": "big", "foundation_type_Mud mortar-Stone/Brick": 0, "foundation_type_Bamboo/Timber": 0, "foundation_type_Cement-Stone/Brick": 0, "foundation_type_RC": 1, "foundation_type_Other": 0, "has_superstructure_adobe_mud": 0, "has_superstructure_timber": 1, "has_superstructure_rc_engineered": 0}`,
	}

	e := classifierEngine(t)
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := e.Infer(context.Background(), raw(t, body))
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation), "got %v", err)
		})
	}
}

func TestRegressorOutcome(t *testing.T) {
	m, err := model.New(modeltest.RegressorBundle())
	require.NoError(t, err)
	e, err := NewModelEngine(m, nil)
	require.NoError(t, err)

	for _, body := range []string{
		`{"num_floors": 2, "age": 10, "plinth_area": 800}`,
		concreteHouse,
	} {
		out, err := e.Infer(context.Background(), raw(t, body))
		require.NoError(t, err)
		require.NotNil(t, out.Prediction)
		assert.Equal(t, 50.0, *out.Prediction)
		assert.Zero(t, out.DamageGrade)
		assert.Nil(t, out.Probabilities)
		require.Len(t, out.Ranking, 3)
		assert.Equal(t, "age", out.Ranking[0].Name)
		assert.InDelta(t, -0.5, out.FeatureImportance["age"], 1e-12)
		assert.InDelta(t, 0.25, out.FeatureImportance["num_floors"], 1e-12)
	}
}

func TestModelFailuresBecomeInferenceErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *fakeModel)
		message string
	}{
		{
			name:    "predict error",
			mutate:  func(f *fakeModel) { f.predict = func() (float64, error) { return 0, errors.New("classifier exploded") } },
			message: "classifier exploded",
		},
		{
			name:    "predict panic",
			mutate:  func(f *fakeModel) { f.predict = func() (float64, error) { panic("boom") } },
			message: "predict panicked: boom",
		},
		{
			name: "explain error",
			mutate: func(f *fakeModel) {
				f.explain = func() ([]float64, [][]float64, error) { return nil, nil, errors.New("explainer exploded") }
			},
			message: "explainer exploded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := healthyFake()
			tt.mutate(f)
			_, err := fakeEngine(t, f, nil).Infer(context.Background(), raw(t, `{"num_floors": 2, "age": 3, "plinth_area": 100}`))
			appErr := apperrors.ToAppError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, apperrors.CategoryInference, appErr.Category)
			assert.Equal(t, tt.message, appErr.Message())
		})
	}
}

func TestExplainerShapeMismatch(t *testing.T) {
	f := healthyFake()
	f.explain = func() ([]float64, [][]float64, error) {
		return []float64{0, 0}, [][]float64{{0.1, 0.1}}, nil
	}
	_, err := fakeEngine(t, f, nil).Infer(context.Background(), raw(t, `{"num_floors": 2, "age": 3, "plinth_area": 100}`))
	assert.True(t, apperrors.IsCategory(err, apperrors.CategorySchema))
}

func TestBreakerOpensOnModelFailures(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Hour,
		SuccessThreshold: 1,
	}).WithTripPredicate(BreakerTrips)

	f := healthyFake()
	f.predict = func() (float64, error) { return 0, errors.New("classifier exploded") }
	e := fakeEngine(t, f, breaker)
	body := `{"num_floors": 2, "age": 3, "plinth_area": 100}`

	// bad input never reaches the model
	for i := 0; i < 3; i++ {
		_, err := e.Infer(context.Background(), raw(t, `{}`))
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateClosed, breaker.State())

	for i := 0; i < 2; i++ {
		_, err := e.Infer(context.Background(), raw(t, body))
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, breaker.State())

	_, err := e.Infer(context.Background(), raw(t, body))
	appErr := apperrors.ToAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CategoryInference, appErr.Category)
	assert.Equal(t, "model temporarily unavailable", appErr.Message())
}

func TestStagesRunInOrder(t *testing.T) {
	s := classifierEngine(t).Start(raw(t, concreteHouse))
	assert.Error(t, s.Predict(context.Background()))
	_, err := s.Outcome()
	assert.Error(t, err)

	require.NoError(t, s.Validate())
	assert.Error(t, s.Validate())
	require.NoError(t, s.Build())
	require.NoError(t, s.Predict(context.Background()))
	require.NoError(t, s.Explain(context.Background()))
	out, err := s.Outcome()
	require.NoError(t, err)
	assert.Equal(t, 1, out.DamageGrade)
}

func TestHeuristicEngine(t *testing.T) {
	out, err := NewHeuristicEngine().Infer(context.Background(), raw(t, concreteHouse))
	require.NoError(t, err)

	assert.Equal(t, 1, out.DamageGrade)
	assert.Nil(t, out.Prediction)
	assert.Equal(t, 1.0, out.Value())
	assert.Equal(t, analysis.RiskLow, out.RiskLevel)
	assert.Equal(t, ModeHeuristic, out.Mode)
	assert.Equal(t, map[string]float64{
		"num_floors":     0.3,
		"age":            0.25,
		"plinth_area":    0.15,
		"foundation":     0.2,
		"superstructure": 0.4,
	}, out.FeatureImportance)
	assert.Equal(t, "superstructure", out.TopFeature())

	_, err = NewHeuristicEngine().Infer(context.Background(), raw(t, `{"num_floors": 2}`))
	assert.Equal(t, "Missing keys: ['age', 'plinth_area', 'foundation_type', 'superstructure_type']",
		apperrors.ToAppError(err).Message())
}
