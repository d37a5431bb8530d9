package errors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMissingKeys(t *testing.T) {
	tests := []struct {
		name     string
		keys     []string
		expected string
	}{
		{"single key", []string{"age"}, "Missing keys: ['age']"},
		{"two keys", []string{"age", "plinth_area"}, "Missing keys: ['age', 'plinth_area']"},
		{"no keys", nil, "Missing keys: []"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatMissingKeys(tt.keys))
		})
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		category ErrorCategory
		status   int
		prefix   string
	}{
		{"missing keys", NewMissingKeysError([]string{"age"}), CategoryValidation, http.StatusBadRequest, "[VALIDATION_ERROR]"},
		{"invalid features", NewInvalidFeaturesError("age", "must not be negative"), CategoryValidation, http.StatusBadRequest, "[VALIDATION_ERROR]"},
		{"inference", NewInferenceError("predict", fmt.Errorf("tree 3 is malformed")), CategoryInference, http.StatusInternalServerError, "[INFERENCE_ERROR]"},
		{"schema", NewSchemaMismatchError("vector has 3 values, schema has 4", nil), CategorySchema, http.StatusInternalServerError, "[SCHEMA_MISMATCH]"},
		{"timeout", NewTimeoutError("slow", nil), CategoryTimeout, http.StatusGatewayTimeout, "[TIMEOUT_ERROR]"},
		{"configuration", NewConfigurationError("no bundle", nil), CategoryConfiguration, http.StatusInternalServerError, "[CONFIGURATION_ERROR]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Contains(t, tt.err.Error(), tt.prefix)
		})
	}
}

func TestInferenceErrorSurfacesCauseVerbatim(t *testing.T) {
	cause := fmt.Errorf("explainer returned 2 rows for 3 features")
	err := NewInferenceError("explain", cause)

	assert.Equal(t, cause.Error(), err.Message())
	assert.ErrorIs(t, err, cause)
}

func TestToAppError(t *testing.T) {
	t.Run("keeps wrapped app errors", func(t *testing.T) {
		inner := NewMissingKeysError([]string{"age"})
		wrapped := fmt.Errorf("decode request: %w", inner)
		assert.Same(t, inner, ToAppError(wrapped))
	})

	t.Run("maps context cancellation to timeout", func(t *testing.T) {
		assert.Equal(t, CategoryTimeout, ToAppError(context.Canceled).Category)
	})

	t.Run("defaults to internal", func(t *testing.T) {
		appErr := ToAppError(fmt.Errorf("boom"))
		assert.Equal(t, CategoryInternal, appErr.Category)
		assert.Equal(t, "boom", appErr.Message())
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, ToAppError(nil))
	})
}

func TestIsCategory(t *testing.T) {
	err := fmt.Errorf("stage: %w", NewSchemaMismatchError("bad", nil))
	assert.True(t, IsCategory(err, CategorySchema))
	assert.False(t, IsCategory(err, CategoryValidation))
	assert.False(t, IsCategory(fmt.Errorf("plain"), CategorySchema))
}

func TestRespondWritesErrorBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/simulate", func(c *gin.Context) {
		Respond(c, NewMissingKeysError([]string{"age", "plinth_area"}))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/simulate", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Missing keys: ['age', 'plinth_area']","category":"validation"}`, w.Body.String())
}

func TestRecoveryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RecoveryHandler())
	r.GET("/panic", func(c *gin.Context) {
		panic("explainer exploded")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "explainer exploded")
}

func TestSafeExecute(t *testing.T) {
	err := SafeExecute(func() error { panic("index out of range") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index out of range")

	assert.NoError(t, SafeExecute(func() error { return nil }))
}
