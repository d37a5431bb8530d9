package inference

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/ZanzyTHEbar/quakesim/internal/errors"
	"github.com/ZanzyTHEbar/quakesim/internal/features"
	"github.com/ZanzyTHEbar/quakesim/internal/types"
)

const envelopeKey = "simulation_features"

// RawInput is a decoded request body before any validation. A body of the
// form {"simulation_features": {...}} is unwrapped.
type RawInput struct {
	Body   []byte
	Fields map[string]json.RawMessage
}

// ParseRaw decodes a JSON object body.
func ParseRaw(body []byte) (RawInput, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return RawInput{}, apperrors.NewValidationError("Request body is required")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return RawInput{}, apperrors.NewValidationError("Request body must be a JSON object")
	}

	if inner, ok := fields[envelopeKey]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(inner, &nested); err != nil || nested == nil {
			return RawInput{}, apperrors.NewValidationError("simulation_features must be a JSON object")
		}
		return RawInput{Body: inner, Fields: nested}, nil
	}

	return RawInput{Body: body, Fields: fields}, nil
}

// Has reports whether key is present, even with a null value.
func (r RawInput) Has(key string) bool {
	_, ok := r.Fields[key]
	return ok
}

// Missing returns the keys absent from the input, in the order given.
func (r RawInput) Missing(keys []string) []string {
	var missing []string
	for _, k := range keys {
		if !r.Has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// IsEncoded reports whether the body is keyed by schema columns rather than
// being a building description. Bodies naming a foundation or superstructure
// type are always descriptions.
func (r RawInput) IsEncoded(schema features.Schema) bool {
	if r.Has("foundation_type") || r.Has("superstructure_type") {
		return false
	}
	for _, col := range schema {
		if r.Has(col) {
			return true
		}
	}
	return false
}

// RequireFeatures checks the five required attributes and decodes them.
func (r RawInput) RequireFeatures() (types.SimulationFeatures, error) {
	if missing := r.Missing(types.RequiredFeatureKeys); len(missing) > 0 {
		return types.SimulationFeatures{}, apperrors.NewMissingKeysError(missing)
	}

	var f types.SimulationFeatures
	if err := json.Unmarshal(r.Body, &f); err != nil {
		return types.SimulationFeatures{}, apperrors.NewValidationError("Invalid features: " + decodeMessage(err))
	}
	if err := features.Validate(f); err != nil {
		return types.SimulationFeatures{}, err
	}
	return f, nil
}

// RequireEncoded checks that every schema column is present and numeric.
func (r RawInput) RequireEncoded(schema features.Schema) (map[string]float64, error) {
	if missing := r.Missing(schema); len(missing) > 0 {
		return nil, apperrors.NewMissingKeysError(missing)
	}

	values := make(map[string]float64, len(schema))
	for _, col := range schema {
		v, err := numericValue(r.Fields[col])
		if err != nil {
			return nil, apperrors.NewInvalidFeaturesError(col, "must be a number")
		}
		values[col] = v
	}
	return values, nil
}

func numericValue(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("not numeric: %s", raw)
}

func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type)
	}
	return err.Error()
}
