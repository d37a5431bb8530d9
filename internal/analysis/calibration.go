package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// QuantileCalibration maps a raw regression output onto [0,1] through the
// empirical distribution of training targets.
type QuantileCalibration struct {
	References []float64 `json:"references"`
}

// NewQuantileCalibration sorts the references.
func NewQuantileCalibration(refs []float64) QuantileCalibration {
	return QuantileCalibration{References: sortedCopy(refs)}
}

// Empty reports whether the calibration has too few references to be applied.
func (q QuantileCalibration) Empty() bool {
	return len(q.References) < 2
}

// Transform returns the interpolated quantile of x. With fewer than two
// references x is returned unchanged. Repeated reference values map to the
// midpoint of their quantile range.
func (q QuantileCalibration) Transform(x float64) float64 {
	refs := q.References
	n := len(refs)
	if n < 2 {
		return x
	}
	if x <= refs[0] {
		return 0
	}
	if x >= refs[n-1] {
		return 1
	}

	lo := sort.SearchFloat64s(refs, x)
	hi := sort.Search(n, func(i int) bool { return refs[i] > x }) - 1
	span := float64(n - 1)
	if lo <= hi {
		return float64(lo+hi) / 2 / span
	}

	// refs[hi] < x < refs[lo]
	pos := float64(hi) + (x-refs[hi])/(refs[lo]-refs[hi])
	return pos / span
}

// CalibrationStore manages calibration files by model name
type CalibrationStore struct {
	dataDir string
}

// NewCalibrationStore creates a new calibration store
func NewCalibrationStore(dataDir string) *CalibrationStore {
	return &CalibrationStore{dataDir: dataDir}
}

// LoadCalibration loads the calibration for a model. A missing file yields an
// empty calibration, which leaves predictions untransformed.
func (c *CalibrationStore) LoadCalibration(model string) (QuantileCalibration, error) {
	filePath := filepath.Join(c.dataDir, fmt.Sprintf("%s.json", model))

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return QuantileCalibration{}, nil
	}
	if err != nil {
		return QuantileCalibration{}, fmt.Errorf("failed to open calibration file: %w", err)
	}
	defer file.Close()

	var data QuantileCalibration
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		return QuantileCalibration{}, fmt.Errorf("failed to decode calibration data: %w", err)
	}

	return NewQuantileCalibration(data.References), nil
}

// SaveCalibration saves the calibration for a model
func (c *CalibrationStore) SaveCalibration(model string, data QuantileCalibration) error {
	if err := os.MkdirAll(c.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create calibration directory: %w", err)
	}

	filePath := filepath.Join(c.dataDir, fmt.Sprintf("%s.json", model))
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create calibration file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(NewQuantileCalibration(data.References)); err != nil {
		return fmt.Errorf("failed to encode calibration data: %w", err)
	}

	return nil
}
