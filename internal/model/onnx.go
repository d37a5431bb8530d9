package model

import (
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Only the first call has
// any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// onnxClassifier serves class probabilities from an exported classifier with
// one [batch, features] float input and a [batch, classes] probability output.
type onnxClassifier struct {
	session     *ort.DynamicAdvancedSession
	inputName   string
	outputName  string
	numFeatures int64
	numClasses  int64
}

func newONNXClassifier(cfg ONNXConfig, numFeatures, numClasses int) (*onnxClassifier, error) {
	libPath := cfg.LibraryPath
	if libPath == "" {
		libPath = filepath.Join(filepath.Dir(cfg.Path), "libonnxruntime.so")
	}
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: expected a single input tensor, got %d", len(inputs))
	}
	outputName, err := probabilityOutput(outputs, int64(numClasses))
	if err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(1)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(cfg.Path, []string{inputs[0].Name}, []string{outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &onnxClassifier{
		session:     session,
		inputName:   inputs[0].Name,
		outputName:  outputName,
		numFeatures: int64(numFeatures),
		numClasses:  int64(numClasses),
	}, nil
}

// probabilityOutput picks the 2D output whose last dimension matches the class count.
func probabilityOutput(outputs []ort.InputOutputInfo, classes int64) (string, error) {
	for _, o := range outputs {
		dims := o.Dimensions
		if len(dims) == 2 && (dims[1] == classes || dims[1] < 0) {
			return o.Name, nil
		}
	}
	return "", fmt.Errorf("onnx: no [batch, %d] probability output", classes)
}

func (s *onnxClassifier) predictProba(x []float64) ([]float64, error) {
	if int64(len(x)) != s.numFeatures {
		return nil, fmt.Errorf("onnx: got %d features, model expects %d", len(x), s.numFeatures)
	}
	in := make([]float32, len(x))
	for i, v := range x {
		in[i] = float32(v)
	}

	tIn, err := ort.NewTensor(ort.NewShape(1, s.numFeatures), in)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer tIn.Destroy()

	tOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, s.numClasses))
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer tOut.Destroy()

	if err := s.session.Run([]ort.Value{tIn}, []ort.Value{tOut}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	// Copy data out before tensor is destroyed.
	src := tOut.GetData()
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}
	return out, nil
}

func (s *onnxClassifier) close() error {
	return s.session.Destroy()
}
