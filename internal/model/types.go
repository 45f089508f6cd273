package model

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Metadata struct {
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`

	digits []int
}

type Prediction struct {
	Digit         int       `json:"digit"`
	Confidence    float32   `json:"confidence"`
	Probabilities []float32 `json:"probabilities"`
}

type PredictionResponse struct {
	Digit int `json:"digit"`
}

// LoadError reports a model artifact or metadata file that is missing,
// unreadable or inconsistent.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ReadMetadata parses the JSON sidecar at path and fills in defaults.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("parse metadata: %w", err)}
	}
	if err := meta.normalize(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return &meta, nil
}

func (m *Metadata) normalize() error {
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if m.ImageSize == 0 {
		m.ImageSize = 28
	}
	if m.ImageSize < 0 {
		return fmt.Errorf("invalid image_size %d", m.ImageSize)
	}
	if len(m.Classes) == 0 {
		m.Classes = []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}
	}
	if len(m.InputShape) == 0 {
		m.InputShape = []int64{1, int64(m.ImageSize), int64(m.ImageSize), 1}
	}
	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, int64(len(m.Classes))}
	}

	if got, want := shapeSize(m.InputShape), int64(m.ImageSize*m.ImageSize); got != want {
		return fmt.Errorf("input_shape %v holds %d values, image_size %d needs %d", m.InputShape, got, m.ImageSize, want)
	}
	if got := shapeSize(m.OutputShape); got < int64(len(m.Classes)) {
		return fmt.Errorf("output_shape %v smaller than %d classes", m.OutputShape, len(m.Classes))
	}

	m.digits = make([]int, len(m.Classes))
	for i, class := range m.Classes {
		d, err := strconv.Atoi(class)
		if err != nil || d < 0 || d > 9 {
			return fmt.Errorf("class %q is not a digit", class)
		}
		m.digits[i] = d
	}
	return nil
}

// Digit maps an output index to its digit label.
func (m *Metadata) Digit(idx int) int {
	return m.digits[idx]
}

func shapeSize(shape []int64) int64 {
	n := int64(1)
	for _, dim := range shape {
		if dim <= 0 {
			return -1
		}
		n *= dim
	}
	return n
}

// ArgMax returns the index of the largest value. Ties resolve to the lowest
// index. It returns -1 for an empty slice.
func ArgMax(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
