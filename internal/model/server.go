package model

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// Server holds a digit classifier loaded once at startup. The session is
// never mutated after NewServer returns; every Predict allocates its own
// tensors, so a Server is safe for concurrent use.
//
// The ONNX Runtime environment must be initialised before NewServer and
// destroyed after Close.
type Server struct {
	session  *ort.DynamicAdvancedSession
	Metadata *Metadata
}

func NewServer(modelPath, metadataPath string) (*Server, error) {
	metadata, err := ReadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(modelPath); err != nil {
		return nil, &LoadError{Path: modelPath, Err: err}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName}, nil)
	if err != nil {
		return nil, &LoadError{Path: modelPath, Err: fmt.Errorf("create ONNX session: %w", err)}
	}

	log.WithFields(log.Fields{
		"model":        modelPath,
		"input_shape":  metadata.InputShape,
		"output_shape": metadata.OutputShape,
	}).Debug("model session created")

	return &Server{
		session:  session,
		Metadata: metadata,
	}, nil
}

func (s *Server) InputSize() int {
	return s.Metadata.ImageSize
}

func (s *Server) Predict(inputData []float32) (*Prediction, error) {
	if want := s.Metadata.ImageSize * s.Metadata.ImageSize; len(inputData) != want {
		return nil, fmt.Errorf("expected %d input values, got %d", want, len(inputData))
	}

	// NewTensor keeps a reference to the slice it is given.
	data := make([]float32, len(inputData))
	copy(data, inputData)

	inputTensor, err := ort.NewTensor(ort.NewShape(s.Metadata.InputShape...), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(s.Metadata.OutputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := s.session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return s.Metadata.decode(outputTensor.GetData())
}

// decode picks the arg-max over the class scores.
func (m *Metadata) decode(output []float32) (*Prediction, error) {
	if len(output) < len(m.Classes) {
		return nil, fmt.Errorf("model produced %d scores for %d classes", len(output), len(m.Classes))
	}
	probs := make([]float32, len(m.Classes))
	copy(probs, output)

	idx := ArgMax(probs)
	return &Prediction{
		Digit:         m.Digit(idx),
		Confidence:    probs[idx],
		Probabilities: probs,
	}, nil
}

func (s *Server) Close() {
	if s.session != nil {
		s.session.Destroy()
	}
}
