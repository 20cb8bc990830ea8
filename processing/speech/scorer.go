package speech

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Scorer maps one normalized spectrogram to a score vector.
type Scorer interface {
	Predict(features []float32) ([]float32, error)
	Close() error
}

const (
	scorerInputName  = "input"
	scorerOutputName = "output"
)

// onnxScorer runs a speech-commands model exported to ONNX with input
// [1, frames, freq, 1] and output [1, labels].
type onnxScorer struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func NewONNXScorer(modelPath string, frames, freq, numLabels int) (Scorer, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(frames), int64(freq), 1))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(numLabels)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{scorerInputName},
		[]string{scorerOutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &onnxScorer{session: session, input: input, output: output}, nil
}

func (s *onnxScorer) Predict(features []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dst := s.input.GetData()
	if len(features) != len(dst) {
		return nil, fmt.Errorf("feature length %d, model expects %d", len(features), len(dst))
	}
	copy(dst, features)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	scores := make([]float32, len(s.output.GetData()))
	copy(scores, s.output.GetData())
	return scores, nil
}

func (s *onnxScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.session != nil {
		err = s.session.Destroy()
		s.session = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	return err
}
