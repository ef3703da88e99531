//go:build silero

package vad

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// sileroWindowSize matches the VoiceSegmenter contract exactly: Silero
	// VAD v5 at 16kHz requires 512 samples (32ms) per inference call.
	sileroWindowSize = 512
	sileroStateSize  = 128

	// ExpectedSampleRate is the only sample rate Silero v5 accepts.
	ExpectedSampleRate = 16000
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// SileroVAD runs Silero VAD v5 inference via ONNX Runtime, one window per
// Process call (the caller, VoiceSegmenter, already guarantees fixed-size
// 512-sample windows, so there is no internal buffering here).
type SileroVAD struct {
	session *ort.AdvancedSession

	inputTensor  *ort.Tensor[float32] // [1, 512]
	stateTensor  *ort.Tensor[float32] // [2, 1, 128]
	srTensor     *ort.Tensor[int64]   // scalar
	outputTensor *ort.Tensor[float32] // [1, 1]
	stateNTensor *ort.Tensor[float32] // [2, 1, 128]

	threshold float64
}

// NewSileroVAD initializes ONNX Runtime (once per process) and loads the
// embedded Silero model, allocating the fixed input/output tensors reused
// across every Process call.
func NewSileroVAD(libPath string, modelData []byte, threshold float64) (*SileroVAD, error) {
	if len(modelData) == 0 {
		return nil, fmt.Errorf("vad: silero model data is empty")
	}

	ortInitOnce.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("vad: %w", ortInitErr)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, sileroWindowSize))
	if err != nil {
		return nil, fmt.Errorf("vad: create input tensor: %w", err)
	}
	stateTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("vad: create state tensor: %w", err)
	}
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(ExpectedSampleRate)})
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, fmt.Errorf("vad: create sr tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		return nil, fmt.Errorf("vad: create output tensor: %w", err)
	}
	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("vad: create stateN tensor: %w", err)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(
		modelData,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inputTensor, stateTensor, srTensor},
		[]ort.Value{outputTensor, stateNTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		stateNTensor.Destroy()
		return nil, fmt.Errorf("vad: create session: %w", err)
	}

	return &SileroVAD{
		session:      session,
		inputTensor:  inputTensor,
		stateTensor:  stateTensor,
		srTensor:     srTensor,
		outputTensor: outputTensor,
		stateNTensor: stateNTensor,
		threshold:    threshold,
	}, nil
}

// Process runs one Silero inference over exactly 512 float32 samples.
func (s *SileroVAD) Process(window []float32) (bool, float64, error) {
	if len(window) != sileroWindowSize {
		return false, 0, fmt.Errorf("vad: silero requires exactly %d samples, got %d", sileroWindowSize, len(window))
	}

	copy(s.inputTensor.GetData(), window)

	if err := s.session.Run(); err != nil {
		return false, 0, fmt.Errorf("vad: inference: %w", err)
	}

	prob := float64(s.outputTensor.GetData()[0])
	copy(s.stateTensor.GetData(), s.stateNTensor.GetData())

	return prob >= s.threshold, prob, nil
}

// SetThreshold updates the speech-probability threshold.
func (s *SileroVAD) SetThreshold(threshold float64) { s.threshold = threshold }

func (s *SileroVAD) Reset() {
	clearFloat32(s.stateTensor.GetData())
}

func (s *SileroVAD) Close() error {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.stateTensor != nil {
		s.stateTensor.Destroy()
		s.stateTensor = nil
	}
	if s.srTensor != nil {
		s.srTensor.Destroy()
		s.srTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	if s.stateNTensor != nil {
		s.stateNTensor.Destroy()
		s.stateNTensor = nil
	}
	return nil
}

func clearFloat32(s []float32) {
	for i := range s {
		s[i] = 0
	}
}
