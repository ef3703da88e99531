// Package vad defines the voice-activity-detection capability contract and
// a dependency-free default implementation.
package vad

import (
	"errors"
	"math"
)

// ErrWrongSampleRate names a window at a sample rate the capability was not
// configured for. Process takes no sample rate, and neither EnergyVAD nor
// SileroVAD returns this error.
var ErrWrongSampleRate = errors.New("vad: unexpected sample rate")

// Capability is the black-box VAD model contract VoiceSegmenter wraps. It
// consumes a fixed-size PCM window (512 samples at 16kHz, ~32ms, per the
// segmenter contract) and reports a per-window speech decision.
type Capability interface {
	// Process scores exactly one window of float32 PCM samples in [-1, 1].
	Process(window []float32) (isSpeech bool, confidence float64, err error)

	// Reset clears any recurrent/hidden state. Called whenever a
	// participant's phase leaves active, or a fresh utterance boundary is
	// forced.
	Reset()

	// Close releases native resources, if any. Safe to call multiple times.
	Close() error
}

// EnergyVAD is a lightweight RMS-threshold detector with onset hysteresis,
// adapted from a free-running RMS voice-activity detector into the fixed
// 512-sample window contract this capability interface requires. It has no
// external dependency and is the default when no model-backed adapter
// (e.g. the Silero ONNX adapter) is configured.
type EnergyVAD struct {
	threshold    float64
	minConfirmed int

	consecutiveFrames int
	lastConfidence    float64
}

// NewEnergyVAD builds an EnergyVAD with the given RMS threshold. minConfirmed
// defaults to 1 (no onset hysteresis); use SetMinConfirmed to require a run
// of consecutive above-threshold windows before reporting speech, which
// filters out single-window spikes and echo onset pops.
func NewEnergyVAD(threshold float64) *EnergyVAD {
	return &EnergyVAD{threshold: threshold, minConfirmed: 1}
}

// SetMinConfirmed sets the number of consecutive above-threshold windows
// required before Process reports speech.
func (v *EnergyVAD) SetMinConfirmed(n int) {
	if n < 1 {
		n = 1
	}
	v.minConfirmed = n
}

// SetThreshold updates the RMS threshold.
func (v *EnergyVAD) SetThreshold(t float64) { v.threshold = t }

func (v *EnergyVAD) Process(window []float32) (bool, float64, error) {
	rms := calculateRMS(window)
	v.lastConfidence = rms

	if rms > v.threshold {
		v.consecutiveFrames++
		if v.consecutiveFrames >= v.minConfirmed {
			return true, rms, nil
		}
		return false, rms, nil
	}

	v.consecutiveFrames = 0
	return false, rms, nil
}

func (v *EnergyVAD) Reset() {
	v.consecutiveFrames = 0
	v.lastConfidence = 0
}

func (v *EnergyVAD) Close() error { return nil }

// Clone returns an independent EnergyVAD with the same configuration but no
// shared state, for per-participant instantiation from a shared template.
func (v *EnergyVAD) Clone() Capability {
	return &EnergyVAD{threshold: v.threshold, minConfirmed: v.minConfirmed}
}

func calculateRMS(window []float32) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, s := range window {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(window)))
}
