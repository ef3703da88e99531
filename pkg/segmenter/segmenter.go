// Package segmenter wraps a VAD capability and turns per-window speech
// probabilities into speech_start/speech_end events via a silence-duration
// state machine.
package segmenter

import (
	"fmt"
	"time"

	"github.com/lokutor-ai/babelroom/pkg/vad"
)

// Window is the fixed number of 16kHz samples the segmenter consumes per
// update call (~32ms).
const Window = 512

const windowDuration = 32 * time.Millisecond

// EventType discriminates the at-most-one-per-call segmenter event.
type EventType int

const (
	EventNone EventType = iota
	EventSpeechStart
	EventSpeechEnd
)

// Event is returned by Update; DurationMS is only meaningful for
// EventSpeechEnd and carries the cumulative speech duration of the
// utterance that just ended.
type Event struct {
	Type       EventType
	DurationMS int64
}

type state int

const (
	stateIdle state = iota
	stateSpeaking
)

// Segmenter implements the idle/speaking state machine described by the
// silence-duration hangover: ~500ms of consecutive non-speech windows ends
// an utterance.
type Segmenter struct {
	capability vad.Capability

	silenceWindow time.Duration
	silentLimit   int // ceil(silenceWindow / windowDuration)

	st            state
	silentWindows int
	speechWindows int // windows counted as speaking, for DurationMS
}

// New builds a Segmenter over the given VAD capability. silenceWindow is
// the hangover duration (500ms default, per the component design); it is
// converted to a window count by ceiling division.
func New(capability vad.Capability, silenceWindow time.Duration) *Segmenter {
	limit := int(silenceWindow / windowDuration)
	if silenceWindow%windowDuration != 0 {
		limit++
	}
	if limit < 1 {
		limit = 1
	}
	return &Segmenter{capability: capability, silenceWindow: silenceWindow, silentLimit: limit}
}

// Update consumes exactly Window samples and returns at most one event.
// Callers are responsible for chunking PCM into strict windows of Window
// samples; any carry buffer belongs to the caller (the decoder's tail-delta
// output rarely aligns to 512 samples on its own).
func (s *Segmenter) Update(pcmWindow []float32) (Event, error) {
	if len(pcmWindow) != Window {
		return Event{}, fmt.Errorf("segmenter: expected %d samples, got %d", Window, len(pcmWindow))
	}

	isSpeech, _, err := s.capability.Process(pcmWindow)
	if err != nil {
		return Event{}, fmt.Errorf("segmenter: vad process: %w", err)
	}

	switch s.st {
	case stateIdle:
		if isSpeech {
			s.st = stateSpeaking
			s.silentWindows = 0
			s.speechWindows = 1
			return Event{Type: EventSpeechStart}, nil
		}
		return Event{Type: EventNone}, nil

	case stateSpeaking:
		if isSpeech {
			s.silentWindows = 0
			s.speechWindows++
			return Event{Type: EventNone}, nil
		}
		s.silentWindows++
		s.speechWindows++
		if s.silentWindows >= s.silentLimit {
			durationMS := int64(s.speechWindows) * windowDuration.Milliseconds()
			s.st = stateIdle
			s.silentWindows = 0
			s.speechWindows = 0
			return Event{Type: EventSpeechEnd, DurationMS: durationMS}, nil
		}
		return Event{Type: EventNone}, nil
	}

	return Event{Type: EventNone}, nil
}

// Reset returns the segmenter to idle and resets the wrapped VAD capability's
// recurrent state. Called whenever a participant's phase leaves active.
func (s *Segmenter) Reset() {
	s.st = stateIdle
	s.silentWindows = 0
	s.speechWindows = 0
	s.capability.Reset()
}

// IsSpeaking reports the current state machine state.
func (s *Segmenter) IsSpeaking() bool {
	return s.st == stateSpeaking
}
