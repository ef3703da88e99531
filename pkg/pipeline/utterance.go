package pipeline

import "time"

// Utterance is a maximal contiguous span of speech bracketed by
// speech_start/speech_end, identified by the generation id assigned at
// speech_start.
type Utterance struct {
	Generation       int
	ParticipantID    string
	StartTime        time.Time
	DetectedLanguage string
	FinalText        string
	Translation      string
	TargetLanguage   string
	DurationMS       int64
}

// Result is what a completed final-stage pipeline run hands back to the
// caller: the utterance record plus any synthesized audio.
type Result struct {
	Utterance  Utterance
	Audio      []byte
	SampleRate int
	// MicLockDuration is the computed hint for the companion directive; zero
	// when TTS wasn't run (no audio to guard against echo of).
	MicLockDuration time.Duration
}

// PartialResult is an interim ASR result, generation-tagged so the caller
// can discard one that arrives after its utterance already ended.
type PartialResult struct {
	Generation  int
	Text        string
	Language    string
	Translation string
}
