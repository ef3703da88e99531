// Package asr defines the transcription capability contract and its raw
// HTTP-backed adapters.
package asr

import "context"

// Result is what a transcription call returns: the recognized text and,
// where the provider reports it, the language it detected or was told to
// expect (the Utterance's detected_language field).
type Result struct {
	Text     string
	Language string
}

// Provider transcribes a PCM utterance. hintLanguage, when non-empty, tells
// providers that support it which language to bias decoding toward; it is
// not a guarantee the provider returns that exact code back in Result.
type Provider interface {
	Transcribe(ctx context.Context, pcm16 []byte, sampleRate int, hintLanguage string) (Result, error)
	Name() string
}
