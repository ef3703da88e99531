// Package tts defines the speech-synthesis capability contract and its
// streaming adapter over the Lokutor voice service.
package tts

import "context"

// Provider synthesizes text into audio for a given voice/language pair.
// SampleRate is the synthesized audio's native rate (WAV, PCM16 mono);
// callers wrap it for transport rather than assuming a fixed rate.
type Provider interface {
	Synthesize(ctx context.Context, text, voice, language string) (audio []byte, sampleRate int, err error)
	Name() string
	Close() error
}

// StreamingProvider additionally supports pushing synthesized audio chunks
// to a callback as they arrive, instead of buffering the whole utterance.
type StreamingProvider interface {
	Provider
	StreamSynthesize(ctx context.Context, text, voice, language string, onChunk func([]byte) error) (sampleRate int, err error)
}
