// Package pipeline moves a participant's accumulated speech through ASR,
// MT, and TTS without ever blocking the audio ingest path.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lokutor-ai/babelroom/pkg/audio"
	"github.com/lokutor-ai/babelroom/pkg/config"
	"github.com/lokutor-ai/babelroom/pkg/logging"
	"github.com/lokutor-ai/babelroom/pkg/providers/asr"
	"github.com/lokutor-ai/babelroom/pkg/providers/mt"
	"github.com/lokutor-ai/babelroom/pkg/providers/tts"
	"github.com/lokutor-ai/babelroom/pkg/segmenter"
)

// Callbacks receives pipeline output. Every callback may be called from a
// worker goroutine; implementations must not block.
type Callbacks struct {
	OnPartial func(PartialResult)
	OnFinal   func(Result)
	OnError   func(kind string, err error)
}

// ErrKindCapabilityTimeout is the only error kind StagePipeline surfaces to
// Callbacks.OnError: every ASR/MT/TTS failure mid-utterance, whether the
// stage's own context deadline fired or the capability returned an error
// for some other reason, gets the same recoverable treatment (§7 —
// utterance dropped, session continues, partner not notified), so both
// cases share the taxonomy's capability_timeout kind rather than the
// pipeline minting a kind of its own.
const ErrKindCapabilityTimeout = "capability_timeout"

// Params configures one participant's direction: source/target language and
// whether synthesized audio should be produced for the recipient.
type Params struct {
	ParticipantID  string
	SourceLanguage string // "" means auto-detect; the detected language is used per utterance, not stored here
	TargetLanguage string // "" disables translation
	TTSEnabled     bool
	Voice          string
}

// StagePipeline accumulates one participant's speech and drives it through
// ASR -> MT -> TTS per utterance, honoring the never-block-ingest (R1),
// at-most-one-partial (R2), and generation-gated-delivery (R3) rules.
type StagePipeline struct {
	params    Params
	asrP      asr.Provider
	mtP       mt.Provider
	ttsP      tts.Provider
	pool      *WorkerPool
	cfg       config.Config
	callbacks Callbacks
	logger    logging.Logger

	mu              sync.Mutex
	generation      int
	pcm             []float32
	speakingSince   time.Time
	partialInFlight bool
	partialCancel   context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a StagePipeline for one participant direction. ttsP may be nil
// when TTSEnabled is false for this direction; mtP may be nil when no
// translation is configured.
func New(ctx context.Context, params Params, asrP asr.Provider, mtP mt.Provider, ttsP tts.Provider, pool *WorkerPool, cfg config.Config, callbacks Callbacks, logger logging.Logger) *StagePipeline {
	pctx, cancel := context.WithCancel(ctx)
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &StagePipeline{
		params:    params,
		asrP:      asrP,
		mtP:       mtP,
		ttsP:      ttsP,
		pool:      pool,
		cfg:       cfg,
		callbacks: callbacks,
		logger:    logger,
		ctx:       pctx,
		cancel:    cancel,
	}
}

// Feed appends newly decoded PCM to the current utterance buffer and, once
// the participant has been speaking for at least PartialMinDuration with no
// partial already in flight, submits a partial ASR job (R1/R2). Callers
// must only call Feed while the segmenter reports the speaking state; it
// does not check that itself.
func (p *StagePipeline) Feed(pcm []float32) {
	p.mu.Lock()
	p.pcm = append(p.pcm, pcm...)
	speakingSince := p.speakingSince
	alreadyInFlight := p.partialInFlight
	generation := p.generation
	snapshot := make([]float32, len(p.pcm))
	copy(snapshot, p.pcm)
	p.mu.Unlock()

	if speakingSince.IsZero() || alreadyInFlight {
		return
	}
	if time.Since(speakingSince) < p.cfg.PartialMinDuration {
		return
	}

	p.mu.Lock()
	if p.partialInFlight {
		p.mu.Unlock()
		return
	}
	p.partialInFlight = true
	partialCtx, partialCancel := context.WithTimeout(p.ctx, p.cfg.ASRTimeout)
	p.partialCancel = partialCancel
	p.mu.Unlock()

	p.pool.Go(func() {
		defer partialCancel()
		defer func() {
			p.mu.Lock()
			p.partialInFlight = false
			p.partialCancel = nil
			p.mu.Unlock()
		}()
		p.runPartial(partialCtx, generation, snapshot)
	})
}

func (p *StagePipeline) runPartial(ctx context.Context, generation int, pcm []float32) {
	result, err := p.asrP.Transcribe(ctx, audio.Float32ToPCM16(pcm), 16000, p.params.SourceLanguage)
	if err != nil {
		if ctx.Err() == nil {
			p.reportError(ctx, err)
		}
		return
	}

	p.mu.Lock()
	stale := generation != p.generation
	p.mu.Unlock()
	if stale {
		return
	}

	partial := PartialResult{Generation: generation, Text: result.Text, Language: result.Language}

	if p.cfg.PartialTranslation && p.mtP != nil && p.params.TargetLanguage != "" && result.Text != "" {
		translation, err := p.mtP.Translate(ctx, result.Text, result.Language, p.params.TargetLanguage)
		if err == nil {
			p.mu.Lock()
			stale := generation != p.generation
			p.mu.Unlock()
			if stale {
				return
			}
			partial.Translation = translation
		}
	}

	if p.callbacks.OnPartial != nil {
		p.callbacks.OnPartial(partial)
	}
}

// SpeechStart begins a new utterance: bumps the generation id, clears the
// PCM accumulator, and starts the speaking-duration clock the partial
// threshold is measured against.
func (p *StagePipeline) SpeechStart() {
	p.mu.Lock()
	p.generation++
	p.pcm = p.pcm[:0]
	p.speakingSince = time.Now()
	p.mu.Unlock()
}

// SpeechEnd finalizes the current utterance (R3): increments the
// generation so any still-running partial is recognized as stale, cancels
// an outstanding partial job, and submits the final ASR -> MT -> TTS chain
// over the frozen PCM.
func (p *StagePipeline) SpeechEnd(durationMS int64) {
	p.mu.Lock()
	pcm := make([]float32, len(p.pcm))
	copy(pcm, p.pcm)
	p.pcm = p.pcm[:0]
	generation := p.generation
	p.generation++ // invalidate any in-flight partial for this utterance
	startedAt := p.speakingSince
	p.speakingSince = time.Time{}
	partialCancel := p.partialCancel
	p.mu.Unlock()

	if partialCancel != nil {
		partialCancel()
	}

	if len(pcm) == 0 {
		return
	}

	finalGeneration := generation
	p.pool.Go(func() {
		ctx, cancel := context.WithTimeout(p.ctx, p.cfg.ASRTimeout)
		defer cancel()
		p.runFinal(ctx, finalGeneration, pcm, startedAt, durationMS)
	})
}

// CurrentGeneration reports the pipeline's current generation counter. No
// other package in this module calls it.
func (p *StagePipeline) CurrentGeneration() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

func (p *StagePipeline) runFinal(ctx context.Context, generation int, pcm []float32, startedAt time.Time, durationMS int64) {
	transcribed, err := p.asrP.Transcribe(ctx, audio.Float32ToPCM16(pcm), 16000, p.params.SourceLanguage)
	if err != nil {
		if ctx.Err() == nil {
			p.reportError(ctx, err)
		}
		return
	}

	utterance := Utterance{
		Generation:       generation,
		ParticipantID:    p.params.ParticipantID,
		StartTime:        startedAt,
		DetectedLanguage: transcribed.Language,
		FinalText:        transcribed.Text,
		TargetLanguage:   p.params.TargetLanguage,
		DurationMS:       durationMS,
	}

	sourceLanguage := transcribed.Language
	if sourceLanguage == "" {
		sourceLanguage = p.params.SourceLanguage
	}

	if p.mtP != nil && p.params.TargetLanguage != "" && sourceLanguage != p.params.TargetLanguage && transcribed.Text != "" {
		mtCtx, mtCancel := context.WithTimeout(ctx, p.cfg.MTTimeout)
		translation, err := p.mtP.Translate(mtCtx, transcribed.Text, sourceLanguage, p.params.TargetLanguage)
		mtCancel()
		if err != nil {
			if mtCtx.Err() == nil {
				p.reportError(mtCtx, err)
			}
		} else {
			utterance.Translation = translation
		}
	}

	result := Result{Utterance: utterance}

	textForSpeech := utterance.Translation
	if textForSpeech == "" {
		textForSpeech = utterance.FinalText
	}

	if p.params.TTSEnabled && p.ttsP != nil && textForSpeech != "" {
		ttsCtx, ttsCancel := context.WithTimeout(ctx, p.cfg.TTSTimeout)
		audioBytes, sampleRate, err := p.ttsP.Synthesize(ttsCtx, textForSpeech, p.params.Voice, p.params.TargetLanguage)
		ttsCancel()
		if err != nil {
			if ttsCtx.Err() == nil {
				p.reportError(ttsCtx, err)
			}
		} else {
			result.Audio = audio.NewWavBuffer(audioBytes, sampleRate)
			result.SampleRate = sampleRate
			result.MicLockDuration = computeMicLockDuration(audioBytes, sampleRate, p.cfg)
		}
	}

	if p.callbacks.OnFinal != nil {
		p.callbacks.OnFinal(result)
	}
}

// computeMicLockDuration derives the echo-suppression directive's duration
// hint from the synthesized audio's play length plus a fixed margin,
// clamped to the configured bounds.
func computeMicLockDuration(pcm16 []byte, sampleRate int, cfg config.Config) time.Duration {
	if sampleRate <= 0 || len(pcm16) == 0 {
		return 0
	}
	samples := len(pcm16) / 2 // 16-bit mono
	playLength := time.Duration(samples) * time.Second / time.Duration(sampleRate)
	d := playLength + cfg.MicLockMargin
	if d < cfg.MicLockMin {
		d = cfg.MicLockMin
	}
	if d > cfg.MicLockMax {
		d = cfg.MicLockMax
	}
	return d
}

func (p *StagePipeline) reportError(ctx context.Context, err error) {
	if p.callbacks.OnError == nil {
		return
	}
	p.callbacks.OnError(ErrKindCapabilityTimeout, fmt.Errorf("pipeline: %w", err))
}

// HandleSegmentEvent drives the utterance lifecycle from a VoiceSegmenter
// event: speech_start opens a new utterance, speech_end closes it.
func (p *StagePipeline) HandleSegmentEvent(ev segmenter.Event) {
	switch ev.Type {
	case segmenter.EventSpeechStart:
		p.SpeechStart()
	case segmenter.EventSpeechEnd:
		p.SpeechEnd(ev.DurationMS)
	}
}

// Reset discards any buffered PCM and in-flight partial state without
// closing the pipeline, used when a participant mutes.
func (p *StagePipeline) Reset() {
	p.mu.Lock()
	p.pcm = p.pcm[:0]
	p.speakingSince = time.Time{}
	p.generation++
	partialCancel := p.partialCancel
	p.partialCancel = nil
	p.mu.Unlock()
	if partialCancel != nil {
		partialCancel()
	}
}

// Close cancels any outstanding work owned by this pipeline.
func (p *StagePipeline) Close() {
	p.cancel()
}
