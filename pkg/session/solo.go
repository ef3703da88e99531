package session

import (
	"context"

	"github.com/lokutor-ai/babelroom/pkg/config"
	"github.com/lokutor-ai/babelroom/pkg/pipeline"
	"github.com/lokutor-ai/babelroom/pkg/providers/asr"
	"github.com/lokutor-ai/babelroom/pkg/providers/mt"
	"github.com/lokutor-ai/babelroom/pkg/providers/tts"
	"github.com/lokutor-ai/babelroom/pkg/vad"
	"github.com/lokutor-ai/babelroom/pkg/wire"
)

// SoloSession is a single Participant pipeline with no partner: transcripts
// and optional synthesized audio are emitted back to the same connection
// that sent the audio, with no mic-lock/echo-suppression directives.
type SoloSession struct {
	participant    *Participant
	sender         Sender
	targetLanguage string
}

// NewSoloSession builds a solo pipeline for one connection. sourceLanguage
// may be "" (auto-detect); targetLanguage may be "" (no translation);
// ttsEnabled gates whether synthesized audio is produced.
func NewSoloSession(ctx context.Context, sender Sender, sourceLanguage, targetLanguage string, ttsEnabled bool, voice string,
	asrP asr.Provider, mtP mt.Provider, ttsP tts.Provider, vadCap vad.Capability, pool *pipeline.WorkerPool, cfg config.Config) (*SoloSession, error) {

	s := &SoloSession{sender: sender, targetLanguage: targetLanguage}

	if !ttsEnabled {
		ttsP = nil
	}

	pipe := pipeline.New(ctx, pipeline.Params{
		ParticipantID:  "solo",
		SourceLanguage: sourceLanguage,
		TargetLanguage: targetLanguage,
		TTSEnabled:     ttsEnabled,
		Voice:          voice,
	}, asrP, mtP, ttsP, pool, cfg, pipeline.Callbacks{
		OnPartial: s.handlePartial,
		OnFinal:   s.handleFinal,
		OnError:   s.handleError,
	}, nil)

	participant, err := NewParticipant("solo", "", RoleSolo, sourceLanguage, cfg.SilenceWindow, vadCap, pipe, cfg.DumpAudioDir, "")
	if err != nil {
		return nil, err
	}
	s.participant = participant
	return s, nil
}

// Feed decodes and processes newly received encoded audio.
func (s *SoloSession) Feed(encoded []byte) error {
	return s.participant.Feed(encoded)
}

// Close releases pipeline resources.
func (s *SoloSession) Close() {
	s.participant.Close()
}

func (s *SoloSession) handlePartial(pr pipeline.PartialResult) {
	s.sender.SendMessage(wire.Message{
		Type:           wire.TypeTranscriptPartial,
		Speaker:        wire.SpeakerSelf,
		Text:           pr.Text,
		Language:       pr.Language,
		Translation:    pr.Translation,
		TargetLanguage: s.targetLanguage,
	})
}

func (s *SoloSession) handleFinal(r pipeline.Result) {
	s.sender.SendMessage(wire.Message{
		Type:           wire.TypeTranscript,
		Speaker:        wire.SpeakerSelf,
		Text:           r.Utterance.FinalText,
		Language:       r.Utterance.DetectedLanguage,
		Translation:    r.Utterance.Translation,
		TargetLanguage: r.Utterance.TargetLanguage,
		DurationMS:     r.Utterance.DurationMS,
		HasTTSAudio:    len(r.Audio) > 0,
	})
	if len(r.Audio) > 0 {
		s.sender.SendAudio(r.Audio)
	}
}

func (s *SoloSession) handleError(kind string, err error) {
	s.sender.SendMessage(wire.Message{
		Type:         wire.TypeError,
		ErrorKind:    kind,
		ErrorMessage: err.Error(),
	})
}
