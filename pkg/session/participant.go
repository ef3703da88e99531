// Package session binds the AudioDecoder, VoiceSegmenter, and StagePipeline
// for one or two participants into SoloSession and RoomSession, the two
// connection-facing session shapes the wire endpoint drives.
package session

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lokutor-ai/babelroom/pkg/audio"
	"github.com/lokutor-ai/babelroom/pkg/pipeline"
	"github.com/lokutor-ai/babelroom/pkg/segmenter"
	"github.com/lokutor-ai/babelroom/pkg/vad"
	"github.com/lokutor-ai/babelroom/pkg/wire"
)

// Sender delivers outbound frames to one connection. Implementations must
// serialize writes themselves (the wire endpoint's write pump owns this);
// Sender methods may be called concurrently from pipeline worker goroutines.
type Sender interface {
	SendMessage(msg wire.Message) error
	SendAudio(payload []byte) error
	Close() error
}

// Role distinguishes the room participant who holds START/END authority.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
	RoleSolo  Role = "solo"
)

// Participant owns one connection's decode -> segment -> pipeline chain.
// Per §5's shared-resource policy, its audio state (decoder, segmenter, PCM
// accumulation inside the pipeline) is only ever touched by the goroutine
// that calls Feed for this participant; Mute/Unmute/Close are the only
// methods safe to call from elsewhere, and they only flip a guarded flag.
type Participant struct {
	ID          string
	DisplayName string
	Role        Role
	Language    string

	decoder *audio.AudioDecoder
	seg     *segmenter.Segmenter
	pipe    *pipeline.StagePipeline
	carry   []float32

	// dumpPath, when non-empty, is where the full raw encoded stream this
	// participant sent is written on Close, per §6's optional diagnostic
	// container dump. rawAudio only accumulates when dumpPath is set.
	dumpPath string
	rawAudio []byte

	mu        sync.Mutex
	muted     bool
	lockUntil time.Time
}

// NewParticipant wires one participant's full audio chain: a fresh decoder,
// a segmenter over vadCap, and the already-constructed StagePipeline that
// drives ASR/MT/TTS for this direction. vadCap must be an independent
// instance (not shared with any other participant) since it carries
// recurrent state across windows. dumpDir, when non-empty, enables the
// optional on-close raw-audio dump, named by dumpName (falling back to id
// when dumpName is empty); pass dumpDir "" to disable it.
func NewParticipant(id, displayName string, role Role, language string, silenceWindow time.Duration, vadCap vad.Capability, pipe *pipeline.StagePipeline, dumpDir, dumpName string) (*Participant, error) {
	decoder, err := audio.NewAudioDecoder(1, nil)
	if err != nil {
		return nil, err
	}
	p := &Participant{
		ID:          id,
		DisplayName: displayName,
		Role:        role,
		Language:    language,
		decoder:     decoder,
		seg:         segmenter.New(vadCap, silenceWindow),
		pipe:        pipe,
	}
	if dumpDir != "" {
		if dumpName == "" {
			dumpName = id
		}
		p.dumpPath = filepath.Join(dumpDir, dumpName+".webm")
	}
	return p, nil
}

// Feed decodes newly received encoded audio bytes and drives them through
// the segmenter and pipeline in fixed segmenter.Window chunks. While muted
// or mic-locked, decoded PCM is discarded after decode so the decoder's
// container state stays in sync with the client's encoder without reaching
// the pipeline.
func (p *Participant) Feed(encoded []byte) error {
	if p.dumpPath != "" {
		p.rawAudio = append(p.rawAudio, encoded...)
	}

	pcm, err := p.decoder.Ingest(encoded)
	if err != nil {
		return err
	}
	if p.Muted() || p.MicLocked() {
		return nil
	}

	p.carry = append(p.carry, pcm...)
	for len(p.carry) >= segmenter.Window {
		window := p.carry[:segmenter.Window]
		p.carry = p.carry[segmenter.Window:]

		ev, err := p.seg.Update(window)
		if err != nil {
			continue
		}
		p.pipe.HandleSegmentEvent(ev)
		if p.seg.IsSpeaking() {
			p.pipe.Feed(window)
		}
	}
	return nil
}

// Muted reports the current mute state.
func (p *Participant) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// SetMuted toggles mute state. Muting resets the segmenter (and the VAD
// capability's recurrent state via Segmenter.Reset) and the pipeline's
// in-flight utterance, per the phase-leaves-active reset rule applied to a
// participant that stops contributing audio.
func (p *Participant) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()

	p.seg.Reset()
	p.carry = p.carry[:0]
	p.pipe.Reset()
}

// LockMicFor arms the echo-suppression window: encoded audio received from
// this participant over the next d is decoded (to keep container state in
// sync) but dropped before reaching the pipeline, per §4.3's server-side
// enforcement of the mic_locked directive it just sent this participant.
func (p *Participant) LockMicFor(d time.Duration) {
	p.mu.Lock()
	p.lockUntil = time.Now().Add(d)
	p.mu.Unlock()
}

// MicLocked reports whether this participant is still inside its
// echo-suppression window.
func (p *Participant) MicLocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Now().Before(p.lockUntil)
}

// ResetAudioState clears decode/segment/pipeline state, used whenever a
// room leaves the active phase.
func (p *Participant) ResetAudioState() {
	p.decoder.Reset()
	p.seg.Reset()
	p.carry = p.carry[:0]
	p.pipe.Reset()
}

// Close releases the participant's pipeline resources and, if a dump
// directory was configured, best-effort writes the accumulated raw encoded
// stream to disk. A write failure is not surfaced; the dump is a diagnostic
// convenience, never load-bearing for the session itself.
func (p *Participant) Close() {
	if p.dumpPath != "" && len(p.rawAudio) > 0 {
		_ = os.WriteFile(p.dumpPath, p.rawAudio, 0o644)
	}
	p.pipe.Close()
}
