package session

import (
	"context"
	"sync"
	"time"

	"github.com/lokutor-ai/babelroom/pkg/config"
	"github.com/lokutor-ai/babelroom/pkg/pipeline"
	"github.com/lokutor-ai/babelroom/pkg/providers/asr"
	"github.com/lokutor-ai/babelroom/pkg/providers/mt"
	"github.com/lokutor-ai/babelroom/pkg/providers/tts"
	"github.com/lokutor-ai/babelroom/pkg/vad"
	"github.com/lokutor-ai/babelroom/pkg/wire"
)

// Phase is the Room's SessionPhase.
type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseReady   Phase = "ready"
	PhaseActive  Phase = "active"
	PhaseEnded   Phase = "ended"
)

func (p Phase) status() wire.Status { return wire.Status(p) }

// VADFactory builds an independent VAD capability instance for one
// participant, since recurrent state cannot be shared across participants.
type VADFactory func() (vad.Capability, error)

// RoomSession binds two Participant pipelines under a shared SessionPhase.
// The Room struct's own mutex guards phase mutation, participant slot
// assignment, and broadcast; model calls never run under it (§5).
type RoomSession struct {
	mu sync.Mutex

	Code         string
	Phase        Phase
	HostLanguage string

	hostID, hostName string
	hostSender       Sender

	guestLanguage string
	guest         *Participant
	guestSender   Sender
	guestName     string

	host *Participant

	createdAt    time.Time
	lastActivity time.Time

	ctx        context.Context
	pool       *pipeline.WorkerPool
	cfg        config.Config
	asrP       asr.Provider
	mtP        mt.Provider
	ttsP       tts.Provider
	vadFactory VADFactory
}

// NewRoomSession creates a room in the `waiting` phase with only a host
// connected. languages must differ; the caller (RoomRegistry) is
// responsible for that check before calling this constructor.
func NewRoomSession(ctx context.Context, code, hostID, hostName, hostLanguage, guestLanguage string, hostSender Sender,
	asrP asr.Provider, mtP mt.Provider, ttsP tts.Provider, vadFactory VADFactory, pool *pipeline.WorkerPool, cfg config.Config) *RoomSession {

	now := time.Now()
	return &RoomSession{
		Code:          code,
		Phase:         PhaseWaiting,
		HostLanguage:  hostLanguage,
		hostID:        hostID,
		hostName:      hostName,
		hostSender:    hostSender,
		guestLanguage: guestLanguage,
		createdAt:     now,
		lastActivity:  now,
		ctx:           ctx,
		pool:          pool,
		cfg:           cfg,
		asrP:          asrP,
		mtP:           mtP,
		ttsP:          ttsP,
		vadFactory:    vadFactory,
	}
}

// Join attaches the guest connection, builds both participants' pipelines
// (now that both languages are known), and transitions waiting -> ready.
func (r *RoomSession) Join(guestID, guestName string, guestSender Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Phase != PhaseWaiting {
		if r.Phase == PhaseEnded {
			return ErrRoomNotFound
		}
		return ErrRoomFull
	}

	hostVAD, err := r.vadFactory()
	if err != nil {
		return err
	}
	guestVAD, err := r.vadFactory()
	if err != nil {
		return err
	}

	r.guestName = guestName
	r.guestSender = guestSender

	hostPipe := pipeline.New(r.ctx, pipeline.Params{
		ParticipantID:  r.hostID,
		SourceLanguage: r.HostLanguage,
		TargetLanguage: r.guestLanguage,
		TTSEnabled:     true,
		Voice:          r.guestLanguage,
	}, r.asrP, r.mtP, r.ttsP, r.pool, r.cfg, pipeline.Callbacks{
		OnPartial: func(pr pipeline.PartialResult) { r.routePartial(RoleHost, pr) },
		OnFinal:   func(res pipeline.Result) { r.routeFinal(RoleHost, res) },
		OnError:   func(kind string, err error) { r.routeError(RoleHost, kind, err) },
	}, nil)

	guestPipe := pipeline.New(r.ctx, pipeline.Params{
		ParticipantID:  guestID,
		SourceLanguage: r.guestLanguage,
		TargetLanguage: r.HostLanguage,
		TTSEnabled:     true,
		Voice:          r.HostLanguage,
	}, r.asrP, r.mtP, r.ttsP, r.pool, r.cfg, pipeline.Callbacks{
		OnPartial: func(pr pipeline.PartialResult) { r.routePartial(RoleGuest, pr) },
		OnFinal:   func(res pipeline.Result) { r.routeFinal(RoleGuest, res) },
		OnError:   func(kind string, err error) { r.routeError(RoleGuest, kind, err) },
	}, nil)

	host, err := NewParticipant(r.hostID, r.hostName, RoleHost, r.HostLanguage, r.cfg.SilenceWindow, hostVAD, hostPipe,
		r.cfg.DumpAudioDir, r.Code+"-host")
	if err != nil {
		return err
	}
	guest, err := NewParticipant(guestID, guestName, RoleGuest, r.guestLanguage, r.cfg.SilenceWindow, guestVAD, guestPipe,
		r.cfg.DumpAudioDir, r.Code+"-guest")
	if err != nil {
		host.Close()
		return err
	}

	r.host = host
	r.guest = guest
	r.lastActivity = time.Now()
	r.setPhase(PhaseReady)

	return nil
}

// Feed routes newly received encoded audio to the named participant's
// pipeline, but only while the room is in the `active` phase — the server
// does not trust client-side capture gating (§4.5 phase-driven capture
// control). Frames received outside `active` are dropped, not an error.
func (r *RoomSession) Feed(participantID string, encoded []byte) error {
	r.mu.Lock()
	active := r.Phase == PhaseActive
	p := r.participantByID(participantID)
	r.mu.Unlock()

	if !active || p == nil {
		return nil
	}
	r.touch()
	return p.Feed(encoded)
}

// HandleMarker dispatches a 4-byte BINARY control marker from participantID.
func (r *RoomSession) HandleMarker(participantID string, marker wire.Marker) {
	r.touch()
	switch marker {
	case wire.MarkerStart:
		r.start(participantID)
	case wire.MarkerEnd:
		r.end(participantID)
	case wire.MarkerMute:
		r.setMuted(participantID, true)
	case wire.MarkerUnmute:
		r.setMuted(participantID, false)
	}
}

func (r *RoomSession) start(participantID string) {
	r.mu.Lock()
	if participantID != r.hostID || r.Phase != PhaseReady {
		r.mu.Unlock()
		return
	}
	r.setPhase(PhaseActive)
	r.mu.Unlock()
}

func (r *RoomSession) end(participantID string) {
	r.mu.Lock()
	if participantID != r.hostID || r.Phase != PhaseActive {
		r.mu.Unlock()
		return
	}
	host, guest := r.host, r.guest
	r.setPhase(PhaseReady)
	r.mu.Unlock()

	// Mic capture stops client-side on leaving `active`; reset server-side
	// audio state so a resumed `active` phase starts from a clean segmenter.
	if host != nil {
		host.ResetAudioState()
	}
	if guest != nil {
		guest.ResetAudioState()
	}
}

func (r *RoomSession) setMuted(participantID string, muted bool) {
	r.mu.Lock()
	p := r.participantByID(participantID)
	partnerSender := r.partnerSenderOf(participantID)
	r.mu.Unlock()

	if p == nil {
		return
	}
	p.SetMuted(muted)

	if partnerSender == nil {
		return
	}
	msgType := wire.TypePartnerMuted
	if !muted {
		msgType = wire.TypePartnerUnmuted
	}
	partnerSender.SendMessage(wire.Message{Type: msgType})
}

// Leave removes participantID from the room. A departing host ends the
// room (`ended`); a departing guest returns the room to `waiting` so a new
// guest may join.
func (r *RoomSession) Leave(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if participantID == r.hostID {
		host, guest := r.host, r.guest
		r.setPhase(PhaseEnded)
		if r.guestSender != nil {
			r.guestSender.SendMessage(wire.Message{Type: wire.TypePartnerLeft})
		}
		if host != nil {
			host.Close()
		}
		if guest != nil {
			guest.Close()
		}
		return
	}

	if r.guest != nil && participantID == r.guest.ID {
		guest := r.guest
		r.guest = nil
		r.guestSender = nil
		r.guestName = ""
		r.setPhase(PhaseWaiting)
		if r.hostSender != nil {
			r.hostSender.SendMessage(wire.Message{Type: wire.TypePartnerLeft})
		}
		if guest != nil {
			guest.Close()
		}
		if r.host != nil {
			r.host.Close()
			r.host = nil
		}
	}
}

// Expire ends the room from the registry sweeper's side rather than a
// participant's: both connections are still open, so both must be notified
// (session_status=ended) and closed, not just dropped from the registry's
// map. Safe to call on a room already ended.
func (r *RoomSession) Expire() {
	r.mu.Lock()
	if r.Phase == PhaseEnded {
		r.mu.Unlock()
		return
	}
	host, guest := r.host, r.guest
	hostSender, guestSender := r.hostSender, r.guestSender
	r.setPhase(PhaseEnded)
	r.mu.Unlock()

	if host != nil {
		host.Close()
	}
	if guest != nil {
		guest.Close()
	}
	if hostSender != nil {
		hostSender.Close()
	}
	if guestSender != nil {
		guestSender.Close()
	}
}

// IdleFor reports how long the room has gone without an inbound frame or
// marker, for the registry sweeper.
func (r *RoomSession) IdleFor() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastActivity)
}

// Ended reports whether the room has transitioned to `ended`.
func (r *RoomSession) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Phase == PhaseEnded
}

func (r *RoomSession) touch() {
	r.mu.Lock()
	r.lastActivity = time.Now()
	r.mu.Unlock()
}

// setPhase mutates phase and broadcasts session_status to both connections.
// Callers must hold r.mu.
func (r *RoomSession) setPhase(p Phase) {
	r.Phase = p
	status := wire.Message{Type: wire.TypeSessionStatus, Status: p.status()}
	if r.hostSender != nil {
		r.hostSender.SendMessage(status)
	}
	if r.guestSender != nil {
		r.guestSender.SendMessage(status)
	}
}

// participantByID must be called with r.mu held.
func (r *RoomSession) participantByID(id string) *Participant {
	if r.host != nil && id == r.hostID {
		return r.host
	}
	if r.guest != nil && id == r.guest.ID {
		return r.guest
	}
	return nil
}

// partnerSenderOf must be called with r.mu held.
func (r *RoomSession) partnerSenderOf(id string) Sender {
	if id == r.hostID {
		return r.guestSender
	}
	return r.hostSender
}

// partnerParticipant returns the Participant on the other side of role, the
// one about to hear synthesized audio and whose mic the server must gate
// for the mic-lock window.
func (r *RoomSession) partnerParticipant(role Role) *Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role == RoleHost {
		return r.guest
	}
	return r.host
}

func (r *RoomSession) selfAndPartnerSenders(role Role) (self, partner Sender, partnerName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role == RoleHost {
		return r.hostSender, r.guestSender, r.guestName
	}
	return r.guestSender, r.hostSender, r.hostName
}

func (r *RoomSession) routePartial(role Role, pr pipeline.PartialResult) {
	self, partner, _ := r.selfAndPartnerSenders(role)
	if self != nil {
		self.SendMessage(wire.Message{
			Type:           wire.TypeTranscriptPartial,
			Speaker:        wire.SpeakerSelf,
			Text:           pr.Text,
			Language:       pr.Language,
			Translation:    pr.Translation,
		})
	}
	if partner != nil {
		partner.SendMessage(wire.Message{
			Type:        wire.TypeTranscriptPartial,
			Speaker:     wire.SpeakerPartner,
			Text:        pr.Text,
			Language:    pr.Language,
			Translation: pr.Translation,
		})
	}
}

func (r *RoomSession) routeFinal(role Role, res pipeline.Result) {
	self, partner, speakerName := r.selfAndPartnerSenders(role)

	base := wire.Message{
		Type:           wire.TypeTranscript,
		Text:           res.Utterance.FinalText,
		Language:       res.Utterance.DetectedLanguage,
		Translation:    res.Utterance.Translation,
		TargetLanguage: res.Utterance.TargetLanguage,
		DurationMS:     res.Utterance.DurationMS,
		HasTTSAudio:    len(res.Audio) > 0,
	}

	if self != nil {
		selfMsg := base
		selfMsg.Speaker = wire.SpeakerSelf
		self.SendMessage(selfMsg)
	}

	if partner != nil {
		partnerMsg := base
		partnerMsg.Speaker = wire.SpeakerPartner
		partnerMsg.SpeakerName = speakerName
		partner.SendMessage(partnerMsg)

		if len(res.Audio) > 0 {
			if pp := r.partnerParticipant(role); pp != nil {
				pp.LockMicFor(res.MicLockDuration)
			}
			partner.SendMessage(wire.Message{
				Type:              wire.TypeMicLocked,
				MicLockDurationMS: res.MicLockDuration.Milliseconds(),
			})
			partner.SendAudio(res.Audio)
		}
	}
}

func (r *RoomSession) routeError(role Role, kind string, err error) {
	self, _, _ := r.selfAndPartnerSenders(role)
	if self == nil {
		return
	}
	self.SendMessage(wire.Message{Type: wire.TypeError, ErrorKind: kind, ErrorMessage: err.Error()})
}

// NotifyJoined sends partner_joined to the host and room_joined to the
// guest (room_created is sent earlier, by NotifyCreated). Called by the
// registry right after Join succeeds.
func (r *RoomSession) NotifyJoined() {
	r.mu.Lock()
	hostSender, guestSender := r.hostSender, r.guestSender
	hostLang, guestLang := r.HostLanguage, r.guestLanguage
	guestName := r.guestName
	r.mu.Unlock()

	if hostSender != nil {
		hostSender.SendMessage(wire.Message{Type: wire.TypePartnerJoined, Name: guestName, Language: guestLang})
	}
	if guestSender != nil {
		guestSender.SendMessage(wire.Message{
			Type:            wire.TypeRoomJoined,
			RoomID:          r.Code,
			Language:        guestLang,
			PartnerName:     r.hostName,
			PartnerLanguage: hostLang,
		})
	}
}

// NotifyCreated sends room_created to the host, used right after the
// registry allocates the room.
func (r *RoomSession) NotifyCreated() {
	r.mu.Lock()
	hostSender := r.hostSender
	lang := r.HostLanguage
	code := r.Code
	r.mu.Unlock()

	if hostSender != nil {
		hostSender.SendMessage(wire.Message{Type: wire.TypeRoomCreated, RoomID: code, Language: lang})
	}
}
