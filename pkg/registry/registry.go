// Package registry allocates and tracks live Rooms by a short, rejection-
// sampled code, and sweeps ended/idle rooms off the process-wide set.
package registry

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/lokutor-ai/babelroom/pkg/config"
	"github.com/lokutor-ai/babelroom/pkg/logging"
	"github.com/lokutor-ai/babelroom/pkg/pipeline"
	"github.com/lokutor-ai/babelroom/pkg/providers/asr"
	"github.com/lokutor-ai/babelroom/pkg/providers/mt"
	"github.com/lokutor-ai/babelroom/pkg/providers/tts"
	"github.com/lokutor-ai/babelroom/pkg/session"
)

// codeAlphabet excludes visually ambiguous characters (0/O, 1/I/L) so a
// spoken or handwritten room code survives transcription.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// RoomRegistry allocates room codes and owns every live RoomSession in the
// process. It is the only place Room creation/lookup/expiry happens; the
// wire endpoint never constructs a RoomSession directly.
type RoomRegistry struct {
	mu        sync.Mutex
	rooms     map[string]*session.RoomSession
	codeLen   int

	ctx        context.Context
	pool       *pipeline.WorkerPool
	cfg        config.Config
	asrP       asr.Provider
	mtP        mt.Provider
	ttsP       tts.Provider
	vadFactory session.VADFactory
	logger     logging.Logger
}

// New builds an empty registry. codeLen must be positive (the config
// default is 6, matching the room-code data model field).
func New(ctx context.Context, codeLen int, pool *pipeline.WorkerPool, cfg config.Config,
	asrP asr.Provider, mtP mt.Provider, ttsP tts.Provider, vadFactory session.VADFactory, logger logging.Logger) *RoomRegistry {
	if codeLen < 1 {
		codeLen = 6
	}
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &RoomRegistry{
		rooms:      make(map[string]*session.RoomSession),
		codeLen:    codeLen,
		ctx:        ctx,
		pool:       pool,
		cfg:        cfg,
		asrP:       asrP,
		mtP:        mtP,
		ttsP:       ttsP,
		vadFactory: vadFactory,
		logger:     logger,
	}
}

// Create allocates a fresh room code and a host-only RoomSession in the
// `waiting` phase. hostLanguage and guestLanguage must differ; the caller
// (wire endpoint query-param parsing) is expected to have already rejected
// equal languages as bad_request, but Create defends the invariant too.
func (r *RoomRegistry) Create(hostID, hostName, hostLanguage, guestLanguage string, hostSender session.Sender) (*session.RoomSession, error) {
	if hostLanguage == guestLanguage {
		return nil, session.ErrLanguagesEqual
	}

	r.mu.Lock()
	code, err := r.allocateCodeLocked()
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	room := session.NewRoomSession(r.ctx, code, hostID, hostName, hostLanguage, guestLanguage, hostSender,
		r.asrP, r.mtP, r.ttsP, r.vadFactory, r.pool, r.cfg)
	r.rooms[code] = room
	r.mu.Unlock()

	room.NotifyCreated()
	return room, nil
}

// Join attaches a guest to an existing room by code (case-insensitive).
func (r *RoomRegistry) Join(code, guestID, guestName string, guestSender session.Sender) (*session.RoomSession, error) {
	room, ok := r.Get(code)
	if !ok {
		return nil, session.ErrRoomNotFound
	}
	if err := room.Join(guestID, guestName, guestSender); err != nil {
		return nil, err
	}
	room.NotifyJoined()
	return room, nil
}

// Get looks up a room by its (case-normalized) code.
func (r *RoomRegistry) Get(code string) (*session.RoomSession, bool) {
	code = normalizeCode(code)
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[code]
	return room, ok
}

// Leave forwards to the room's own Leave and, if it left the room ended,
// removes it immediately rather than waiting for the sweeper.
func (r *RoomRegistry) Leave(code, participantID string) {
	room, ok := r.Get(code)
	if !ok {
		return
	}
	room.Leave(participantID)
	if room.Ended() {
		r.mu.Lock()
		delete(r.rooms, normalizeCode(code))
		r.mu.Unlock()
	}
}

// RunSweeper blocks, periodically expiring ended or idle-too-long rooms,
// until ctx is cancelled. Intended to run in its own goroutine for the
// lifetime of the process.
func (r *RoomRegistry) RunSweeper(ctx context.Context, interval, idleTTL time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(idleTTL)
		}
	}
}

func (r *RoomRegistry) sweep(idleTTL time.Duration) {
	r.mu.Lock()
	var expired []*session.RoomSession
	for code, room := range r.rooms {
		if room.Ended() || room.IdleFor() > idleTTL {
			delete(r.rooms, code)
			expired = append(expired, room)
		}
	}
	r.mu.Unlock()

	// Expire (notify + close) outside the registry lock: it calls out to
	// Sender.Close, which must never run while r.mu is held.
	for _, room := range expired {
		room.Expire()
		r.logger.Info("room expired", "code", room.Code)
	}
}

// allocateCodeLocked must be called with r.mu held.
func (r *RoomRegistry) allocateCodeLocked() (string, error) {
	// Rejection sampling against the live set: regenerate on collision. The
	// alphabet is sized so collisions are rare even at a sizeable room
	// count; no third-party library in the retrieved pack offers a
	// human-legible short-code generator, so this is hand-rolled.
	for attempt := 0; attempt < 100; attempt++ {
		code, err := randomCode(r.codeLen)
		if err != nil {
			return "", err
		}
		if _, exists := r.rooms[code]; !exists {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}

func normalizeCode(code string) string {
	out := make([]byte, 0, len(code))
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
