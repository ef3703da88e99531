package registry

import (
	"context"
	"testing"

	"github.com/lokutor-ai/babelroom/pkg/config"
	"github.com/lokutor-ai/babelroom/pkg/pipeline"
	"github.com/lokutor-ai/babelroom/pkg/providers/asr"
	"github.com/lokutor-ai/babelroom/pkg/session"
	"github.com/lokutor-ai/babelroom/pkg/vad"
	"github.com/lokutor-ai/babelroom/pkg/wire"
)

type stubASR struct{}

func (s *stubASR) Transcribe(ctx context.Context, pcm16 []byte, sampleRate int, hint string) (asr.Result, error) {
	return asr.Result{Text: "hi"}, nil
}
func (s *stubASR) Name() string { return "stub" }

type nullSender struct{}

func (nullSender) SendMessage(wire.Message) error { return nil }
func (nullSender) SendAudio([]byte) error         { return nil }
func (nullSender) Close() error                   { return nil }

func newTestRegistry() *RoomRegistry {
	cfg := config.DefaultConfig()
	pool := pipeline.NewWorkerPool(2)
	vadFactory := func() (vad.Capability, error) { return vad.NewEnergyVAD(0.5), nil }
	return New(context.Background(), 6, pool, cfg, &stubASR{}, nil, nil, vadFactory, nil)
}

func TestRegistry_CreateAllocatesCodeAndNotifiesHost(t *testing.T) {
	reg := newTestRegistry()
	sender := &captureSender{}

	room, err := reg.Create("host-1", "Alice", "en", "es", sender)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(room.Code) != 6 {
		t.Fatalf("expected a 6-char code, got %q", room.Code)
	}
	if len(sender.messages) == 0 || sender.messages[0].Type != wire.TypeRoomCreated {
		t.Fatalf("expected room_created notification, got %+v", sender.messages)
	}
}

func TestRegistry_CreateRejectsEqualLanguages(t *testing.T) {
	reg := newTestRegistry()
	_, err := reg.Create("host-1", "Alice", "en", "en", &captureSender{})
	if err == nil {
		t.Fatal("expected an error for equal host/guest languages")
	}
	se, ok := session.AsSessionError(err)
	if !ok || se != session.ErrLanguagesEqual {
		t.Fatalf("expected ErrLanguagesEqual, got %v", err)
	}
}

func TestRegistry_JoinByCaseInsensitiveCode(t *testing.T) {
	reg := newTestRegistry()
	room, err := reg.Create("host-1", "Alice", "en", "es", &captureSender{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	lower := toLower(room.Code)
	joined, err := reg.Join(lower, "guest-1", "Bob", &captureSender{})
	if err != nil {
		t.Fatalf("join failed with lowercase code: %v", err)
	}
	if joined.Code != room.Code {
		t.Fatalf("expected to join the same room, got %s vs %s", joined.Code, room.Code)
	}
}

func TestRegistry_JoinUnknownCodeFails(t *testing.T) {
	reg := newTestRegistry()
	_, err := reg.Join("ZZZZZZ", "guest-1", "Bob", &captureSender{})
	if err == nil {
		t.Fatal("expected room_not_found for an unknown code")
	}
	se, ok := session.AsSessionError(err)
	if !ok || se != session.ErrRoomNotFound {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestRegistry_LeaveHostRemovesRoomImmediately(t *testing.T) {
	reg := newTestRegistry()
	room, err := reg.Create("host-1", "Alice", "en", "es", &captureSender{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	reg.Leave(room.Code, "host-1")

	if _, ok := reg.Get(room.Code); ok {
		t.Fatal("expected the room to be removed once the host leaves")
	}
}

func TestRegistry_SweepRemovesIdleRooms(t *testing.T) {
	reg := newTestRegistry()
	hostSender := &captureSender{}
	room, err := reg.Create("host-1", "Alice", "en", "es", hostSender)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	reg.sweep(0) // idleTTL of zero: everything not just-touched is idle

	if _, ok := reg.Get(room.Code); ok {
		t.Fatal("expected sweep to remove the idle room")
	}
	if room.Phase != session.PhaseEnded {
		t.Fatalf("expected idle-TTL expiry to transition phase to ended, got %q", room.Phase)
	}
	last := hostSender.messages[len(hostSender.messages)-1]
	if last.Type != wire.TypeSessionStatus || last.Status != wire.StatusEnded {
		t.Fatalf("expected a final session_status=ended notification, got %+v", last)
	}
	if !hostSender.closed {
		t.Fatal("expected the host connection to be closed on idle-TTL expiry")
	}
}

type captureSender struct {
	messages []wire.Message
	closed   bool
}

func (c *captureSender) SendMessage(msg wire.Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

func (c *captureSender) SendAudio(payload []byte) error { return nil }

func (c *captureSender) Close() error {
	c.closed = true
	return nil
}

func toLower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
