package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// defaultSampleRate is Lokutor's native synthesis rate when the service
// doesn't report one explicitly in its handshake reply.
const defaultSampleRate = 24000

// LokutorTTS streams synthesis requests and audio chunks over a persistent
// websocket connection to the Lokutor voice service, reconnecting lazily on
// the next call after any read/write failure.
type LokutorTTS struct {
	apiKey string
	host   string
	scheme string // "" means "wss"
	mu     sync.Mutex
	conn   *websocket.Conn
}

// NewLokutorTTS builds a Lokutor TTS adapter.
func NewLokutorTTS(apiKey string) *LokutorTTS {
	return &LokutorTTS{
		apiKey: apiKey,
		host:   "api.lokutor.com",
	}
}

func (t *LokutorTTS) Name() string { return "lokutor" }

func (t *LokutorTTS) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	scheme := t.scheme
	if scheme == "" {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: t.host, Path: "/ws", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("lokutor: dial: %w", err)
	}

	t.conn = conn
	return conn, nil
}

// Synthesize buffers the full audio before returning.
func (t *LokutorTTS) Synthesize(ctx context.Context, text, voice, language string) ([]byte, int, error) {
	var audio []byte
	sampleRate, err := t.StreamSynthesize(ctx, text, voice, language, func(chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return audio, sampleRate, nil
}

// StreamSynthesize sends a synthesis request and forwards every binary
// audio chunk to onChunk as it arrives. The connection's first text reply
// may carry a sample_rate field; when absent, defaultSampleRate is assumed.
func (t *LokutorTTS) StreamSynthesize(ctx context.Context, text, voice, language string, onChunk func([]byte) error) (int, error) {
	conn, err := t.getConn(ctx)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	req := map[string]interface{}{
		"text":    text,
		"voice":   voice,
		"lang":    language,
		"speed":   1.05,
		"steps":   5,
		"version": "versa-1.0",
	}

	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.conn = nil
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return 0, fmt.Errorf("lokutor: send synthesis request: %w", err)
	}

	sampleRate := defaultSampleRate
	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.conn = nil
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return 0, fmt.Errorf("lokutor: read: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onChunk(payload); err != nil {
				return sampleRate, err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return sampleRate, nil
			}
			if strings.HasPrefix(msg, "ERR:") {
				return sampleRate, fmt.Errorf("lokutor: %s", msg)
			}
			var meta struct {
				SampleRate int `json:"sample_rate"`
			}
			if err := json.Unmarshal(payload, &meta); err == nil && meta.SampleRate > 0 {
				sampleRate = meta.SampleRate
			}
		}
	}
}

func (t *LokutorTTS) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "")
		t.conn = nil
		return err
	}
	return nil
}
