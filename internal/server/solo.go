package server

import (
	"net/http"

	"github.com/coder/websocket"

	"github.com/lokutor-ai/babelroom/pkg/session"
	"github.com/lokutor-ai/babelroom/pkg/wire"
)

// handleAudio serves the solo endpoint: one connection, one participant, no
// partner, no echo-suppression. Query parameters per §6: lang (default
// auto), target_lang (default none), tts (default false).
func (h *handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	lang := queryOr(r, "lang", "auto")
	if lang != "auto" && !validLanguages[lang] {
		http.Error(w, "bad_request: invalid lang", http.StatusBadRequest)
		return
	}
	targetLang := queryOr(r, "target_lang", "none")
	if targetLang != "none" && !validLanguages[targetLang] {
		http.Error(w, "bad_request: invalid target_lang", http.StatusBadRequest)
		return
	}
	ttsEnabled := queryOr(r, "tts", "false") == "true"

	sourceLanguage := lang
	if sourceLanguage == "auto" {
		sourceLanguage = ""
	}
	targetLanguage := targetLang
	if targetLanguage == "none" {
		targetLanguage = ""
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	c := newConn(r.Context(), ws, h.deps.Config.OutboundQueueSize, h.deps.Logger)
	defer c.closeWithStatus(websocket.StatusNormalClosure, "")

	vadCap, err := h.deps.VADFactory()
	if err != nil {
		c.sendMessageSync(wire.Message{Type: wire.TypeError, ErrorKind: "capability_unavailable", ErrorMessage: err.Error()})
		c.closeWithStatus(websocket.StatusInternalError, "capability_unavailable")
		return
	}

	voice := targetLanguage
	if voice == "" {
		voice = sourceLanguage
	}
	solo, err := session.NewSoloSession(c.ctx, c, sourceLanguage, targetLanguage, ttsEnabled, voice,
		h.deps.ASR, h.deps.MT, h.deps.TTS, vadCap, h.deps.Pool, h.deps.Config)
	if err != nil {
		c.sendMessageSync(wire.Message{Type: wire.TypeError, ErrorKind: "capability_unavailable", ErrorMessage: err.Error()})
		c.closeWithStatus(websocket.StatusInternalError, "capability_unavailable")
		return
	}
	defer solo.Close()

	go c.runWritePump()
	runSoloReadPump(c, solo)
}

// runSoloReadPump reads frames until the connection closes. Solo mode
// defines no TEXT control messages and no BINARY markers: every BINARY
// frame is encoded audio (§6), and any TEXT frame is a protocol violation.
// A decode error on a single frame is recovered locally (§7's propagation
// policy) rather than surfaced to the client.
func runSoloReadPump(c *conn, solo *session.SoloSession) {
	for {
		msgType, payload, err := c.ws.Read(c.ctx)
		if err != nil {
			return
		}
		switch msgType {
		case websocket.MessageBinary:
			if err := solo.Feed(payload); err != nil {
				c.logger.Warn("solo: decode error", "err", err)
			}
		case websocket.MessageText:
			c.closeWithStatus(websocket.StatusPolicyViolation, "protocol_violation")
			return
		}
	}
}

func queryOr(r *http.Request, key, def string) string {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	return v
}
