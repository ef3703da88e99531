package server

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/lokutor-ai/babelroom/pkg/session"
	"github.com/lokutor-ai/babelroom/pkg/wire"
)

// handleSession serves the room endpoint: a connection either creates a new
// room (my_lang, partner_lang, name) or joins an existing one (room_id,
// name). Which path applies is determined by the presence of room_id (§6).
func (h *handler) handleSession(w http.ResponseWriter, r *http.Request) {
	name := queryOr(r, "name", "")
	roomID := r.URL.Query().Get("room_id")

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	c := newConn(r.Context(), ws, h.deps.Config.OutboundQueueSize, h.deps.Logger)
	defer c.closeWithStatus(websocket.StatusNormalClosure, "")

	participantID := uuid.NewString()

	var room *session.RoomSession
	if roomID != "" {
		room, err = h.deps.Registry.Join(roomID, participantID, name, c)
	} else {
		myLang := r.URL.Query().Get("my_lang")
		partnerLang := r.URL.Query().Get("partner_lang")
		if !validLanguages[myLang] || !validLanguages[partnerLang] {
			c.sendMessageSync(wire.Message{Type: wire.TypeError, ErrorKind: "bad_request", ErrorMessage: "my_lang and partner_lang must be one of en, es, pt"})
			c.closeWithStatus(websocket.StatusPolicyViolation, "bad_request")
			return
		}
		room, err = h.deps.Registry.Create(participantID, name, myLang, partnerLang, c)
	}

	if err != nil {
		kind := "bad_request"
		if se, ok := session.AsSessionError(err); ok {
			kind = string(se.Kind)
		}
		c.sendMessageSync(wire.Message{Type: wire.TypeError, ErrorKind: kind, ErrorMessage: err.Error()})
		c.closeWithStatus(websocket.StatusPolicyViolation, kind)
		return
	}

	go c.runWritePump()
	runRoomReadPump(c, room, participantID)
	h.deps.Registry.Leave(room.Code, participantID)
}

// runRoomReadPump reads frames until the connection closes. In room mode
// every BINARY frame is classified as a 4-byte control marker or encoded
// audio (§6); any TEXT frame is a protocol violation, since room control
// never rides the text channel.
func runRoomReadPump(c *conn, room *session.RoomSession, participantID string) {
	for {
		msgType, payload, err := c.ws.Read(c.ctx)
		if err != nil {
			return
		}
		switch msgType {
		case websocket.MessageBinary:
			if marker, isControl := wire.ClassifyBinary(payload); isControl {
				room.HandleMarker(participantID, marker)
				continue
			}
			if err := room.Feed(participantID, payload); err != nil {
				c.logger.Warn("room: decode error", "err", err)
			}
		case websocket.MessageText:
			c.closeWithStatus(websocket.StatusPolicyViolation, "protocol_violation")
			return
		}
	}
}
