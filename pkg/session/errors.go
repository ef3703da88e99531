package session

import "errors"

// Kind classifies a session-layer error per the error taxonomy; the wire
// endpoint maps these onto the `error` JSON message's `kind` field.
type Kind string

const (
	KindBadRequest    Kind = "bad_request"
	KindRoomNotFound  Kind = "room_not_found"
	KindRoomFull      Kind = "room_full"
	KindProtocol      Kind = "protocol_violation"
	KindTransportDone Kind = "transport_closed"
	KindBackpressure  Kind = "backpressure"
)

// Error carries a Kind alongside the underlying message so callers can
// decide connection-close behavior without string-matching.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	// ErrLanguagesEqual is returned when a room create requests identical
	// host/guest languages.
	ErrLanguagesEqual = newError(KindBadRequest, "host and guest languages must differ")

	// ErrRoomNotFound is returned by RoomRegistry.Join for an unknown room
	// code, and by RoomSession.Join for an already-ended room.
	ErrRoomNotFound = newError(KindRoomNotFound, "room not found")

	// ErrRoomFull is returned by RoomRegistry.Join when a room already has a
	// guest.
	ErrRoomFull = newError(KindRoomFull, "room already has two participants")

	// ErrNotHost describes a non-host participant's START/END attempt.
	// RoomSession ignores such markers and does not return this error.
	ErrNotHost = newError(KindProtocol, "only the host may start or end the session")

	// ErrBackpressure is returned by a Sender/write pump when a connection's
	// outbound queue overflows; the wire endpoint closes the connection after
	// reporting it.
	ErrBackpressure = newError(KindBackpressure, "outbound queue overflow, connection too slow")
)

// AsSessionError extracts a *Error from err, if it is one.
func AsSessionError(err error) (*Error, bool) {
	var se *Error
	ok := errors.As(err, &se)
	return se, ok
}
