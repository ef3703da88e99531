// Package server implements the WireEndpoint: duplex connection upgrade,
// query-param dispatch to Solo or Room sessions, and the per-connection
// read/write pumps that enforce the wire protocol's framing and ordering
// guarantees.
package server

import (
	"context"
	"sync"

	"github.com/coder/websocket"

	"github.com/lokutor-ai/babelroom/pkg/logging"
	"github.com/lokutor-ai/babelroom/pkg/session"
	"github.com/lokutor-ai/babelroom/pkg/wire"
)

type outboundFrame struct {
	kind websocket.MessageType
	data []byte
}

// conn wraps one upgraded websocket and implements session.Sender. Writes
// from any goroutine (worker callbacks, the read pump) are funneled through
// a single bounded queue drained by one write-pump goroutine, which is what
// gives the transport its FIFO, JSON-before-audio ordering guarantee (§5):
// a sender only ever needs to call SendMessage then SendAudio in that order
// for the queue to preserve it.
type conn struct {
	ws     *websocket.Conn
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	outbound chan outboundFrame

	closeOnce sync.Once
	closeErr  error
}

func newConn(parent context.Context, ws *websocket.Conn, queueSize int, logger logging.Logger) *conn {
	ctx, cancel := context.WithCancel(parent)
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &conn{
		ws:       ws,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		outbound: make(chan outboundFrame, queueSize),
	}
}

// SendMessage enqueues a TEXT JSON frame.
func (c *conn) SendMessage(msg wire.Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	return c.enqueue(websocket.MessageText, data)
}

// sendMessageSync writes a TEXT JSON frame directly, bypassing the outbound
// queue. Used only for the handful of messages that must reach the client
// before a connection is torn down ahead of the write pump ever starting
// (query validation and registry errors at setup, per §7's propagation
// policy that setup errors are surfaced before close).
func (c *conn) sendMessageSync(msg wire.Message) {
	data, err := msg.Marshal()
	if err != nil {
		return
	}
	c.ws.Write(c.ctx, websocket.MessageText, data)
}

// SendAudio enqueues a BINARY frame carrying a RIFF WAV blob.
func (c *conn) SendAudio(payload []byte) error {
	return c.enqueue(websocket.MessageBinary, payload)
}

// enqueue is non-blocking: a full queue means a slow connection, which is
// the `backpressure` error kind (§5, §7) rather than a reason to stall
// every other room sharing the worker pool.
func (c *conn) enqueue(kind websocket.MessageType, data []byte) error {
	select {
	case c.outbound <- outboundFrame{kind: kind, data: data}:
		return nil
	default:
		c.fail(session.ErrBackpressure)
		return session.ErrBackpressure
	}
}

// runWritePump drains the outbound queue until the connection's context is
// cancelled. Intended to run in its own goroutine for the connection's
// lifetime.
func (c *conn) runWritePump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame, ok := <-c.outbound:
			if !ok {
				return
			}
			if err := c.ws.Write(c.ctx, frame.kind, frame.data); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

// fail records the first error that ends this connection and cancels its
// context, unblocking the read pump and write pump alike.
func (c *conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		c.cancel()
	})
}

func (c *conn) closeWithStatus(code websocket.StatusCode, reason string) {
	c.fail(nil)
	c.ws.Close(code, reason)
}

// Close implements session.Sender for server-initiated teardown (idle-TTL
// expiry, a departed partner's room ending): it unblocks this connection's
// read pump the same way a transport error would, so the wire endpoint's
// own handler goroutine runs its usual cleanup.
func (c *conn) Close() error {
	c.closeWithStatus(websocket.StatusNormalClosure, "session ended")
	return nil
}
