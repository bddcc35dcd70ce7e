package broadcast

import (
	"errors"
	"sync"
)

// -----------------------------------------------------------------------------
// Connections
// -----------------------------------------------------------------------------

// Event is one named wire event queued for a connection.
type Event struct {
	Name string
	Data interface{}
}

// -----------------------------------------------------------------------------

// Connection is an opaque writable sink owned by a transport handler. Send
// must not block the registry loop: a sink that cannot accept the event
// returns an error and is dropped by the caller.
type Connection interface {
	Send(event string, payload interface{}) error
	Close()
}

// -----------------------------------------------------------------------------

// ErrConnectionGone reports a sink whose consumer stopped draining (buffer
// full) or already closed. The registry reacts by unsubscribing the
// connection; stale clients are expected to reconnect.
var ErrConnectionGone = errors.New("connection closed or stalled")

// -----------------------------------------------------------------------------

// StreamConn is the channel-backed sink shared by the SSE and websocket
// transports. The transport handler drains Events and performs the actual
// network write; the registry only ever enqueues.
type StreamConn struct {
	events    chan Event
	closeOnce sync.Once
	closed    chan struct{}
}

// -----------------------------------------------------------------------------

// NewStreamConn creates a sink with the given outbound buffer. A buffer of
// 256 absorbs bursts without letting one stalled client hold memory forever.
func NewStreamConn(buffer int) *StreamConn {
	if buffer <= 0 {
		buffer = 256
	}
	return &StreamConn{
		events: make(chan Event, buffer),
		closed: make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// Send enqueues one event without blocking.
func (c *StreamConn) Send(event string, payload interface{}) error {
	select {
	case <-c.closed:
		return ErrConnectionGone
	default:
	}

	select {
	case c.events <- Event{Name: event, Data: payload}:
		return nil
	default:
		// Consumer too slow, queue full. Report failure so the registry
		// prunes this connection instead of blocking the fan-out loop.
		return ErrConnectionGone
	}
}

// -----------------------------------------------------------------------------

// Events is drained by the owning transport handler.
func (c *StreamConn) Events() <-chan Event {
	return c.events
}

// -----------------------------------------------------------------------------

// Closed is signalled once the connection is terminal.
func (c *StreamConn) Closed() <-chan struct{} {
	return c.closed
}

// -----------------------------------------------------------------------------

// Close marks the connection terminal. Idempotent; a closed connection is
// never reopened, a new stream requires a new connection.
func (c *StreamConn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}
