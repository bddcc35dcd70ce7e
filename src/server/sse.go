package server

import (
	"time"

	"market-relay/src/broadcast"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// SSE transport
// -----------------------------------------------------------------------------

const keepaliveInterval = 15 * time.Second

// handleStream serves one subscription as a long-lived SSE connection:
// a "connected" acknowledgment, the replayed current state, then named data
// events as "event: <name>\ndata: <json>\n\n" frames. The handler only
// drains the connection's queue; the registry decides what gets queued.
func (s *StreamServer) handleStream(c *gin.Context) {
	channel, symbol, err := s.resolveSubscription(c)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	conn := broadcast.NewStreamConn(256)
	s.Registry.Subscribe(conn, channel, symbol)
	defer func() {
		s.Registry.Unsubscribe(conn)
		conn.Close()
		s.Logger.Debug("Stream closed for %s/%s", channel, symbol)
	}()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return

		case <-conn.Closed():
			// Dropped by the registry (queue overflow or shutdown).
			return

		case ev := <-conn.Events():
			c.SSEvent(ev.Name, ev.Data)
			c.Writer.Flush()

		case <-keepalive.C:
			// Comment frame keeps intermediaries from timing out the idle
			// connection; clients ignore it.
			if _, err := c.Writer.WriteString(": keepalive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
