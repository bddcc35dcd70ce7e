package server

import (
	"net/http"
	"time"

	"market-relay/src/broadcast"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Websocket transport
// -----------------------------------------------------------------------------
// Alternate to SSE for clients behind proxies that buffer event streams.
// Events are framed as {"event": <name>, "data": <json>} messages; the
// subscription semantics are identical to the SSE endpoint.
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

type wsEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type wsClient struct {
	server *StreamServer
	ws     *websocket.Conn
	conn   *broadcast.StreamConn
}

// -----------------------------------------------------------------------------

func (s *StreamServer) handleWebSocket(c *gin.Context) {
	channel, symbol, err := s.resolveSubscription(c)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &wsClient{
		server: s,
		ws:     ws,
		conn:   broadcast.NewStreamConn(256),
	}

	s.Registry.Subscribe(client.conn, channel, symbol)

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// readPump - watchdog for the connection; this engine accepts no commands
// from the client, a subscription is fixed at connect time.
// -----------------------------------------------------------------------------

func (c *wsClient) readPump() {
	defer func() {
		c.server.Registry.Unsubscribe(c.conn)
		c.conn.Close()
		c.ws.Close()
		c.server.Logger.Debug("Websocket client disconnected")
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.Logger.Info("Websocket error: %v", err)
			}
			return
		}
	}
}

// -----------------------------------------------------------------------------
// writePump - drains the subscription queue onto the socket
// -----------------------------------------------------------------------------

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.conn.Closed():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case ev := <-c.conn.Events():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(wsEnvelope{Event: ev.Name, Data: ev.Data}); err != nil {
				c.server.Logger.Debug("Websocket write error: %v", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
