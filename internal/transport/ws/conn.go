// Package ws drives one upgraded WebSocket connection's read and write
// pumps, translating between the wire bytes and the gateway's Session
// abstraction. It owns no gateway state of its own.
package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"lattice/internal/gateway"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = (pongWait * 8) / 10
	maxMessageSize = 32 * 1024

	// unauthTimeout is how long a connection has to send a valid `auth`
	// frame before it's dropped (spec.md §4.9).
	unauthTimeout = 10 * time.Second
)

// Conn binds one gorilla/websocket connection to a gateway Session and runs
// its read/write pumps until either side closes.
type Conn struct {
	wsConn *websocket.Conn
	gw     *gateway.Gateway
	sess   *gateway.Session
	log    *slog.Logger
}

// Serve upgrades-complete; this takes ownership of wsConn and blocks until
// the connection is done. Call it from its own goroutine per connection.
func Serve(ctx context.Context, gw *gateway.Gateway, wsConn *websocket.Conn, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	sess := gw.NewConnection()
	c := &Conn{wsConn: wsConn, gw: gw, sess: sess, log: log}

	go c.watchUnauthTimeout()
	go c.writePump()
	c.readPump(ctx)
}

func (c *Conn) watchUnauthTimeout() {
	timer := time.NewTimer(unauthTimeout)
	defer timer.Stop()
	<-timer.C
	if !c.sess.IsAuthenticated() && !c.sess.IsClosed() {
		c.log.Warn("session did not authenticate in time, closing", "component", "transport/ws", "session_id", c.sess.ID())
		c.sess.Close()
		c.wsConn.Close()
	}
}

func (c *Conn) readPump(ctx context.Context) {
	defer func() {
		c.gw.Disconnect(c.sess)
		c.wsConn.Close()
	}()

	c.wsConn.SetReadLimit(maxMessageSize)
	c.wsConn.SetReadDeadline(time.Now().Add(pongWait))
	c.wsConn.SetPongHandler(func(string) error {
		c.wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read error", "component", "transport/ws", "session_id", c.sess.ID(), "error", err)
			}
			return
		}
		c.gw.HandleFrame(ctx, c.sess, raw)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.wsConn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.sess.Outbound():
			c.wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.wsConn.WriteJSON(frame); err != nil {
				c.log.Debug("websocket write error", "component", "transport/ws", "session_id", c.sess.ID(), "error", err)
				return
			}

		case <-ticker.C:
			c.wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
