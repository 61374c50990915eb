package stream

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mocktalk/realtime/internal/modules/realtime/gateway"
	"go.uber.org/zap"
)

const (
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 1024
)

// serveWS upgrades the request and pumps the client's outbox onto the socket.
// Inbound frames are read only to process pongs and detect disconnects.
func (h *Handler) serveWS(c *gin.Context, b *gateway.Broadcaster, scopeID int64) {
	resume := lastEventID(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := b.Subscribe(scopeID, resume)
	defer b.Detach(scopeID, client)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(readLimit)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := h.clock.NewTicker(pingInterval)
	defer ping.Stop()
	timeout := h.clock.After(h.timeout)

	for {
		select {
		case <-readDone:
			return
		case <-client.Done():
			writeClose(conn, websocket.CloseGoingAway, "stream closed")
			return
		case <-timeout:
			writeClose(conn, websocket.CloseNormalClosure, "stream timeout")
			return
		case <-ping.Chan():
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case env := <-client.Outbox():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				h.log.Debug("websocket write failed", zap.String("connection_id", client.ID()), zap.Error(err))
				return
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
