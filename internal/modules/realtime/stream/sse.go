package stream

import (
	"io"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/mocktalk/realtime/internal/modules/realtime/gateway"
	"go.uber.org/zap"
)

func (h *Handler) serveSSE(c *gin.Context, b *gateway.Broadcaster, scopeID int64) {
	client := b.Subscribe(scopeID, lastEventID(c))
	defer b.Detach(scopeID, client)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	timeout := h.clock.After(h.timeout)
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-client.Done():
			return false
		case <-timeout:
			h.log.Debug("stream timeout reached", zap.String("connection_id", client.ID()))
			return false
		case env := <-client.Outbox():
			err := sse.Encode(w, sse.Event{
				Id:    env.EventID,
				Event: env.Type.StreamName(),
				Data:  env,
			})
			if err != nil {
				h.log.Debug("sse write failed", zap.String("connection_id", client.ID()), zap.Error(err))
				return false
			}
			return true
		}
	})
}
