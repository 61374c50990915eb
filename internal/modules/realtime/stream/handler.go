// Package stream exposes the board and notification broadcasters over
// Server-Sent Events and WebSocket.
package stream

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mocktalk/realtime/internal/middleware"
	"github.com/mocktalk/realtime/internal/modules/realtime/gateway"
	"github.com/mocktalk/realtime/internal/pkg/response"
	"go.uber.org/zap"
)

const (
	DefaultStreamTimeout = 30 * time.Minute
	lastEventIDHeader    = "Last-Event-ID"
)

type Options struct {
	Boards *gateway.BoardBroadcaster
	Users  *gateway.NotificationBroadcaster
	Clock  clockwork.Clock
	// StreamTimeout ends a stream after this long; clients reconnect and
	// resume with Last-Event-ID.
	StreamTimeout time.Duration
	// CheckOrigin validates WebSocket upgrades. nil accepts every origin.
	CheckOrigin func(r *http.Request) bool
	Logger      *zap.Logger
}

type Handler struct {
	boards   *gateway.BoardBroadcaster
	users    *gateway.NotificationBroadcaster
	clock    clockwork.Clock
	timeout  time.Duration
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewHandler(opts Options) *Handler {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = DefaultStreamTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		boards:  opts.Boards,
		users:   opts.Users,
		clock:   opts.Clock,
		timeout: opts.StreamTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		log: opts.Logger.Named("stream"),
	}
}

// RegisterRoutes mounts stream endpoints under rg (normally /realtime).
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, optionalAuthMW gin.HandlerFunc) {
	boards := rg.Group("/boards/:boardId", optionalAuthMW)
	boards.GET("/stream", h.boardSSE)
	boards.GET("/ws", h.boardWS)

	users := rg.Group("/notifications", authMW)
	users.GET("/stream", h.userSSE)
	users.GET("/ws", h.userWS)

	rg.GET("/stats", h.stats)
}

func (h *Handler) boardSSE(c *gin.Context) {
	boardID, ok := boardID(c)
	if !ok {
		return
	}
	h.serveSSE(c, h.boards.Broadcaster, boardID)
}

func (h *Handler) boardWS(c *gin.Context) {
	boardID, ok := boardID(c)
	if !ok {
		return
	}
	h.serveWS(c, h.boards.Broadcaster, boardID)
}

func (h *Handler) userSSE(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	if userID <= 0 {
		response.Unauthorized(c)
		return
	}
	h.serveSSE(c, h.users.Broadcaster, userID)
}

func (h *Handler) userWS(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	if userID <= 0 {
		response.Unauthorized(c)
		return
	}
	h.serveWS(c, h.users.Broadcaster, userID)
}

func (h *Handler) stats(c *gin.Context) {
	response.OK(c, gin.H{
		"boards": h.boards.Stats(),
		"users":  h.users.Stats(),
	})
}

func boardID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("boardId"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid board id")
		return 0, false
	}
	return id, true
}

// lastEventID reads the resume cursor. EventSource sends the header on
// reconnect; the query form covers the first connect and WebSocket clients.
func lastEventID(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(lastEventIDHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(c.Query("lastEventId"))
}
