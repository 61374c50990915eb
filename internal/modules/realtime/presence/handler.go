package presence

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/mocktalk/realtime/internal/middleware"
	"github.com/mocktalk/realtime/internal/pkg/response"
)

type Handler struct {
	tracker *Tracker
}

func NewHandler(tracker *Tracker) *Handler { return &Handler{tracker: tracker} }

// RegisterRoutes mounts the presence endpoints under rg. limitMW may be nil.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, limitMW gin.HandlerFunc) {
	g := rg.Group("/notifications/presence", authMW)

	update := []gin.HandlerFunc{h.upsert}
	if limitMW != nil {
		update = append([]gin.HandlerFunc{limitMW}, update...)
	}
	g.PUT("", update...)
	g.GET("", h.list)
	g.DELETE("/:sessionId", h.remove)
}

func (h *Handler) upsert(c *gin.Context) {
	var dto Update
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	record, err := h.tracker.Upsert(c.Request.Context(), middleware.CurrentUserID(c), dto)
	if err != nil {
		if errors.Is(err, ErrInvalidPresence) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, record)
}

func (h *Handler) list(c *gin.Context) {
	sessions, err := h.tracker.Sessions(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if sessions == nil {
		sessions = []Record{}
	}
	response.OK(c, sessions)
}

func (h *Handler) remove(c *gin.Context) {
	if _, err := h.tracker.Remove(c.Request.Context(), middleware.CurrentUserID(c), c.Param("sessionId")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
