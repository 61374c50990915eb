package reaction

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mocktalk/realtime/internal/middleware"
	"github.com/mocktalk/realtime/internal/modules/realtime/gateway"
	"github.com/mocktalk/realtime/internal/pkg/response"
	"go.uber.org/zap"
)

// Publisher fans reaction totals out to a board.
type Publisher interface {
	PublishReactionChanged(boardID int64, data interface{}) gateway.Envelope
}

type Handler struct {
	svc       *Service
	locator   *Locator
	publisher Publisher
	log       *zap.Logger
}

func NewHandler(svc *Service, locator *Locator, publisher Publisher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, locator: locator, publisher: publisher, log: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, optionalAuthMW gin.HandlerFunc) {
	g := rg.Group("/comments/:id/reactions")
	g.GET("", optionalAuthMW, h.get)
	g.PUT("", authMW, h.set)
	g.POST("/toggle", authMW, h.toggle)

	rg.GET("/reactions/summaries", optionalAuthMW, h.batch)
}

func (h *Handler) toggle(c *gin.Context) {
	target, dto, ok := h.prepare(c)
	if !ok {
		return
	}
	summary, err := h.svc.Toggle(c.Request.Context(), middleware.CurrentUserID(c), target.CommentID, *dto.ReactionType)
	h.finish(c, target, summary, err)
}

func (h *Handler) set(c *gin.Context) {
	target, dto, ok := h.prepare(c)
	if !ok {
		return
	}
	summary, err := h.svc.Set(c.Request.Context(), middleware.CurrentUserID(c), target.CommentID, *dto.ReactionType)
	h.finish(c, target, summary, err)
}

func (h *Handler) get(c *gin.Context) {
	commentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || commentID <= 0 {
		response.BadRequest(c, "invalid comment id")
		return
	}
	if _, err := h.locator.Locate(c.Request.Context(), commentID); err != nil {
		h.fail(c, err)
		return
	}
	summary, err := h.svc.Summary(c.Request.Context(), middleware.CurrentUserID(c), commentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, summary)
}

func (h *Handler) batch(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("commentIds"))
	if raw == "" {
		response.BadRequest(c, "commentIds is required")
		return
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			response.BadRequest(c, "invalid comment id: "+part)
			return
		}
		ids = append(ids, id)
	}
	summaries, err := h.svc.Summaries(c.Request.Context(), middleware.CurrentUserID(c), ids)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, summaries)
}

func (h *Handler) prepare(c *gin.Context) (Target, reactionDTO, bool) {
	var dto reactionDTO
	commentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || commentID <= 0 {
		response.BadRequest(c, "invalid comment id")
		return Target{}, dto, false
	}
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return Target{}, dto, false
	}
	target, err := h.locator.Locate(c.Request.Context(), commentID)
	if err != nil {
		h.fail(c, err)
		return Target{}, dto, false
	}
	return target, dto, true
}

func (h *Handler) finish(c *gin.Context, target Target, summary Summary, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.publisher != nil {
		h.publisher.PublishReactionChanged(target.BoardID, gateway.ReactionChangedPayload{
			CommentID:    target.CommentID,
			ArticleID:    target.ArticleID,
			LikeCount:    summary.LikeCount,
			DislikeCount: summary.DislikeCount,
		})
	}
	response.OK(c, summary)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrCommentNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrInvalidReaction), errors.Is(err, ErrInvalidValue), errors.Is(err, ErrInvalidTarget),
		errors.Is(err, ErrTooManyIDs):
		response.BadRequest(c, err.Error())
	default:
		h.log.Error("reaction request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.InternalError(c, err)
	}
}
