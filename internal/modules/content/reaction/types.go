package reaction

import (
	"errors"

	"github.com/mocktalk/realtime/internal/models"
)

var (
	ErrInvalidReaction = errors.New("reactionType must be -1 or 1")
	ErrInvalidValue    = errors.New("reactionType must be -1, 0 or 1")
	ErrInvalidTarget   = errors.New("invalid user or comment id")
	ErrCommentNotFound = errors.New("comment not found")
	ErrTooManyIDs      = errors.New("too many comment ids")
)

const maxBatchSize = 100

// Summary is the reaction state of one comment as seen by one user.
type Summary struct {
	CommentID    int64 `json:"commentId"`
	LikeCount    int64 `json:"likeCount"`
	DislikeCount int64 `json:"dislikeCount"`
	MyReaction   int8  `json:"myReaction"`
}

// Target locates a comment inside the forum hierarchy.
type Target struct {
	CommentID int64 `json:"commentId"`
	ArticleID int64 `json:"articleId"`
	BoardID   int64 `json:"boardId"`
}

type reactionDTO struct {
	ReactionType *int8 `json:"reactionType" binding:"required"`
}

type counts struct {
	CommentID int64
	Likes     int64
	Dislikes  int64
}

func validToggle(v int8) bool {
	return v == models.ReactionLike || v == models.ReactionDislike
}

func validValue(v int8) bool {
	return validToggle(v) || v == models.ReactionNone
}
