package models

import "time"

// Reaction values stored in reaction_type. ReactionNone is never persisted;
// it is represented by the absence of a row.
const (
	ReactionDislike int8 = -1
	ReactionNone    int8 = 0
	ReactionLike    int8 = 1
)

// CommentReactionModel is one user's reaction to one comment. The unique
// index on (user_id, comment_id) is what keeps at most one row per pair.
type CommentReactionModel struct {
	ID           int64     `json:"id"           gorm:"column:comment_reaction_id;primaryKey;autoIncrement"`
	UserID       int64     `json:"userId"       gorm:"not null;uniqueIndex:uq_tb_comment_reactions_user_id_comment_id,priority:1"`
	CommentID    int64     `json:"commentId"    gorm:"not null;uniqueIndex:uq_tb_comment_reactions_user_id_comment_id,priority:2;index:ix_tb_comment_reactions_comment_id"`
	ReactionType int8      `json:"reactionType" gorm:"not null"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (CommentReactionModel) TableName() string { return "tb_comment_reactions" }
