package reaction

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Locator resolves the board a comment lives on so reaction changes can be
// fanned out to that board's watchers.
type Locator struct {
	db *gorm.DB
}

func NewLocator(db *gorm.DB) *Locator { return &Locator{db: db} }

// Locate returns ErrCommentNotFound for unknown or deleted comments.
func (l *Locator) Locate(ctx context.Context, commentID int64) (Target, error) {
	if commentID <= 0 {
		return Target{}, ErrCommentNotFound
	}
	var targets []Target
	err := l.db.WithContext(ctx).
		Table("tb_comments AS c").
		Select("c.comment_id AS comment_id, c.article_id AS article_id, a.board_id AS board_id").
		Joins("JOIN tb_articles AS a ON a.article_id = c.article_id").
		Where("c.comment_id = ? AND c.deleted_at IS NULL AND a.deleted_at IS NULL", commentID).
		Limit(1).
		Scan(&targets).Error
	if err != nil {
		return Target{}, fmt.Errorf("locate comment %d: %w", commentID, err)
	}
	if len(targets) == 0 {
		return Target{}, ErrCommentNotFound
	}
	return targets[0], nil
}
