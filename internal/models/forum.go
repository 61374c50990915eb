package models

import "time"

// CommentRef and ArticleRef are read-only views of tables owned by the forum
// CRUD service. They are only migrated by tests.

type CommentRef struct {
	ID        int64      `gorm:"column:comment_id;primaryKey"`
	ArticleID int64      `gorm:"column:article_id;not null;index"`
	DeletedAt *time.Time `gorm:"column:deleted_at"`
}

func (CommentRef) TableName() string { return "tb_comments" }

type ArticleRef struct {
	ID        int64      `gorm:"column:article_id;primaryKey"`
	BoardID   int64      `gorm:"column:board_id;not null;index"`
	DeletedAt *time.Time `gorm:"column:deleted_at"`
}

func (ArticleRef) TableName() string { return "tb_articles" }
