package testutil

import (
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/mocktalk/realtime/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewInMemoryDB creates an in-memory SQLite DB and runs migrations, including
// the forum tables owned by the CRUD service.
func NewInMemoryDB() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	// every pooled connection would otherwise get its own empty database
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.CommentReactionModel{}, &models.ArticleRef{}, &models.CommentRef{}); err != nil {
		return nil, err
	}
	return db, nil
}

// NewConcurrentDB creates a file-backed SQLite DB in dir that several pooled
// connections share, so concurrent transactions really interleave. Writers
// wait on the database lock for up to five seconds.
func NewConcurrentDB(dir string) (*gorm.DB, error) {
	dsn := filepath.Join(dir, "realtime.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(8)

	if err := db.AutoMigrate(&models.CommentReactionModel{}, &models.ArticleRef{}, &models.CommentRef{}); err != nil {
		return nil, err
	}
	return db, nil
}

// SeedComment inserts an article on boardID holding commentID.
func SeedComment(db *gorm.DB, boardID, articleID, commentID int64) error {
	if err := db.Save(&models.ArticleRef{ID: articleID, BoardID: boardID}).Error; err != nil {
		return err
	}
	return db.Save(&models.CommentRef{ID: commentID, ArticleID: articleID}).Error
}
