package database

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/mocktalk/realtime/internal/config"
	"github.com/mocktalk/realtime/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMigrateCreatesReactionTableOnly(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))

	m := db.Migrator()
	assert.True(t, m.HasTable(&models.CommentReactionModel{}))
	assert.True(t, m.HasIndex(&models.CommentReactionModel{}, "uq_tb_comment_reactions_user_id_comment_id"))
	assert.False(t, m.HasTable(&models.CommentRef{}))
	assert.False(t, m.HasTable(&models.ArticleRef{}))
}

func TestResolveLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, resolveLogLevel(&config.AppConfig{Env: "development"}))
	assert.Equal(t, logger.Warn, resolveLogLevel(&config.AppConfig{Env: "production"}))
}
