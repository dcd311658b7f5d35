// Package testutil provides shared test fixtures.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/llmlab/llmlab/internal/models"
)

// NewTestDB opens an isolated in-memory database with the full schema.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=private"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.APIKey{},
		&models.UsageLog{},
		&models.Tag{},
		&models.Budget{},
		&models.Webhook{},
	))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

// NewTestUser inserts and returns a user for fixtures.
func NewTestUser(t *testing.T, db *gorm.DB, githubID int64) *models.User {
	t.Helper()

	user := &models.User{
		GithubID: githubID,
		Email:    "test@example.com",
		Username: "tester",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
