// Package testutil provides throwaway sqlite databases for repo and
// service tests so they exercise real gorm queries without postgres.
package testutil

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/types"
)

func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&types.User{},
		&types.Tag{},
		&types.Event{},
		&types.Registration{},
		&types.FavoriteEvent{},
		&types.BackgroundJob{},
		&types.RecommenderModel{},
		&types.UserRecommendation{},
		&types.UserImplicitInterestTag{},
		&types.UserImplicitInterestCategory{},
		&types.UserImplicitInterestCity{},
		&types.EventInteraction{},
		&types.NotificationDelivery{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func NewLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}
