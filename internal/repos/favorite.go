package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/types"
)

type FavoriteRepo interface {
	ListForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.FavoriteEvent, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.FavoriteEvent, error)
}

type favoriteRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFavoriteRepo(db *gorm.DB, baseLog *logger.Logger) FavoriteRepo {
	return &favoriteRepo{
		db:  db,
		log: baseLog.With("repo", "FavoriteRepo"),
	}
}

func (r *favoriteRepo) ListForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.FavoriteEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.FavoriteEvent
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *favoriteRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.FavoriteEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.FavoriteEvent
	if err := transaction.WithContext(ctx).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
