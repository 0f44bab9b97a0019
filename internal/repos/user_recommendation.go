package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/types"
)

type UserRecommendationRepo interface {
	// ReplaceForUser swaps the user's cached ranking in one transaction
	// so readers never observe a partially written list.
	ReplaceForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, recs []*types.UserRecommendation) error
	ListForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.UserRecommendation, error)
	// LatestGeneratedAt returns the newest generated_at for the user, or
	// the zero time when no rows exist.
	LatestGeneratedAt(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (time.Time, error)
}

type userRecommendationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRecommendationRepo(db *gorm.DB, baseLog *logger.Logger) UserRecommendationRepo {
	return &userRecommendationRepo{
		db:  db,
		log: baseLog.With("repo", "UserRecommendationRepo"),
	}
}

func (r *userRecommendationRepo) ReplaceForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, recs []*types.UserRecommendation) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		if err := inner.Where("user_id = ?", userID).Delete(&types.UserRecommendation{}).Error; err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		return inner.Create(&recs).Error
	})
}

func (r *userRecommendationRepo) ListForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.UserRecommendation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.UserRecommendation
	q := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("rank ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *userRecommendationRepo) LatestGeneratedAt(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (time.Time, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rec types.UserRecommendation
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("generated_at DESC").
		Limit(1).
		Find(&rec).Error
	if err != nil {
		return time.Time{}, err
	}
	if rec.ID == uuid.Nil {
		return time.Time{}, nil
	}
	return rec.GeneratedAt, nil
}
