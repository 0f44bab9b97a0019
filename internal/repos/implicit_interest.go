package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/types"
)

// ImplicitInterestRepo reads and writes the three implicit interest
// tables. Decay math lives in the online learning service; this repo is
// plain row access.
type ImplicitInterestRepo interface {
	GetTag(ctx context.Context, tx *gorm.DB, userID, tagID uuid.UUID) (*types.UserImplicitInterestTag, error)
	SaveTag(ctx context.Context, tx *gorm.DB, row *types.UserImplicitInterestTag) error
	ListTags(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.UserImplicitInterestTag, error)

	GetCategory(ctx context.Context, tx *gorm.DB, userID uuid.UUID, category string) (*types.UserImplicitInterestCategory, error)
	SaveCategory(ctx context.Context, tx *gorm.DB, row *types.UserImplicitInterestCategory) error
	ListCategories(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.UserImplicitInterestCategory, error)

	GetCity(ctx context.Context, tx *gorm.DB, userID uuid.UUID, city string) (*types.UserImplicitInterestCity, error)
	SaveCity(ctx context.Context, tx *gorm.DB, row *types.UserImplicitInterestCity) error
	ListCities(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.UserImplicitInterestCity, error)
}

type implicitInterestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImplicitInterestRepo(db *gorm.DB, baseLog *logger.Logger) ImplicitInterestRepo {
	return &implicitInterestRepo{
		db:  db,
		log: baseLog.With("repo", "ImplicitInterestRepo"),
	}
}

func (r *implicitInterestRepo) GetTag(ctx context.Context, tx *gorm.DB, userID, tagID uuid.UUID) (*types.UserImplicitInterestTag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.UserImplicitInterestTag
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND tag_id = ?", userID, tagID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *implicitInterestRepo) SaveTag(ctx context.Context, tx *gorm.DB, row *types.UserImplicitInterestTag) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(row).Error
}

func (r *implicitInterestRepo) ListTags(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.UserImplicitInterestTag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.UserImplicitInterestTag
	if err := transaction.WithContext(ctx).Preload("Tag").Where("user_id = ?", userID).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *implicitInterestRepo) GetCategory(ctx context.Context, tx *gorm.DB, userID uuid.UUID, category string) (*types.UserImplicitInterestCategory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.UserImplicitInterestCategory
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND category = ?", userID, category).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *implicitInterestRepo) SaveCategory(ctx context.Context, tx *gorm.DB, row *types.UserImplicitInterestCategory) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(row).Error
}

func (r *implicitInterestRepo) ListCategories(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.UserImplicitInterestCategory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.UserImplicitInterestCategory
	if err := transaction.WithContext(ctx).Where("user_id = ?", userID).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *implicitInterestRepo) GetCity(ctx context.Context, tx *gorm.DB, userID uuid.UUID, city string) (*types.UserImplicitInterestCity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.UserImplicitInterestCity
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND city = ?", userID, city).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *implicitInterestRepo) SaveCity(ctx context.Context, tx *gorm.DB, row *types.UserImplicitInterestCity) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(row).Error
}

func (r *implicitInterestRepo) ListCities(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.UserImplicitInterestCity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.UserImplicitInterestCity
	if err := transaction.WithContext(ctx).Where("user_id = ?", userID).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
