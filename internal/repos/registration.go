package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/types"
)

type RegistrationRepo interface {
	ListForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Registration, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Registration, error)
	// Exists reports whether the user has a live registration for the event.
	Exists(ctx context.Context, tx *gorm.DB, userID, eventID uuid.UUID) (bool, error)
}

type registrationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRegistrationRepo(db *gorm.DB, baseLog *logger.Logger) RegistrationRepo {
	return &registrationRepo{
		db:  db,
		log: baseLog.With("repo", "RegistrationRepo"),
	}
}

func (r *registrationRepo) ListForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Registration, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Registration
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *registrationRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Registration, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Registration
	if err := transaction.WithContext(ctx).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *registrationRepo) Exists(ctx context.Context, tx *gorm.DB, userID, eventID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Registration{}).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
