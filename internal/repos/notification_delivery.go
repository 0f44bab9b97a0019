package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/types"
)

type NotificationDeliveryRepo interface {
	Exists(ctx context.Context, tx *gorm.DB, dedupeKey string) (bool, error)
	// Record inserts the delivery row. Returns (false, nil) when another
	// writer already holds the dedupe key.
	Record(ctx context.Context, tx *gorm.DB, row *types.NotificationDelivery) (bool, error)
}

type notificationDeliveryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNotificationDeliveryRepo(db *gorm.DB, baseLog *logger.Logger) NotificationDeliveryRepo {
	return &notificationDeliveryRepo{
		db:  db,
		log: baseLog.With("repo", "NotificationDeliveryRepo"),
	}
}

func (r *notificationDeliveryRepo) Exists(ctx context.Context, tx *gorm.DB, dedupeKey string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.NotificationDelivery{}).
		Where("dedupe_key = ?", dedupeKey).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *notificationDeliveryRepo) Record(ctx context.Context, tx *gorm.DB, row *types.NotificationDelivery) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(ctx).Create(row).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	return false, err
}
