package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/types"
)

type InteractionRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, rows []*types.EventInteraction) error
	// ListSince returns interactions after the cutoff, oldest first,
	// optionally restricted to the given types.
	ListSince(ctx context.Context, tx *gorm.DB, since time.Time, interactionTypes ...string) ([]*types.EventInteraction, error)
	ListForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.EventInteraction, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.EventInteraction, error)
}

type interactionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInteractionRepo(db *gorm.DB, baseLog *logger.Logger) InteractionRepo {
	return &interactionRepo{
		db:  db,
		log: baseLog.With("repo", "InteractionRepo"),
	}
}

func (r *interactionRepo) CreateBatch(ctx context.Context, tx *gorm.DB, rows []*types.EventInteraction) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&rows).Error
}

func (r *interactionRepo) ListSince(ctx context.Context, tx *gorm.DB, since time.Time, interactionTypes ...string) ([]*types.EventInteraction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Where("occurred_at >= ?", since)
	if len(interactionTypes) > 0 {
		q = q.Where("interaction_type IN ?", interactionTypes)
	}
	var out []*types.EventInteraction
	if err := q.Order("occurred_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *interactionRepo) ListForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.EventInteraction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EventInteraction
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND occurred_at >= ?", userID, since).
		Order("occurred_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *interactionRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.EventInteraction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EventInteraction
	if err := transaction.WithContext(ctx).Order("occurred_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
