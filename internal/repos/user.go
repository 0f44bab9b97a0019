package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/types"
)

type UserRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.User, error)
	// ListActiveStudents returns non-deleted active student accounts with
	// preference associations preloaded.
	ListActiveStudents(ctx context.Context, tx *gorm.DB) ([]*types.User, error)
	HiddenTagIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (map[uuid.UUID]struct{}, error)
	BlockedOrganizerIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (map[uuid.UUID]struct{}, error)
	InterestTagIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (map[uuid.UUID]struct{}, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{
		db:  db,
		log: baseLog.With("repo", "UserRepo"),
	}
}

func (r *userRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var user types.User
	err := transaction.WithContext(ctx).
		Preload("InterestTags").
		Preload("HiddenTags").
		Preload("BlockedOrganizers").
		Where("id = ?", id).
		Limit(1).
		Find(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == uuid.Nil {
		return nil, nil
	}
	return &user, nil
}

func (r *userRepo) ListActiveStudents(ctx context.Context, tx *gorm.DB) ([]*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.User
	err := transaction.WithContext(ctx).
		Preload("InterestTags").
		Preload("HiddenTags").
		Preload("BlockedOrganizers").
		Where("role = ? AND is_active = ?", types.UserRoleStudent, true).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *userRepo) HiddenTagIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	return r.joinIDs(ctx, tx, "user_hidden_tags", "tag_id", userID)
}

func (r *userRepo) BlockedOrganizerIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	return r.joinIDs(ctx, tx, "user_blocked_organizers", "organizer_id", userID)
}

func (r *userRepo) InterestTagIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	return r.joinIDs(ctx, tx, "user_interest_tags", "tag_id", userID)
}

func (r *userRepo) joinIDs(ctx context.Context, tx *gorm.DB, table, column string, userID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	err := transaction.WithContext(ctx).
		Table(table).
		Where("user_id = ?", userID).
		Pluck(column, &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
