package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/types"
)

type RecommenderModelRepo interface {
	Create(ctx context.Context, tx *gorm.DB, model *types.RecommenderModel) error
	Update(ctx context.Context, tx *gorm.DB, model *types.RecommenderModel) error
	// Activate marks the model active and deactivates every other model
	// in the same statement scope, preserving at-most-one-active.
	Activate(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	GetActive(ctx context.Context, tx *gorm.DB) (*types.RecommenderModel, error)
	GetByVersion(ctx context.Context, tx *gorm.DB, version string) (*types.RecommenderModel, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.RecommenderModel, error)
	// Predecessor returns the most recent model created before the given
	// model, or nil when it is the oldest.
	Predecessor(ctx context.Context, tx *gorm.DB, model *types.RecommenderModel) (*types.RecommenderModel, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.RecommenderModel, error)
}

type recommenderModelRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecommenderModelRepo(db *gorm.DB, baseLog *logger.Logger) RecommenderModelRepo {
	return &recommenderModelRepo{
		db:  db,
		log: baseLog.With("repo", "RecommenderModelRepo"),
	}
}

func (r *recommenderModelRepo) Create(ctx context.Context, tx *gorm.DB, model *types.RecommenderModel) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(model).Error
}

func (r *recommenderModelRepo) Update(ctx context.Context, tx *gorm.DB, model *types.RecommenderModel) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(model).Error
}

func (r *recommenderModelRepo) Activate(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		if err := inner.Model(&types.RecommenderModel{}).
			Where("is_active = ? AND id <> ?", true, id).
			Update("is_active", false).Error; err != nil {
			return err
		}
		res := inner.Model(&types.RecommenderModel{}).
			Where("id = ?", id).
			Update("is_active", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *recommenderModelRepo) GetActive(ctx context.Context, tx *gorm.DB) (*types.RecommenderModel, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var model types.RecommenderModel
	err := transaction.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Limit(1).
		Find(&model).Error
	if err != nil {
		return nil, err
	}
	if model.ID == uuid.Nil {
		return nil, nil
	}
	return &model, nil
}

func (r *recommenderModelRepo) GetByVersion(ctx context.Context, tx *gorm.DB, version string) (*types.RecommenderModel, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var model types.RecommenderModel
	err := transaction.WithContext(ctx).
		Where("model_version = ?", version).
		Limit(1).
		Find(&model).Error
	if err != nil {
		return nil, err
	}
	if model.ID == uuid.Nil {
		return nil, nil
	}
	return &model, nil
}

func (r *recommenderModelRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.RecommenderModel, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var model types.RecommenderModel
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&model).Error
	if err != nil {
		return nil, err
	}
	if model.ID == uuid.Nil {
		return nil, nil
	}
	return &model, nil
}

func (r *recommenderModelRepo) Predecessor(ctx context.Context, tx *gorm.DB, model *types.RecommenderModel) (*types.RecommenderModel, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var prev types.RecommenderModel
	err := transaction.WithContext(ctx).
		Where("created_at < ? OR (created_at = ? AND id < ?)", model.CreatedAt, model.CreatedAt, model.ID).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&prev).Error
	if err != nil {
		return nil, err
	}
	if prev.ID == uuid.Nil {
		return nil, nil
	}
	return &prev, nil
}

func (r *recommenderModelRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.RecommenderModel, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.RecommenderModel
	if err := transaction.WithContext(ctx).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
