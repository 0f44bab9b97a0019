package repos

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/types"
)

type TagRepo interface {
	// GetByNames resolves tag rows by case-insensitive name.
	GetByNames(ctx context.Context, tx *gorm.DB, names []string) ([]*types.Tag, error)
}

type tagRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTagRepo(db *gorm.DB, baseLog *logger.Logger) TagRepo {
	return &tagRepo{
		db:  db,
		log: baseLog.With("repo", "TagRepo"),
	}
}

func (r *tagRepo) GetByNames(ctx context.Context, tx *gorm.DB, names []string) ([]*types.Tag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	lowered := make([]string, 0, len(names))
	for _, name := range names {
		if trimmed := strings.ToLower(strings.TrimSpace(name)); trimmed != "" {
			lowered = append(lowered, trimmed)
		}
	}
	if len(lowered) == 0 {
		return nil, nil
	}
	var out []*types.Tag
	err := transaction.WithContext(ctx).
		Where("LOWER(name) IN ?", lowered).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
