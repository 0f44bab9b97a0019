package types

import (
	"time"

	"github.com/google/uuid"
)

// Rows are owned by the scorer and replaced wholesale per user,
// never updated in place.
type UserRecommendation struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_user_recommendation" json:"user_id"`
	EventID      uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_user_recommendation" json:"event_id"`
	Score        float64   `gorm:"not null" json:"score"`
	Rank         int       `gorm:"not null;index:ix_user_recommendations_user_rank" json:"rank"`
	ModelVersion string    `gorm:"column:model_version" json:"model_version,omitempty"`
	Reason       string    `gorm:"column:reason" json:"reason,omitempty"`
	GeneratedAt  time.Time `gorm:"column:generated_at;not null;index" json:"generated_at"`
}

func (UserRecommendation) TableName() string { return "user_recommendations" }
