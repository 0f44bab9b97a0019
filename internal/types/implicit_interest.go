package types

import (
	"time"

	"github.com/google/uuid"
)

// Implicit interest scores decay toward zero but rows are never deleted.
// Decay is applied lazily, only when a new signal touches the same key.

type UserImplicitInterestTag struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_user_implicit_interest_tag" json:"user_id"`
	TagID      uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_user_implicit_interest_tag" json:"tag_id"`
	Tag        *Tag      `gorm:"constraint:OnDelete:CASCADE;foreignKey:TagID;references:ID" json:"tag,omitempty"`
	Score      float64   `gorm:"not null;default:1.0" json:"score"`
	LastSeenAt time.Time `gorm:"column:last_seen_at;not null;index" json:"last_seen_at"`
}

func (UserImplicitInterestTag) TableName() string { return "user_implicit_interest_tags" }

type UserImplicitInterestCategory struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_user_implicit_interest_category" json:"user_id"`
	Category   string    `gorm:"not null;index;uniqueIndex:uq_user_implicit_interest_category" json:"category"`
	Score      float64   `gorm:"not null;default:1.0" json:"score"`
	LastSeenAt time.Time `gorm:"column:last_seen_at;not null;index" json:"last_seen_at"`
}

func (UserImplicitInterestCategory) TableName() string { return "user_implicit_interest_categories" }

type UserImplicitInterestCity struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_user_implicit_interest_city" json:"user_id"`
	City       string    `gorm:"not null;index;uniqueIndex:uq_user_implicit_interest_city" json:"city"`
	Score      float64   `gorm:"not null;default:1.0" json:"score"`
	LastSeenAt time.Time `gorm:"column:last_seen_at;not null;index" json:"last_seen_at"`
}

func (UserImplicitInterestCity) TableName() string { return "user_implicit_interest_cities" }
