package types

import (
	"time"

	"github.com/google/uuid"
)

type FavoriteEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_favorite_event" json:"user_id"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	EventID   uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_favorite_event" json:"event_id"`
	Event     *Event    `gorm:"constraint:OnDelete:CASCADE;foreignKey:EventID;references:ID" json:"event,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (FavoriteEvent) TableName() string { return "favorite_events" }
