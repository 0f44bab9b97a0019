package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Registration struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:uq_registration_user_event" json:"user_id"`
	User      *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	EventID   uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:uq_registration_user_event" json:"event_id"`
	Event     *Event         `gorm:"constraint:OnDelete:CASCADE;foreignKey:EventID;references:ID" json:"event,omitempty"`
	Attended  bool           `gorm:"not null;default:false" json:"attended"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Registration) TableName() string { return "registrations" }
