package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusArchived  = "archived"
)

type Event struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	Owner     *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:OwnerID;references:ID" json:"owner,omitempty"`
	Title     string         `gorm:"not null" json:"title"`
	Status    string         `gorm:"not null;index;default:draft" json:"status"`
	Category  string         `gorm:"column:category" json:"category,omitempty"`
	City      string         `gorm:"column:city" json:"city,omitempty"`
	MaxSeats  *int           `gorm:"column:max_seats" json:"max_seats,omitempty"`
	PublishAt *time.Time     `gorm:"column:publish_at;index" json:"publish_at,omitempty"`
	StartTime *time.Time     `gorm:"column:start_time;index" json:"start_time,omitempty"`
	Tags      []*Tag         `gorm:"many2many:event_tags" json:"tags,omitempty"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Event) TableName() string { return "events" }
