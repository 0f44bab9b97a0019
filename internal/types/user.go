package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	UserRoleStudent   = "student"
	UserRoleOrganizer = "organizer"
	UserRoleAdmin     = "admin"
)

type User struct {
	ID                      uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Email                   string         `gorm:"uniqueIndex;not null" json:"email"`
	Role                    string         `gorm:"not null;index" json:"role"`
	City                    string         `gorm:"column:city" json:"city,omitempty"`
	LanguagePreference      string         `gorm:"column:language_preference;default:system" json:"language_preference"`
	IsActive                bool           `gorm:"not null;default:true" json:"is_active"`
	EmailDigestEnabled      bool           `gorm:"not null;default:false" json:"email_digest_enabled"`
	EmailFillingFastEnabled bool           `gorm:"not null;default:false" json:"email_filling_fast_enabled"`
	InterestTags            []*Tag         `gorm:"many2many:user_interest_tags" json:"interest_tags,omitempty"`
	HiddenTags              []*Tag         `gorm:"many2many:user_hidden_tags" json:"hidden_tags,omitempty"`
	BlockedOrganizers       []*User        `gorm:"many2many:user_blocked_organizers;joinForeignKey:UserID;joinReferences:OrganizerID" json:"blocked_organizers,omitempty"`
	CreatedAt               time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt               gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "users" }
