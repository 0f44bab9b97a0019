package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// One row per (notification, recipient) delivery; the dedupe key keeps
// digest/alert emails from being sent twice for the same slot.
type NotificationDelivery struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DedupeKey        string         `gorm:"column:dedupe_key;uniqueIndex;not null" json:"dedupe_key"`
	NotificationType string         `gorm:"column:notification_type;not null;index" json:"notification_type"`
	UserID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	EventID          *uuid.UUID     `gorm:"type:uuid;index" json:"event_id,omitempty"`
	Meta             datatypes.JSON `gorm:"type:jsonb;column:meta" json:"meta,omitempty"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
}

func (NotificationDelivery) TableName() string { return "notification_deliveries" }
