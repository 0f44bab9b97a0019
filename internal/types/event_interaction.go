package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	InteractionImpression = "impression"
	InteractionClick      = "click"
	InteractionView       = "view"
	InteractionDwell      = "dwell"
	InteractionShare      = "share"
	InteractionFavorite   = "favorite"
	InteractionRegister   = "register"
	InteractionUnregister = "unregister"
	InteractionSearch     = "search"
	InteractionFilter     = "filter"
)

// Append-only behavioral log. UserID/EventID are nullable: anonymous
// traffic and query-level events (search/filter) have no event attached.
type EventInteraction struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          *uuid.UUID     `gorm:"type:uuid;index;index:ix_event_interactions_user_occurred" json:"user_id,omitempty"`
	EventID         *uuid.UUID     `gorm:"type:uuid;index" json:"event_id,omitempty"`
	InteractionType string         `gorm:"column:interaction_type;not null;index" json:"interaction_type"`
	OccurredAt      time.Time      `gorm:"column:occurred_at;not null;index;index:ix_event_interactions_user_occurred" json:"occurred_at"`
	Meta            datatypes.JSON `gorm:"type:jsonb;column:meta" json:"meta,omitempty"`
}

func (EventInteraction) TableName() string { return "event_interactions" }

// MetaValue returns a string field from the free-form meta object.
func (i *EventInteraction) MetaValue(key string) (string, bool) {
	m := i.MetaMap()
	if m == nil {
		return "", false
	}
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (i *EventInteraction) MetaMap() map[string]any {
	if len(i.Meta) == 0 {
		return nil
	}
	var m map[string]any
	if err := jsonUnmarshal(i.Meta, &m); err != nil {
		return nil
	}
	return m
}
