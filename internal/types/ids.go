package types

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Primary keys are assigned in-process so inserts behave the same on
// postgres and the sqlite test databases.

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (u *User) BeforeCreate(_ *gorm.DB) error          { ensureID(&u.ID); return nil }
func (t *Tag) BeforeCreate(_ *gorm.DB) error           { ensureID(&t.ID); return nil }
func (e *Event) BeforeCreate(_ *gorm.DB) error         { ensureID(&e.ID); return nil }
func (r *Registration) BeforeCreate(_ *gorm.DB) error  { ensureID(&r.ID); return nil }
func (f *FavoriteEvent) BeforeCreate(_ *gorm.DB) error { ensureID(&f.ID); return nil }
func (j *BackgroundJob) BeforeCreate(_ *gorm.DB) error { ensureID(&j.ID); return nil }
func (m *RecommenderModel) BeforeCreate(_ *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
func (r *UserRecommendation) BeforeCreate(_ *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
func (t *UserImplicitInterestTag) BeforeCreate(_ *gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
func (c *UserImplicitInterestCategory) BeforeCreate(_ *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
func (c *UserImplicitInterestCity) BeforeCreate(_ *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
func (i *EventInteraction) BeforeCreate(_ *gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
func (n *NotificationDelivery) BeforeCreate(_ *gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
