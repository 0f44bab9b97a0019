package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/types"
)

type EventRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Event, error)
	// ListAll returns every non-deleted event with tags preloaded,
	// drafts included.
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Event, error)
	// ListPublished returns published, non-deleted events with their
	// tags preloaded.
	ListPublished(ctx context.Context, tx *gorm.DB) ([]*types.Event, error)
	// ListUpcoming returns published events starting after now.
	ListUpcoming(ctx context.Context, tx *gorm.DB, now time.Time) ([]*types.Event, error)
	// SeatsTaken returns registration counts keyed by event id.
	SeatsTaken(ctx context.Context, tx *gorm.DB, eventIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return &eventRepo{
		db:  db,
		log: baseLog.With("repo", "EventRepo"),
	}
}

func (r *eventRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var event types.Event
	err := transaction.WithContext(ctx).
		Preload("Tags").
		Where("id = ?", id).
		Limit(1).
		Find(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == uuid.Nil {
		return nil, nil
	}
	return &event, nil
}

func (r *eventRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Event
	err := transaction.WithContext(ctx).
		Preload("Tags").
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *eventRepo) ListPublished(ctx context.Context, tx *gorm.DB) ([]*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Event
	err := transaction.WithContext(ctx).
		Preload("Tags").
		Where("status = ?", types.EventStatusPublished).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *eventRepo) ListUpcoming(ctx context.Context, tx *gorm.DB, now time.Time) ([]*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Event
	err := transaction.WithContext(ctx).
		Preload("Tags").
		Where("status = ? AND start_time IS NOT NULL AND start_time > ?", types.EventStatusPublished, now).
		Order("start_time ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *eventRepo) SeatsTaken(ctx context.Context, tx *gorm.DB, eventIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	counts := make(map[uuid.UUID]int, len(eventIDs))
	if len(eventIDs) == 0 {
		return counts, nil
	}
	type countRow struct {
		EventID uuid.UUID
		N       int
	}
	var rows []countRow
	err := transaction.WithContext(ctx).
		Model(&types.Registration{}).
		Select("event_id, COUNT(*) AS n").
		Where("event_id IN ?", eventIDs).
		Group("event_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.EventID] = row.N
	}
	return counts, nil
}
