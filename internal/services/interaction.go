package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/jobs"
	"github.com/unievents/unievents-backend/internal/platform/envutil"
	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/repos"
	"github.com/unievents/unievents-backend/internal/types"
)

type RealtimeRefreshConfig struct {
	Enabled     bool
	MinInterval time.Duration
	TopN        int
}

func RealtimeRefreshConfigFromEnv() RealtimeRefreshConfig {
	return RealtimeRefreshConfig{
		Enabled:     envutil.Bool("REALTIME_REFRESH_ENABLED", true),
		MinInterval: envutil.Duration("REALTIME_REFRESH_MIN_INTERVAL", 10*time.Minute),
		TopN:        envutil.Int("REALTIME_REFRESH_TOP_N", 50),
	}
}

// InteractionService is the ingest path for the behavioral log. Writes
// are append-only; the online learner and the refresh gate hang off the
// same batch so one ingest call updates interests and, at most once per
// interval, schedules a score-only recompute for the user.
type InteractionService struct {
	cfg             RealtimeRefreshConfig
	interactions    repos.InteractionRepo
	recommendations repos.UserRecommendationRepo
	learner         *OnlineLearner
	enqueuer        *jobs.Enqueuer
	log             *logger.Logger
}

func NewInteractionService(
	cfg RealtimeRefreshConfig,
	interactions repos.InteractionRepo,
	recommendations repos.UserRecommendationRepo,
	learner *OnlineLearner,
	enqueuer *jobs.Enqueuer,
	baseLog *logger.Logger,
) *InteractionService {
	return &InteractionService{
		cfg:             cfg,
		interactions:    interactions,
		recommendations: recommendations,
		learner:         learner,
		enqueuer:        enqueuer,
		log:             baseLog.With("service", "InteractionService"),
	}
}

// Ingest records a batch of interactions. Online-learning updates run
// synchronously in the same call; a failed refresh enqueue is logged
// but does not fail the ingest.
func (s *InteractionService) Ingest(ctx context.Context, tx *gorm.DB, rows []*types.EventInteraction) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.OccurredAt.IsZero() {
			row.OccurredAt = now
		}
	}
	if err := s.interactions.CreateBatch(ctx, tx, rows); err != nil {
		return err
	}

	for userID, batch := range groupByUser(rows) {
		if s.learner != nil {
			if err := s.learner.Apply(ctx, tx, userID, batch); err != nil {
				return err
			}
		}
		if s.shouldRefresh(batch) {
			s.maybeRefresh(ctx, tx, userID)
		}
	}
	return nil
}

func groupByUser(rows []*types.EventInteraction) map[uuid.UUID][]*types.EventInteraction {
	byUser := make(map[uuid.UUID][]*types.EventInteraction)
	for _, row := range rows {
		if row.UserID == nil {
			continue
		}
		byUser[*row.UserID] = append(byUser[*row.UserID], row)
	}
	return byUser
}

// shouldRefresh is true when the batch carries at least one signal that
// can move rankings. Impressions alone never trigger a refresh.
func (s *InteractionService) shouldRefresh(batch []*types.EventInteraction) bool {
	for _, row := range batch {
		switch row.InteractionType {
		case types.InteractionClick, types.InteractionView, types.InteractionDwell,
			types.InteractionShare, types.InteractionFavorite, types.InteractionRegister,
			types.InteractionUnregister, types.InteractionSearch, types.InteractionFilter:
			return true
		}
	}
	return false
}

// maybeRefresh enqueues a score-only refresh unless the user's cached
// rankings are newer than the minimum interval.
func (s *InteractionService) maybeRefresh(ctx context.Context, tx *gorm.DB, userID uuid.UUID) {
	if !s.cfg.Enabled || s.enqueuer == nil {
		return
	}
	latest, err := s.recommendations.LatestGeneratedAt(ctx, tx, userID)
	if err != nil {
		s.log.Warn("refresh gate lookup failed", "user_id", userID, "error", err)
		return
	}
	if !latest.IsZero() && time.Since(latest) < s.cfg.MinInterval {
		return
	}
	topN := s.cfg.TopN
	if _, err := s.enqueuer.RefreshUser(ctx, userID, &topN); err != nil {
		s.log.Warn("refresh enqueue failed", "user_id", userID, "error", err)
	}
}
