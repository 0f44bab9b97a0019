package services

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/platform/envutil"
	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/recommender"
	"github.com/unievents/unievents-backend/internal/repos"
	"github.com/unievents/unievents-backend/internal/types"
)

type OnlineLearningConfig struct {
	Enabled               bool
	HalfLife              time.Duration
	MaxScore              float64
	DwellThresholdSeconds float64
}

func OnlineLearningConfigFromEnv() OnlineLearningConfig {
	return OnlineLearningConfig{
		Enabled:               envutil.Bool("ONLINE_LEARNING_ENABLED", true),
		HalfLife:              time.Duration(envutil.Float("ONLINE_LEARNING_HALF_LIFE_HOURS", 168)) * time.Hour,
		MaxScore:              envutil.Float("ONLINE_LEARNING_MAX_SCORE", 10.0),
		DwellThresholdSeconds: envutil.Float("ONLINE_LEARNING_DWELL_THRESHOLD_SECONDS", 10),
	}
}

// OnlineLearner applies decaying implicit-interest updates inline with
// interaction ingestion. It touches only the keys implied by the batch,
// never a full table.
type OnlineLearner struct {
	cfg      OnlineLearningConfig
	implicit repos.ImplicitInterestRepo
	events   repos.EventRepo
	users    repos.UserRepo
	tags     repos.TagRepo
	log      *logger.Logger
}

func NewOnlineLearner(
	cfg OnlineLearningConfig,
	implicit repos.ImplicitInterestRepo,
	events repos.EventRepo,
	users repos.UserRepo,
	tags repos.TagRepo,
	baseLog *logger.Logger,
) *OnlineLearner {
	return &OnlineLearner{
		cfg:      cfg,
		implicit: implicit,
		events:   events,
		users:    users,
		tags:     tags,
		log:      baseLog.With("service", "OnlineLearner"),
	}
}

// interactionSignalWeight maps an interaction to its implicit-interest
// delta. Dwell below the threshold carries no signal; above it the
// weight scales with dwell seconds toward 1.2.
func (s *OnlineLearner) interactionSignalWeight(row *types.EventInteraction) float64 {
	switch row.InteractionType {
	case types.InteractionClick:
		return 1.0
	case types.InteractionView:
		return 0.6
	case types.InteractionShare:
		return 1.3
	case types.InteractionFavorite:
		return 2.0
	case types.InteractionRegister:
		return 2.5
	case types.InteractionDwell:
		meta := row.MetaMap()
		if meta == nil {
			return 0
		}
		seconds, ok := meta["seconds"].(float64)
		if !ok || seconds < s.cfg.DwellThresholdSeconds {
			return 0
		}
		weight := 0.6 + seconds/120.0*0.6
		if weight > 1.2 {
			weight = 1.2
		}
		return weight
	default:
		return 0
	}
}

// Apply processes one ingested batch for an identified user.
func (s *OnlineLearner) Apply(ctx context.Context, tx *gorm.DB, userID uuid.UUID, batch []*types.EventInteraction) error {
	if !s.cfg.Enabled || len(batch) == 0 {
		return nil
	}
	now := time.Now().UTC()

	hiddenTagIDs, err := s.users.HiddenTagIDs(ctx, tx, userID)
	if err != nil {
		return err
	}

	for _, row := range batch {
		switch row.InteractionType {
		case types.InteractionSearch, types.InteractionFilter:
			if err := s.applyWeakSignals(ctx, tx, userID, row, hiddenTagIDs, now); err != nil {
				return err
			}
			continue
		}

		weight := s.interactionSignalWeight(row)
		if weight <= 0 || row.EventID == nil {
			continue
		}
		event, err := s.events.GetByID(ctx, tx, *row.EventID)
		if err != nil {
			return err
		}
		if event == nil {
			continue
		}

		for _, tag := range event.Tags {
			// Hidden tags never gain implicit weight.
			if _, hidden := hiddenTagIDs[tag.ID]; hidden {
				continue
			}
			if err := s.bumpTag(ctx, tx, userID, tag.ID, weight, now); err != nil {
				return err
			}
		}
		if event.Category != "" {
			if err := s.bumpCategory(ctx, tx, userID, event.Category, weight, now); err != nil {
				return err
			}
		}
		if city := recommender.NormalizeCity(event.City); city != "" {
			if err := s.bumpCity(ctx, tx, userID, city, weight, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyWeakSignals handles search/filter interactions, whose metadata
// names tags/category/city without an event. Weight is fixed at 0.2.
func (s *OnlineLearner) applyWeakSignals(ctx context.Context, tx *gorm.DB, userID uuid.UUID, row *types.EventInteraction, hiddenTagIDs map[uuid.UUID]struct{}, now time.Time) error {
	const weakWeight = 0.2
	meta := row.MetaMap()
	if meta == nil {
		return nil
	}

	if raw, ok := meta["tags"].([]any); ok && len(raw) > 0 {
		names := make([]string, 0, len(raw))
		for _, v := range raw {
			if name, ok := v.(string); ok {
				names = append(names, name)
			}
		}
		tags, err := s.tags.GetByNames(ctx, tx, names)
		if err != nil {
			return err
		}
		for _, tag := range tags {
			if _, hidden := hiddenTagIDs[tag.ID]; hidden {
				continue
			}
			if err := s.bumpTag(ctx, tx, userID, tag.ID, weakWeight, now); err != nil {
				return err
			}
		}
	}
	if category, ok := meta["category"].(string); ok && category != "" {
		if err := s.bumpCategory(ctx, tx, userID, category, weakWeight, now); err != nil {
			return err
		}
	}
	if city, ok := meta["city"].(string); ok {
		if normalized := recommender.NormalizeCity(city); normalized != "" {
			if err := s.bumpCity(ctx, tx, userID, normalized, weakWeight, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecayedScore applies the lazy exponential half-life decay. It is the
// only place decay happens: scores are never swept in the background.
func DecayedScore(score float64, lastSeenAt, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return score
	}
	elapsed := now.Sub(lastSeenAt)
	if elapsed <= 0 {
		return score
	}
	return score * math.Exp(-math.Ln2/halfLife.Seconds()*elapsed.Seconds())
}

func (s *OnlineLearner) nextScore(current float64, lastSeenAt time.Time, delta float64, now time.Time) float64 {
	next := DecayedScore(current, lastSeenAt, now, s.cfg.HalfLife) + delta
	if s.cfg.MaxScore > 0 && next > s.cfg.MaxScore {
		next = s.cfg.MaxScore
	}
	return next
}

func (s *OnlineLearner) bumpTag(ctx context.Context, tx *gorm.DB, userID, tagID uuid.UUID, delta float64, now time.Time) error {
	row, err := s.implicit.GetTag(ctx, tx, userID, tagID)
	if err != nil {
		return err
	}
	if row == nil {
		row = &types.UserImplicitInterestTag{
			UserID:     userID,
			TagID:      tagID,
			Score:      math.Min(delta, s.cfg.MaxScore),
			LastSeenAt: now,
		}
		return s.implicit.SaveTag(ctx, tx, row)
	}
	row.Score = s.nextScore(row.Score, row.LastSeenAt, delta, now)
	row.LastSeenAt = now
	return s.implicit.SaveTag(ctx, tx, row)
}

func (s *OnlineLearner) bumpCategory(ctx context.Context, tx *gorm.DB, userID uuid.UUID, category string, delta float64, now time.Time) error {
	row, err := s.implicit.GetCategory(ctx, tx, userID, category)
	if err != nil {
		return err
	}
	if row == nil {
		row = &types.UserImplicitInterestCategory{
			UserID:     userID,
			Category:   category,
			Score:      math.Min(delta, s.cfg.MaxScore),
			LastSeenAt: now,
		}
		return s.implicit.SaveCategory(ctx, tx, row)
	}
	row.Score = s.nextScore(row.Score, row.LastSeenAt, delta, now)
	row.LastSeenAt = now
	return s.implicit.SaveCategory(ctx, tx, row)
}

func (s *OnlineLearner) bumpCity(ctx context.Context, tx *gorm.DB, userID uuid.UUID, city string, delta float64, now time.Time) error {
	row, err := s.implicit.GetCity(ctx, tx, userID, city)
	if err != nil {
		return err
	}
	if row == nil {
		row = &types.UserImplicitInterestCity{
			UserID:     userID,
			City:       city,
			Score:      math.Min(delta, s.cfg.MaxScore),
			LastSeenAt: now,
		}
		return s.implicit.SaveCity(ctx, tx, row)
	}
	row.Score = s.nextScore(row.Score, row.LastSeenAt, delta, now)
	row.LastSeenAt = now
	return s.implicit.SaveCity(ctx, tx, row)
}
