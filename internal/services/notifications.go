package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/jobs"
	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/repos"
	"github.com/unievents/unievents-backend/internal/types"
)

const (
	NotificationTypeWeeklyDigest = "weekly_digest"
	NotificationTypeFillingFast  = "filling_fast"
)

const (
	defaultDigestTopN               = 8
	defaultFillingFastThresholdAbs  = 5
	defaultFillingFastThresholdRate = 0.2
	defaultFillingFastMaxPerUser    = 3
)

// NotificationService drives the two scheduled email fan-outs: the
// weekly digest of cached recommendations, and the filling-fast seat
// alerts for favorited events. Both write a NotificationDelivery row
// before enqueuing the email, so reruns of the same job are no-ops.
type NotificationService struct {
	users           repos.UserRepo
	events          repos.EventRepo
	favorites       repos.FavoriteRepo
	recommendations repos.UserRecommendationRepo
	deliveries      repos.NotificationDeliveryRepo
	enqueuer        *jobs.Enqueuer
	log             *logger.Logger
}

func NewNotificationService(
	users repos.UserRepo,
	events repos.EventRepo,
	favorites repos.FavoriteRepo,
	recommendations repos.UserRecommendationRepo,
	deliveries repos.NotificationDeliveryRepo,
	enqueuer *jobs.Enqueuer,
	baseLog *logger.Logger,
) *NotificationService {
	return &NotificationService{
		users:           users,
		events:          events,
		favorites:       favorites,
		recommendations: recommendations,
		deliveries:      deliveries,
		enqueuer:        enqueuer,
		log:             baseLog.With("service", "NotificationService"),
	}
}

// WeekKey returns the ISO-week dedupe slot, e.g. "2026-W35".
func WeekKey(now time.Time) string {
	year, week := now.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func DigestDedupeKey(userID uuid.UUID, weekKey string) string {
	return fmt.Sprintf("digest:%s:%s", userID, weekKey)
}

func FillingFastDedupeKey(userID, eventID uuid.UUID) string {
	return fmt.Sprintf("filling_fast:%s:%s", userID, eventID)
}

type DigestStats struct {
	Users  int
	Emails int
}

// SendWeeklyDigest fans the digest out to every opted-in active
// student, at most once per ISO week per user.
func (s *NotificationService) SendWeeklyDigest(ctx context.Context, tx *gorm.DB, topN int) (DigestStats, error) {
	if topN <= 0 {
		topN = defaultDigestTopN
	}
	now := time.Now().UTC()
	weekKey := WeekKey(now)
	stats := DigestStats{}

	students, err := s.users.ListActiveStudents(ctx, tx)
	if err != nil {
		return stats, err
	}
	for _, user := range students {
		if !user.EmailDigestEnabled {
			continue
		}
		stats.Users++

		dedupeKey := DigestDedupeKey(user.ID, weekKey)
		sent, err := s.deliveries.Exists(ctx, tx, dedupeKey)
		if err != nil {
			return stats, err
		}
		if sent {
			continue
		}

		events, err := s.digestEvents(ctx, tx, user, now, topN)
		if err != nil {
			return stats, err
		}
		if len(events) == 0 {
			continue
		}

		lang := normalizeLang(user.LanguagePreference)
		subject, bodyText, bodyHTML := RenderWeeklyDigestEmail(user, events, lang)

		recorded, err := s.deliveries.Record(ctx, tx, &types.NotificationDelivery{
			DedupeKey:        dedupeKey,
			NotificationType: NotificationTypeWeeklyDigest,
			UserID:           user.ID,
			Meta:             datatypes.JSON(types.MustJSON(map[string]any{"week": weekKey, "count": len(events)})),
		})
		if err != nil {
			return stats, err
		}
		if !recorded {
			continue
		}

		_, err = s.enqueuer.SendEmail(ctx, jobs.SendEmailPayload{
			ToEmail:  user.Email,
			Subject:  subject,
			BodyText: bodyText,
			BodyHTML: bodyHTML,
			Context: map[string]any{
				"notification": NotificationTypeWeeklyDigest,
				"user_id":      user.ID.String(),
				"week":         weekKey,
			},
		})
		if err != nil {
			return stats, err
		}
		stats.Emails++
	}

	s.log.Info("weekly digest done", "week", weekKey, "users", stats.Users, "emails", stats.Emails)
	return stats, nil
}

// digestEvents joins the user's cached rankings (rank ascending) to
// events that are still valid to surface, then applies the user's
// hidden-tag and blocked-organizer exclusions.
func (s *NotificationService) digestEvents(ctx context.Context, tx *gorm.DB, user *types.User, now time.Time, topN int) ([]*types.Event, error) {
	recs, err := s.recommendations.ListForUser(ctx, tx, user.ID, 0)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}

	hiddenTagIDs := make(map[uuid.UUID]struct{}, len(user.HiddenTags))
	for _, tag := range user.HiddenTags {
		hiddenTagIDs[tag.ID] = struct{}{}
	}
	blockedOrganizerIDs := make(map[uuid.UUID]struct{}, len(user.BlockedOrganizers))
	for _, org := range user.BlockedOrganizers {
		blockedOrganizerIDs[org.ID] = struct{}{}
	}

	events := make([]*types.Event, 0, topN)
	for _, rec := range recs {
		event, err := s.events.GetByID(ctx, tx, rec.EventID)
		if err != nil {
			return nil, err
		}
		if event == nil || !eventStillValid(event, now) {
			continue
		}
		if _, blocked := blockedOrganizerIDs[event.OwnerID]; blocked {
			continue
		}
		if eventHasHiddenTag(event, hiddenTagIDs) {
			continue
		}
		events = append(events, event)
		if len(events) >= topN {
			break
		}
	}
	return events, nil
}

// eventStillValid mirrors the surfacing rules for digest/alert emails:
// published, publish window open, and not yet started.
func eventStillValid(event *types.Event, now time.Time) bool {
	if event.Status != types.EventStatusPublished {
		return false
	}
	if event.PublishAt != nil && event.PublishAt.After(now) {
		return false
	}
	if event.StartTime == nil || event.StartTime.Before(now) {
		return false
	}
	return true
}

func eventHasHiddenTag(event *types.Event, hiddenTagIDs map[uuid.UUID]struct{}) bool {
	for _, tag := range event.Tags {
		if _, hidden := hiddenTagIDs[tag.ID]; hidden {
			return true
		}
	}
	return false
}

type FillingFastStats struct {
	Pairs  int
	Emails int
}

// SendFillingFastAlerts alerts students about favorited upcoming events
// whose remaining seats dropped under the absolute or ratio threshold.
// Each (user, event) pair is alerted at most once, ever.
func (s *NotificationService) SendFillingFastAlerts(ctx context.Context, tx *gorm.DB, thresholdAbs int, thresholdRatio float64, maxPerUser int) (FillingFastStats, error) {
	if thresholdAbs <= 0 {
		thresholdAbs = defaultFillingFastThresholdAbs
	}
	if thresholdRatio <= 0 {
		thresholdRatio = defaultFillingFastThresholdRate
	}
	if maxPerUser <= 0 {
		maxPerUser = defaultFillingFastMaxPerUser
	}
	now := time.Now().UTC()
	stats := FillingFastStats{}

	favorites, err := s.favorites.ListAll(ctx, tx)
	if err != nil {
		return stats, err
	}
	if len(favorites) == 0 {
		return stats, nil
	}

	eventIDs := make([]uuid.UUID, 0, len(favorites))
	seen := make(map[uuid.UUID]struct{}, len(favorites))
	for _, fav := range favorites {
		if _, ok := seen[fav.EventID]; ok {
			continue
		}
		seen[fav.EventID] = struct{}{}
		eventIDs = append(eventIDs, fav.EventID)
	}
	seatsTaken, err := s.events.SeatsTaken(ctx, tx, eventIDs)
	if err != nil {
		return stats, err
	}

	eventByID := make(map[uuid.UUID]*types.Event, len(eventIDs))
	userByID := make(map[uuid.UUID]*types.User)

	// Deterministic order: user, then event start time, like the list
	// a student would see.
	sort.SliceStable(favorites, func(i, j int) bool {
		if favorites[i].UserID != favorites[j].UserID {
			return favorites[i].UserID.String() < favorites[j].UserID.String()
		}
		return favorites[i].CreatedAt.Before(favorites[j].CreatedAt)
	})

	sentByUser := make(map[uuid.UUID]int)
	for _, fav := range favorites {
		user, ok := userByID[fav.UserID]
		if !ok {
			user, err = s.users.GetByID(ctx, tx, fav.UserID)
			if err != nil {
				return stats, err
			}
			userByID[fav.UserID] = user
		}
		if user == nil || user.Role != types.UserRoleStudent || !user.IsActive || !user.EmailFillingFastEnabled {
			continue
		}

		event, ok := eventByID[fav.EventID]
		if !ok {
			event, err = s.events.GetByID(ctx, tx, fav.EventID)
			if err != nil {
				return stats, err
			}
			eventByID[fav.EventID] = event
		}
		if event == nil || event.MaxSeats == nil || !eventStillValid(event, now) {
			continue
		}
		stats.Pairs++

		if sentByUser[user.ID] >= maxPerUser {
			continue
		}

		blockedOrganizerIDs := make(map[uuid.UUID]struct{}, len(user.BlockedOrganizers))
		for _, org := range user.BlockedOrganizers {
			blockedOrganizerIDs[org.ID] = struct{}{}
		}
		if _, blocked := blockedOrganizerIDs[event.OwnerID]; blocked {
			continue
		}
		hiddenTagIDs := make(map[uuid.UUID]struct{}, len(user.HiddenTags))
		for _, tag := range user.HiddenTags {
			hiddenTagIDs[tag.ID] = struct{}{}
		}
		if eventHasHiddenTag(event, hiddenTagIDs) {
			continue
		}

		available := *event.MaxSeats - seatsTaken[event.ID]
		if available <= 0 {
			continue
		}
		maxSeats := float64(*event.MaxSeats)
		if maxSeats < 1 {
			maxSeats = 1
		}
		if available > thresholdAbs && float64(available)/maxSeats > thresholdRatio {
			continue
		}

		dedupeKey := FillingFastDedupeKey(user.ID, event.ID)
		sent, err := s.deliveries.Exists(ctx, tx, dedupeKey)
		if err != nil {
			return stats, err
		}
		if sent {
			continue
		}

		lang := normalizeLang(user.LanguagePreference)
		subject, bodyText, bodyHTML := RenderFillingFastEmail(user, event, available, lang)

		eventID := event.ID
		recorded, err := s.deliveries.Record(ctx, tx, &types.NotificationDelivery{
			DedupeKey:        dedupeKey,
			NotificationType: NotificationTypeFillingFast,
			UserID:           user.ID,
			EventID:          &eventID,
			Meta:             datatypes.JSON(types.MustJSON(map[string]any{"available_seats": available, "max_seats": *event.MaxSeats})),
		})
		if err != nil {
			return stats, err
		}
		if !recorded {
			continue
		}

		_, err = s.enqueuer.SendEmail(ctx, jobs.SendEmailPayload{
			ToEmail:  user.Email,
			Subject:  subject,
			BodyText: bodyText,
			BodyHTML: bodyHTML,
			Context: map[string]any{
				"notification": NotificationTypeFillingFast,
				"user_id":      user.ID.String(),
				"event_id":     event.ID.String(),
			},
		})
		if err != nil {
			return stats, err
		}
		stats.Emails++
		sentByUser[user.ID]++
	}

	s.log.Info("filling fast alerts done", "pairs", stats.Pairs, "emails", stats.Emails)
	return stats, nil
}
