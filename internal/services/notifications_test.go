package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/clients/redis"
	"github.com/unievents/unievents-backend/internal/jobs"
	"github.com/unievents/unievents-backend/internal/repos"
	"github.com/unievents/unievents-backend/internal/testutil"
	"github.com/unievents/unievents-backend/internal/types"
)

type notificationFixture struct {
	db      *gorm.DB
	service *NotificationService
}

func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()
	db := testutil.OpenDB(t)
	log := testutil.NewLogger(t)
	enqueuer := jobs.NewEnqueuer(repos.NewJobRepo(db, log), redis.NewNoopJobEventBus(), log)
	service := NewNotificationService(
		repos.NewUserRepo(db, log),
		repos.NewEventRepo(db, log),
		repos.NewFavoriteRepo(db, log),
		repos.NewUserRecommendationRepo(db, log),
		repos.NewNotificationDeliveryRepo(db, log),
		enqueuer,
		log,
	)
	return &notificationFixture{db: db, service: service}
}

func (f *notificationFixture) create(t *testing.T, value any) {
	t.Helper()
	if err := f.db.Create(value).Error; err != nil {
		t.Fatalf("create %T: %v", value, err)
	}
}

func (f *notificationFixture) student(t *testing.T, email string, digest, fillingFast bool) *types.User {
	t.Helper()
	u := &types.User{
		Email:                   email,
		Role:                    types.UserRoleStudent,
		IsActive:                true,
		EmailDigestEnabled:      digest,
		EmailFillingFastEnabled: fillingFast,
	}
	f.create(t, u)
	return u
}

func (f *notificationFixture) upcomingEvent(t *testing.T, title string, maxSeats *int) *types.Event {
	t.Helper()
	owner := &types.User{Email: uuid.NewString() + "@org.example", Role: types.UserRoleOrganizer, IsActive: true}
	f.create(t, owner)
	start := time.Now().UTC().Add(5 * 24 * time.Hour)
	ev := &types.Event{OwnerID: owner.ID, Title: title, Status: types.EventStatusPublished, StartTime: &start, MaxSeats: maxSeats}
	f.create(t, ev)
	return ev
}

func (f *notificationFixture) recommend(t *testing.T, userID, eventID uuid.UUID, rank int) {
	t.Helper()
	f.create(t, &types.UserRecommendation{
		UserID:       userID,
		EventID:      eventID,
		Score:        1.0 / float64(rank),
		Rank:         rank,
		ModelVersion: "ml-v1-test",
		Reason:       "Recomandat pentru tine",
		GeneratedAt:  time.Now().UTC(),
	})
}

func (f *notificationFixture) emailJobCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&types.BackgroundJob{}).
		Where("job_type = ?", types.JobTypeSendEmail).
		Count(&n).Error; err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	return n
}

func TestSendWeeklyDigestOncePerWeek(t *testing.T) {
	f := newNotificationFixture(t)
	user := f.student(t, "digest@uni.example", true, false)
	ev := f.upcomingEvent(t, "AI Night", nil)
	f.recommend(t, user.ID, ev.ID, 1)

	stats, err := f.service.SendWeeklyDigest(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if stats.Users != 1 || stats.Emails != 1 {
		t.Fatalf("stats = %+v, want 1 user, 1 email", stats)
	}
	if n := f.emailJobCount(t); n != 1 {
		t.Fatalf("email jobs = %d, want 1", n)
	}

	// A rerun in the same ISO week sends nothing.
	stats, err = f.service.SendWeeklyDigest(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if stats.Emails != 0 {
		t.Fatalf("rerun sent %d emails", stats.Emails)
	}
	if n := f.emailJobCount(t); n != 1 {
		t.Fatalf("email jobs after rerun = %d, want 1", n)
	}
}

func TestSendWeeklyDigestSkipsOptedOutAndEmpty(t *testing.T) {
	f := newNotificationFixture(t)
	optedOut := f.student(t, "quiet@uni.example", false, false)
	f.student(t, "fresh@uni.example", true, false)
	ev := f.upcomingEvent(t, "Party", nil)
	f.recommend(t, optedOut.ID, ev.ID, 1)

	stats, err := f.service.SendWeeklyDigest(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if stats.Emails != 0 {
		t.Fatalf("emails = %d, want 0", stats.Emails)
	}
	if n := f.emailJobCount(t); n != 0 {
		t.Fatalf("email jobs = %d, want 0", n)
	}
}

func TestSendWeeklyDigestDropsStaleRecommendations(t *testing.T) {
	f := newNotificationFixture(t)
	user := f.student(t, "stale@uni.example", true, false)

	past := time.Now().UTC().Add(-24 * time.Hour)
	owner := &types.User{Email: uuid.NewString() + "@org.example", Role: types.UserRoleOrganizer, IsActive: true}
	f.create(t, owner)
	started := &types.Event{OwnerID: owner.ID, Title: "Yesterday", Status: types.EventStatusPublished, StartTime: &past}
	f.create(t, started)
	draft := f.upcomingEvent(t, "Draft", nil)
	if err := f.db.Model(draft).Update("status", types.EventStatusDraft).Error; err != nil {
		t.Fatalf("update: %v", err)
	}

	f.recommend(t, user.ID, started.ID, 1)
	f.recommend(t, user.ID, draft.ID, 2)

	stats, err := f.service.SendWeeklyDigest(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if stats.Emails != 0 {
		t.Fatalf("digest sent for stale events: %+v", stats)
	}
}

func TestSendFillingFastAlertThresholds(t *testing.T) {
	f := newNotificationFixture(t)
	user := f.student(t, "alert@uni.example", false, true)

	twenty := 20
	nearlyFull := f.upcomingEvent(t, "Nearly Full", &twenty)
	roomy := f.upcomingEvent(t, "Roomy", &twenty)
	f.create(t, &types.FavoriteEvent{UserID: user.ID, EventID: nearlyFull.ID})
	f.create(t, &types.FavoriteEvent{UserID: user.ID, EventID: roomy.ID})

	// 17 of 20 seats taken: 3 left trips the absolute threshold of 5.
	for i := 0; i < 17; i++ {
		other := f.student(t, uuid.NewString()+"@uni.example", false, false)
		f.create(t, &types.Registration{UserID: other.ID, EventID: nearlyFull.ID})
	}

	stats, err := f.service.SendFillingFastAlerts(context.Background(), nil, 0, 0, 0)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if stats.Pairs != 2 {
		t.Fatalf("pairs = %d, want 2", stats.Pairs)
	}
	if stats.Emails != 1 {
		t.Fatalf("emails = %d, want only the nearly-full alert", stats.Emails)
	}

	var delivery types.NotificationDelivery
	if err := f.db.Where("dedupe_key = ?", FillingFastDedupeKey(user.ID, nearlyFull.ID)).First(&delivery).Error; err != nil {
		t.Fatalf("delivery row: %v", err)
	}

	// The pair never alerts twice, even once more seats fill.
	stats, err = f.service.SendFillingFastAlerts(context.Background(), nil, 0, 0, 0)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if stats.Emails != 0 {
		t.Fatalf("rerun sent %d emails", stats.Emails)
	}
}

func TestSendFillingFastRatioThreshold(t *testing.T) {
	f := newNotificationFixture(t)
	user := f.student(t, "ratio@uni.example", false, true)

	hundred := 100
	ev := f.upcomingEvent(t, "Big Hall", &hundred)
	f.create(t, &types.FavoriteEvent{UserID: user.ID, EventID: ev.ID})

	// 85 of 100 taken: 15 left is above abs 5 but 0.15 <= ratio 0.2.
	for i := 0; i < 85; i++ {
		other := f.student(t, uuid.NewString()+"@uni.example", false, false)
		f.create(t, &types.Registration{UserID: other.ID, EventID: ev.ID})
	}

	stats, err := f.service.SendFillingFastAlerts(context.Background(), nil, 0, 0, 0)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if stats.Emails != 1 {
		t.Fatalf("emails = %d, want 1 via ratio threshold", stats.Emails)
	}
}

func TestSendFillingFastPerUserCap(t *testing.T) {
	f := newNotificationFixture(t)
	user := f.student(t, "capped@uni.example", false, true)

	ten := 10
	for i := 0; i < 3; i++ {
		ev := f.upcomingEvent(t, "Tight "+uuid.NewString(), &ten)
		f.create(t, &types.FavoriteEvent{UserID: user.ID, EventID: ev.ID})
		for j := 0; j < 8; j++ {
			other := f.student(t, uuid.NewString()+"@uni.example", false, false)
			f.create(t, &types.Registration{UserID: other.ID, EventID: ev.ID})
		}
	}

	stats, err := f.service.SendFillingFastAlerts(context.Background(), nil, 0, 0, 2)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if stats.Emails != 2 {
		t.Fatalf("emails = %d, want the per-user cap of 2", stats.Emails)
	}
}

func TestSendFillingFastSkipsFullAndOptedOut(t *testing.T) {
	f := newNotificationFixture(t)
	optedOut := f.student(t, "nomail@uni.example", false, false)
	subscribed := f.student(t, "yes@uni.example", false, true)

	two := 2
	full := f.upcomingEvent(t, "Sold Out", &two)
	f.create(t, &types.FavoriteEvent{UserID: optedOut.ID, EventID: full.ID})
	f.create(t, &types.FavoriteEvent{UserID: subscribed.ID, EventID: full.ID})
	for i := 0; i < 2; i++ {
		other := f.student(t, uuid.NewString()+"@uni.example", false, false)
		f.create(t, &types.Registration{UserID: other.ID, EventID: full.ID})
	}

	stats, err := f.service.SendFillingFastAlerts(context.Background(), nil, 0, 0, 0)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if stats.Emails != 0 {
		t.Fatalf("emails = %d, want 0 for a sold-out event", stats.Emails)
	}
}

func TestWeekKeyFormat(t *testing.T) {
	jan := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	if got := WeekKey(jan); got != "2026-W02" {
		t.Fatalf("week key = %q, want 2026-W02", got)
	}
}
