package recommender

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/repos"
	"github.com/unievents/unievents-backend/internal/testutil"
	"github.com/unievents/unievents-backend/internal/types"
)

type snapshotFixture struct {
	db     *gorm.DB
	loader *SnapshotLoader
}

func newSnapshotFixture(t *testing.T) *snapshotFixture {
	t.Helper()
	db := testutil.OpenDB(t)
	log := testutil.NewLogger(t)
	loader := NewSnapshotLoader(
		repos.NewUserRepo(db, log),
		repos.NewEventRepo(db, log),
		repos.NewRegistrationRepo(db, log),
		repos.NewFavoriteRepo(db, log),
		repos.NewInteractionRepo(db, log),
		repos.NewImplicitInterestRepo(db, log),
	)
	return &snapshotFixture{db: db, loader: loader}
}

func (f *snapshotFixture) load(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := f.loader.Load(context.Background(), nil, nil, time.Now().UTC(), 1337)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	return snap
}

func (f *snapshotFixture) create(t *testing.T, value any) {
	t.Helper()
	if err := f.db.Create(value).Error; err != nil {
		t.Fatalf("create %T: %v", value, err)
	}
}

func (f *snapshotFixture) student(t *testing.T, email string) *types.User {
	t.Helper()
	u := &types.User{Email: email, Role: types.UserRoleStudent, IsActive: true}
	f.create(t, u)
	return u
}

func (f *snapshotFixture) event(t *testing.T, title string, tags ...*types.Tag) *types.Event {
	t.Helper()
	owner := &types.User{Email: uuid.NewString() + "@org.example", Role: types.UserRoleOrganizer, IsActive: true}
	f.create(t, owner)
	start := time.Now().UTC().Add(10 * 24 * time.Hour)
	ev := &types.Event{OwnerID: owner.ID, Title: title, Status: types.EventStatusPublished, StartTime: &start, Tags: tags}
	f.create(t, ev)
	return ev
}

func (f *snapshotFixture) interaction(t *testing.T, userID uuid.UUID, eventID *uuid.UUID, kind string, meta map[string]any) {
	t.Helper()
	row := &types.EventInteraction{
		UserID:          &userID,
		EventID:         eventID,
		InteractionType: kind,
		OccurredAt:      time.Now().UTC(),
	}
	if meta != nil {
		row.Meta = types.MustJSON(meta)
	}
	f.create(t, row)
}

func TestSnapshotLabelWeights(t *testing.T) {
	f := newSnapshotFixture(t)
	ev := f.event(t, "Weighted")

	registered := f.student(t, "reg@uni.example")
	attended := f.student(t, "att@uni.example")
	favored := f.student(t, "fav@uni.example")
	clicked := f.student(t, "click@uni.example")
	dwelled := f.student(t, "dwell@uni.example")
	longDwell := f.student(t, "longdwell@uni.example")

	f.create(t, &types.Registration{UserID: registered.ID, EventID: ev.ID})
	f.create(t, &types.Registration{UserID: attended.ID, EventID: ev.ID, Attended: true})
	f.create(t, &types.FavoriteEvent{UserID: favored.ID, EventID: ev.ID})
	f.interaction(t, clicked.ID, &ev.ID, types.InteractionClick, nil)
	f.interaction(t, dwelled.ID, &ev.ID, types.InteractionDwell, map[string]any{"seconds": 60.0})
	f.interaction(t, longDwell.ID, &ev.ID, types.InteractionDwell, map[string]any{"seconds": 600.0})

	snap := f.load(t)

	cases := []struct {
		user   uuid.UUID
		weight float64
	}{
		{registered.ID, 1.0},
		{attended.ID, 1.5},
		{favored.ID, 1.2},
		{clicked.ID, 0.4},
		{dwelled.ID, 0.475},
		{longDwell.ID, 0.8},
	}
	for _, c := range cases {
		got, ok := snap.PositivesByUser[c.user][ev.ID]
		if !ok {
			t.Fatalf("user %s has no positive for event", c.user)
		}
		if diff := got - c.weight; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("user %s weight = %v, want %v", c.user, got, c.weight)
		}
	}
}

func TestSnapshotStrongestSignalWins(t *testing.T) {
	f := newSnapshotFixture(t)
	ev := f.event(t, "Stacked")
	user := f.student(t, "stack@uni.example")

	f.interaction(t, user.ID, &ev.ID, types.InteractionClick, nil)
	f.create(t, &types.FavoriteEvent{UserID: user.ID, EventID: ev.ID})
	f.interaction(t, user.ID, &ev.ID, types.InteractionView, nil)

	snap := f.load(t)
	if got := snap.PositivesByUser[user.ID][ev.ID]; got != 1.2 {
		t.Fatalf("weight = %v, want the favorite's 1.2", got)
	}
}

func TestSnapshotUnregisterCancelsPositive(t *testing.T) {
	f := newSnapshotFixture(t)
	ev := f.event(t, "Abandoned")
	user := f.student(t, "quit@uni.example")

	f.create(t, &types.Registration{UserID: user.ID, EventID: ev.ID})
	f.interaction(t, user.ID, &ev.ID, types.InteractionUnregister, nil)

	snap := f.load(t)
	key := pairKey{UserID: user.ID, EventID: ev.ID}
	if snap.NegativeWeights[key] != 2.0 {
		t.Fatalf("negative weight = %v, want 2.0", snap.NegativeWeights[key])
	}
	if _, ok := snap.PositivesByUser[user.ID][ev.ID]; ok {
		t.Fatalf("positive survived the unregister")
	}
}

func TestSnapshotHoldoutExcludedFromHistory(t *testing.T) {
	f := newSnapshotFixture(t)
	ai := &types.Tag{Name: "ai"}
	robotics := &types.Tag{Name: "robotics"}
	f.create(t, ai)
	f.create(t, robotics)
	first := f.event(t, "AI Night", ai)
	second := f.event(t, "Robot Day", robotics)
	user := f.student(t, "holdout@uni.example")
	f.create(t, &types.Registration{UserID: user.ID, EventID: first.ID})
	f.create(t, &types.Registration{UserID: user.ID, EventID: second.ID})

	snap := f.load(t)
	held, ok := snap.Holdout[user.ID]
	if !ok {
		t.Fatalf("no holdout selected for user with two positives")
	}
	if _, stillPositive := snap.PositivesByUser[user.ID][held]; stillPositive {
		t.Fatalf("held-out event still in training positives")
	}
	heldTag := "ai"
	if held == second.ID {
		heldTag = "robotics"
	}
	profile := snap.Users[user.ID]
	if _, ok := profile.HistoryTags[heldTag]; ok {
		t.Fatalf("held-out event's tag %q leaked into history", heldTag)
	}
	if len(profile.HistoryTags) != 1 {
		t.Fatalf("history tags = %v, want exactly the kept event's tag", profile.HistoryTags)
	}
}

func TestSnapshotSinglePositiveHasNoHoldout(t *testing.T) {
	f := newSnapshotFixture(t)
	ev := f.event(t, "Only One")
	user := f.student(t, "single@uni.example")
	f.create(t, &types.Registration{UserID: user.ID, EventID: ev.ID})

	snap := f.load(t)
	if _, ok := snap.Holdout[user.ID]; ok {
		t.Fatalf("holdout selected from a single positive")
	}
	if _, ok := snap.PositivesByUser[user.ID][ev.ID]; !ok {
		t.Fatalf("single positive missing from training set")
	}
}

func TestSnapshotInterestUnion(t *testing.T) {
	f := newSnapshotFixture(t)
	explicit := &types.Tag{Name: "Machine Learning"}
	implicit := &types.Tag{Name: "Robotics"}
	f.create(t, explicit)
	f.create(t, implicit)
	f.event(t, "Filler")

	user := &types.User{
		Email:        "union@uni.example",
		Role:         types.UserRoleStudent,
		IsActive:     true,
		InterestTags: []*types.Tag{explicit},
	}
	f.create(t, user)
	f.create(t, &types.UserImplicitInterestTag{
		UserID:     user.ID,
		TagID:      implicit.ID,
		Score:      2.5,
		LastSeenAt: time.Now().UTC(),
	})
	f.interaction(t, user.ID, nil, types.InteractionSearch, map[string]any{"tags": []any{"Astronomy"}})

	snap := f.load(t)
	interests := snap.Users[user.ID].InterestTags
	for _, want := range []string{"machine learning", "robotics", "astronomy"} {
		if _, ok := interests[want]; !ok {
			t.Fatalf("interest %q missing from union %v", want, interests)
		}
	}
}

func TestSnapshotWeakCityFallbackAndLanguage(t *testing.T) {
	f := newSnapshotFixture(t)
	f.event(t, "Filler")

	nomad := f.student(t, "nomad@uni.example")
	f.interaction(t, nomad.ID, nil, types.InteractionFilter, map[string]any{"city": "  Cluj-Napoca "})

	english := &types.User{
		Email:              "en@uni.example",
		Role:               types.UserRoleStudent,
		IsActive:           true,
		City:               "Iasi",
		LanguagePreference: "en",
	}
	f.create(t, english)

	snap := f.load(t)
	if got := snap.Users[nomad.ID].City; got != "cluj-napoca" {
		t.Fatalf("fallback city = %q, want cluj-napoca", got)
	}
	if got := snap.Users[nomad.ID].Lang; got != "ro" {
		t.Fatalf("default lang = %q, want ro", got)
	}
	if got := snap.Users[english.ID].Lang; got != "en" {
		t.Fatalf("lang = %q, want en", got)
	}
	if got := snap.Users[english.ID].City; got != "iasi" {
		t.Fatalf("own city = %q, want iasi", got)
	}
}

func TestSnapshotImpressionTracking(t *testing.T) {
	f := newSnapshotFixture(t)
	ev := f.event(t, "Seen")
	user := f.student(t, "seen@uni.example")

	f.interaction(t, user.ID, &ev.ID, types.InteractionImpression, map[string]any{"position": 5.0})
	f.interaction(t, user.ID, &ev.ID, types.InteractionImpression, map[string]any{"position": 2.0})
	f.interaction(t, user.ID, &ev.ID, types.InteractionImpression, map[string]any{"position": 8.0})

	snap := f.load(t)
	if _, ok := snap.SeenByUser[user.ID][ev.ID]; !ok {
		t.Fatalf("impression not recorded as seen")
	}
	key := pairKey{UserID: user.ID, EventID: ev.ID}
	if pos := snap.ImpressionPosition[key]; pos != 2 {
		t.Fatalf("impression position = %d, want the minimum 2", pos)
	}
	if _, ok := snap.PositivesByUser[user.ID]; ok {
		t.Fatalf("impressions must not create positives")
	}
}
