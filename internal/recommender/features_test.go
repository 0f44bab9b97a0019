package recommender

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func sampleUser() *UserProfile {
	return &UserProfile{
		ID:                uuid.New(),
		City:              "cluj-napoca",
		InterestTags:      map[string]struct{}{"ai": {}, "robotics": {}},
		HistoryTags:       map[string]struct{}{"ai": {}},
		HistoryCategories: map[string]struct{}{"workshop": {}},
		HistoryOrganizers: map[uuid.UUID]struct{}{},
		HiddenTags:        map[string]struct{}{},
		BlockedOrganizers: map[uuid.UUID]struct{}{},
	}
}

func TestBuildFeaturesDeterministic(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(30 * 24 * time.Hour)
	user := sampleUser()
	event := &EventProfile{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		Tags:       map[string]struct{}{"ai": {}, "web": {}},
		Category:   "workshop",
		City:       "Cluj-Napoca",
		StartTime:  &start,
		SeatsTaken: 10,
	}

	a := BuildFeatures(user, event, now)
	b := BuildFeatures(user, event, now)
	if len(a) != len(FeatureNames) {
		t.Fatalf("vector length = %d, want %d", len(a), len(FeatureNames))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("feature %s not deterministic: %v vs %v", FeatureNames[i], a[i], b[i])
		}
	}

	if a[0] != 1.0 {
		t.Errorf("bias = %v, want 1", a[0])
	}
	if a[1] != 0.5 {
		t.Errorf("overlap_interest_ratio = %v, want 0.5", a[1])
	}
	if a[2] != 0.5 {
		t.Errorf("overlap_history_ratio = %v, want 0.5", a[2])
	}
	if a[3] != 1.0 {
		t.Errorf("same_city = %v, want 1 (city match is case-insensitive)", a[3])
	}
	if a[4] != 1.0 {
		t.Errorf("category_match = %v, want 1", a[4])
	}
	if a[5] != 0.0 {
		t.Errorf("organizer_match = %v, want 0", a[5])
	}
	wantPopularity := math.Log1p(10) / 5.0
	if math.Abs(a[6]-wantPopularity) > 1e-12 {
		t.Errorf("popularity = %v, want %v", a[6], wantPopularity)
	}
	wantDays := 30.0 / 180.0
	if math.Abs(a[7]-wantDays) > 1e-9 {
		t.Errorf("days_until = %v, want %v", a[7], wantDays)
	}
}

// A user whose entire history is one tag and an event carrying exactly
// that tag must produce a full-overlap history ratio.
func TestOverlapHistoryRatioFullMatch(t *testing.T) {
	now := time.Now().UTC()
	user := &UserProfile{
		ID:                uuid.New(),
		InterestTags:      map[string]struct{}{},
		HistoryTags:       map[string]struct{}{"chess": {}},
		HistoryCategories: map[string]struct{}{},
		HistoryOrganizers: map[uuid.UUID]struct{}{},
	}
	event := &EventProfile{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Tags:    map[string]struct{}{"chess": {}},
	}
	x := BuildFeatures(user, event, now)
	if x[2] != 1.0 {
		t.Fatalf("overlap_history_ratio = %v, want 1.0", x[2])
	}
}

func TestBuildFeaturesEdgeCases(t *testing.T) {
	now := time.Now().UTC()
	user := sampleUser()

	// No tags: ratios use max(1, |tags|) so they stay defined.
	bare := &EventProfile{ID: uuid.New(), OwnerID: uuid.New(), Tags: map[string]struct{}{}}
	x := BuildFeatures(user, bare, now)
	if x[1] != 0 || x[2] != 0 {
		t.Fatalf("tagless event overlap = %v/%v, want 0/0", x[1], x[2])
	}
	if x[7] != 0 {
		t.Fatalf("nil start_time days_until = %v, want 0", x[7])
	}

	// Past events clamp days_until at 0; far-future clamps at 1.
	past := now.Add(-48 * time.Hour)
	farFuture := now.Add(365 * 24 * time.Hour)
	xPast := BuildFeatures(user, &EventProfile{ID: uuid.New(), Tags: map[string]struct{}{}, StartTime: &past}, now)
	xFar := BuildFeatures(user, &EventProfile{ID: uuid.New(), Tags: map[string]struct{}{}, StartTime: &farFuture}, now)
	if xPast[7] != 0 {
		t.Errorf("past days_until = %v, want 0", xPast[7])
	}
	if xFar[7] != 1 {
		t.Errorf("far future days_until = %v, want 1", xFar[7])
	}

	// Huge seat counts clamp popularity at 1.
	xBig := BuildFeatures(user, &EventProfile{ID: uuid.New(), Tags: map[string]struct{}{}, SeatsTaken: 100000}, now)
	if xBig[6] != 1 {
		t.Errorf("popularity = %v, want clamped to 1", xBig[6])
	}
}

func TestSigmoidStable(t *testing.T) {
	if got := Sigmoid(0); got != 0.5 {
		t.Errorf("Sigmoid(0) = %v, want 0.5", got)
	}
	if got := Sigmoid(1000); got != 1.0 {
		t.Errorf("Sigmoid(1000) = %v, want 1", got)
	}
	if got := Sigmoid(-1000); got != 0.0 {
		t.Errorf("Sigmoid(-1000) = %v, want 0", got)
	}
	if math.IsNaN(Sigmoid(-1000)) || math.IsNaN(Sigmoid(1000)) {
		t.Fatalf("sigmoid overflowed")
	}
}
