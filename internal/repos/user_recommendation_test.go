package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/unievents/unievents-backend/internal/testutil"
	"github.com/unievents/unievents-backend/internal/types"
)

func TestReplaceForUserIsWholesale(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewUserRecommendationRepo(db, testutil.NewLogger(t))
	ctx := context.Background()

	userID := uuid.New()
	otherUserID := uuid.New()
	now := time.Now().UTC()

	makeRecs := func(userID uuid.UUID, version string, eventIDs ...uuid.UUID) []*types.UserRecommendation {
		out := make([]*types.UserRecommendation, 0, len(eventIDs))
		for i, eventID := range eventIDs {
			out = append(out, &types.UserRecommendation{
				UserID:       userID,
				EventID:      eventID,
				Score:        1.0 - float64(i)*0.1,
				Rank:         i + 1,
				ModelVersion: version,
				GeneratedAt:  now,
			})
		}
		return out
	}

	if err := repo.ReplaceForUser(ctx, nil, userID, makeRecs(userID, "v1", uuid.New(), uuid.New(), uuid.New())); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if err := repo.ReplaceForUser(ctx, nil, otherUserID, makeRecs(otherUserID, "v1", uuid.New())); err != nil {
		t.Fatalf("other user replace: %v", err)
	}

	keptEvent := uuid.New()
	if err := repo.ReplaceForUser(ctx, nil, userID, makeRecs(userID, "v2", keptEvent, uuid.New())); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	recs, err := repo.ListForUser(ctx, nil, userID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2 (old rows must be gone)", len(recs))
	}
	if recs[0].Rank != 1 || recs[1].Rank != 2 {
		t.Fatalf("ranks not ascending: %d, %d", recs[0].Rank, recs[1].Rank)
	}
	if recs[0].EventID != keptEvent || recs[0].ModelVersion != "v2" {
		t.Fatalf("top row = %+v", recs[0])
	}

	// The other user's rows are untouched.
	others, err := repo.ListForUser(ctx, nil, otherUserID, 0)
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(others) != 1 {
		t.Fatalf("other user rows = %d, want 1", len(others))
	}
}

func TestListForUserLimit(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewUserRecommendationRepo(db, testutil.NewLogger(t))
	ctx := context.Background()

	userID := uuid.New()
	now := time.Now().UTC()
	recs := make([]*types.UserRecommendation, 0, 5)
	for i := 0; i < 5; i++ {
		recs = append(recs, &types.UserRecommendation{
			UserID:      userID,
			EventID:     uuid.New(),
			Score:       float64(5 - i),
			Rank:        i + 1,
			GeneratedAt: now,
		})
	}
	if err := repo.ReplaceForUser(ctx, nil, userID, recs); err != nil {
		t.Fatalf("replace: %v", err)
	}

	limited, err := repo.ListForUser(ctx, nil, userID, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(limited) != 3 {
		t.Fatalf("len = %d, want 3", len(limited))
	}
	if limited[0].Rank != 1 {
		t.Fatalf("first rank = %d, want 1", limited[0].Rank)
	}
}

func TestLatestGeneratedAt(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewUserRecommendationRepo(db, testutil.NewLogger(t))
	ctx := context.Background()

	userID := uuid.New()
	latest, err := repo.LatestGeneratedAt(ctx, nil, userID)
	if err != nil {
		t.Fatalf("latest on empty: %v", err)
	}
	if !latest.IsZero() {
		t.Fatalf("latest on empty = %v, want zero", latest)
	}

	generatedAt := time.Now().UTC().Truncate(time.Second)
	err = repo.ReplaceForUser(ctx, nil, userID, []*types.UserRecommendation{{
		UserID:      userID,
		EventID:     uuid.New(),
		Score:       1,
		Rank:        1,
		GeneratedAt: generatedAt,
	}})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	latest, err = repo.LatestGeneratedAt(ctx, nil, userID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !latest.Equal(generatedAt) {
		t.Fatalf("latest = %v, want %v", latest, generatedAt)
	}
}
