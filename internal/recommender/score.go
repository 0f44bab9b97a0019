package recommender

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/repos"
	"github.com/unievents/unievents-backend/internal/types"
)

// Scorer ranks eligible events per user with a trained weight vector
// and replaces each user's cached recommendations.
type Scorer struct {
	recommendations repos.UserRecommendationRepo
	log             *logger.Logger
	parallelism     int
}

func NewScorer(recommendations repos.UserRecommendationRepo, baseLog *logger.Logger) *Scorer {
	return &Scorer{
		recommendations: recommendations,
		log:             baseLog.With("component", "scorer"),
		parallelism:     4,
	}
}

// EligibleEventIDs filters to events worth recommending: published,
// publish time passed, not yet started, seats still open.
func EligibleEventIDs(snap *Snapshot) []uuid.UUID {
	var out []uuid.UUID
	for _, eid := range snap.EventIDs {
		ev := snap.Events[eid]
		if ev.Status != types.EventStatusPublished {
			continue
		}
		if ev.PublishAt != nil && ev.PublishAt.After(snap.Now) {
			continue
		}
		if ev.StartTime != nil && ev.StartTime.Before(snap.Now) {
			continue
		}
		if ev.MaxSeats != nil && ev.SeatsTaken >= *ev.MaxSeats {
			continue
		}
		out = append(out, eid)
	}
	return out
}

// RankForUser scores eligible events for one user and returns the
// top-N rows with dense 1-based ranks. Registered events, events owned
// by blocked organizers, and events carrying hidden tags are excluded.
func RankForUser(snap *Snapshot, user *UserProfile, eligible []uuid.UUID, weights []float64, modelVersion string, topN int, generatedAt time.Time) []*types.UserRecommendation {
	registered := snap.RegisteredByUser[user.ID]

	type scored struct {
		score float64
		id    uuid.UUID
	}
	ranked := make([]scored, 0, len(eligible))
	for _, eid := range eligible {
		if _, ok := registered[eid]; ok {
			continue
		}
		ev := snap.Events[eid]
		if _, blocked := user.BlockedOrganizers[ev.OwnerID]; blocked {
			continue
		}
		if hasHiddenTag(user, ev) {
			continue
		}
		x := BuildFeatures(user, ev, snap.Now)
		ranked = append(ranked, scored{score: Sigmoid(Dot(weights, x)), id: eid})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if topN >= 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}

	out := make([]*types.UserRecommendation, 0, len(ranked))
	for i, entry := range ranked {
		out = append(out, &types.UserRecommendation{
			UserID:       user.ID,
			EventID:      entry.id,
			Score:        entry.score,
			Rank:         i + 1,
			ModelVersion: modelVersion,
			Reason:       ReasonFor(user, snap.Events[entry.id], user.Lang),
			GeneratedAt:  generatedAt,
		})
	}
	return out
}

func hasHiddenTag(user *UserProfile, event *EventProfile) bool {
	if len(user.HiddenTags) == 0 {
		return false
	}
	for tag := range event.Tags {
		if _, ok := user.HiddenTags[tag]; ok {
			return true
		}
	}
	return false
}

// ScoreAll replaces the recommendation cache for every user in the
// snapshot, a handful of users at a time. Each worker goroutine issues
// its own writes, so no shared transaction is threaded through here.
// Returns the number of rows written.
func (s *Scorer) ScoreAll(ctx context.Context, snap *Snapshot, weights []float64, modelVersion string, topN int) (int, error) {
	eligible := EligibleEventIDs(snap)
	generatedAt := time.Now().UTC()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.parallelism)

	written := make([]int, len(snap.UserIDs))
	for i, uid := range snap.UserIDs {
		i, uid := i, uid
		group.Go(func() error {
			user, ok := snap.Users[uid]
			if !ok {
				return nil
			}
			recs := RankForUser(snap, user, eligible, weights, modelVersion, topN, generatedAt)
			if err := s.recommendations.ReplaceForUser(groupCtx, nil, uid, recs); err != nil {
				return err
			}
			written[i] = len(recs)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}
	total := 0
	for _, n := range written {
		total += n
	}
	s.log.Info("recommendations_stored",
		"users", len(snap.UserIDs),
		"rows", total,
		"model_version", modelVersion,
	)
	return total, nil
}
