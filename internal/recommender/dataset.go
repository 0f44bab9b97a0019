package recommender

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"
)

// Example is one weighted training instance.
type Example struct {
	X      []float64
	Y      float64
	Weight float64
}

func impressionNegativeWeight(position int, known bool) float64 {
	if !known || position < 0 {
		return 0.05
	}
	switch {
	case position <= 2:
		return 0.25
	case position <= 5:
		return 0.15
	case position <= 10:
		return 0.1
	default:
		return 0.05
	}
}

// BuildExamples assembles the weighted training set from the snapshot:
// positives with their label weights, negatives sampled preferentially
// from impressed-but-not-acted-on events, weak co-occurrence positives,
// and explicit unregister hard negatives.
func BuildExamples(snap *Snapshot, negativesPerPositive int, rng *rand.Rand) []Example {
	var examples []Example

	userIDs := make([]uuid.UUID, 0, len(snap.PositivesByUser))
	for uid := range snap.PositivesByUser {
		userIDs = append(userIDs, uid)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i].String() < userIDs[j].String() })

	for _, uid := range userIDs {
		user, ok := snap.Users[uid]
		if !ok {
			continue
		}
		positives := snap.PositivesByUser[uid]

		userPositiveIDs := make(map[uuid.UUID]struct{}, len(positives)+1)
		for eid := range positives {
			userPositiveIDs[eid] = struct{}{}
		}
		if held, ok := snap.Holdout[uid]; ok {
			userPositiveIDs[held] = struct{}{}
		}

		impressionNegatives := topImpressionCandidates(snap, uid, userPositiveIDs, 50)

		posIDs := make([]uuid.UUID, 0, len(positives))
		for eid := range positives {
			posIDs = append(posIDs, eid)
		}
		sort.Slice(posIDs, func(i, j int) bool { return posIDs[i].String() < posIDs[j].String() })

		for _, eid := range posIDs {
			ev, ok := snap.Events[eid]
			if !ok {
				continue
			}
			examples = append(examples, Example{
				X:      BuildFeatures(user, ev, snap.Now),
				Y:      1,
				Weight: positives[eid],
			})

			added := 0
			for attempts := 0; added < negativesPerPositive && attempts < 10*negativesPerPositive+len(snap.EventIDs); attempts++ {
				var negID uuid.UUID
				negWeight := 1.0
				if len(impressionNegatives) > 0 {
					negID = impressionNegatives[rng.Intn(len(impressionNegatives))]
					pos, known := snap.ImpressionPosition[pairKey{UserID: uid, EventID: negID}]
					negWeight = impressionNegativeWeight(pos, known)
				} else {
					negID = snap.EventIDs[rng.Intn(len(snap.EventIDs))]
				}
				if _, isPositive := userPositiveIDs[negID]; isPositive {
					continue
				}
				negEv, ok := snap.Events[negID]
				if !ok {
					continue
				}
				examples = append(examples, Example{
					X:      BuildFeatures(user, negEv, snap.Now),
					Y:      0,
					Weight: negWeight,
				})
				added++
			}
		}

		examples = appendWeakPositives(examples, snap, uid, user, userPositiveIDs, rng)
	}

	// Unregister pairs enter as hard negatives regardless of other signal.
	negKeys := make([]pairKey, 0, len(snap.NegativeWeights))
	for key := range snap.NegativeWeights {
		negKeys = append(negKeys, key)
	}
	sort.Slice(negKeys, func(i, j int) bool {
		if negKeys[i].UserID != negKeys[j].UserID {
			return negKeys[i].UserID.String() < negKeys[j].UserID.String()
		}
		return negKeys[i].EventID.String() < negKeys[j].EventID.String()
	})
	for _, key := range negKeys {
		user, ok := snap.Users[key.UserID]
		if !ok {
			continue
		}
		ev, ok := snap.Events[key.EventID]
		if !ok {
			continue
		}
		examples = append(examples, Example{
			X:      BuildFeatures(user, ev, snap.Now),
			Y:      0,
			Weight: snap.NegativeWeights[key],
		})
	}

	return examples
}

// topImpressionCandidates returns up to limit impressed-but-unacted
// event ids for the user, best (lowest) recorded position first.
func topImpressionCandidates(snap *Snapshot, uid uuid.UUID, exclude map[uuid.UUID]struct{}, limit int) []uuid.UUID {
	seen := snap.SeenByUser[uid]
	if len(seen) == 0 {
		return nil
	}
	type candidate struct {
		id       uuid.UUID
		position int
	}
	candidates := make([]candidate, 0, len(seen))
	for eid := range seen {
		if _, isPositive := exclude[eid]; isPositive {
			continue
		}
		position := 999
		if p, ok := snap.ImpressionPosition[pairKey{UserID: uid, EventID: eid}]; ok {
			position = p
		}
		candidates = append(candidates, candidate{id: eid, position: position})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].position != candidates[j].position {
			return candidates[i].position < candidates[j].position
		}
		return candidates[i].id.String() < candidates[j].id.String()
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

// appendWeakPositives adds up to 3 low-weight positives per user from
// events matching the user's search/filter signals.
func appendWeakPositives(examples []Example, snap *Snapshot, uid uuid.UUID, user *UserProfile, userPositiveIDs map[uuid.UUID]struct{}, rng *rand.Rand) []Example {
	weakTags := snap.WeakTagsByUser[uid]
	weakCategories := snap.WeakCategoriesByUser[uid]
	weakCity := snap.WeakCityByUser[uid]
	if len(weakTags) == 0 && len(weakCategories) == 0 && weakCity == "" {
		return examples
	}

	added := 0
	for attempts := 0; added < 3 && attempts < 200 && attempts < len(snap.EventIDs); attempts++ {
		candID := snap.EventIDs[rng.Intn(len(snap.EventIDs))]
		if _, isPositive := userPositiveIDs[candID]; isPositive {
			continue
		}
		ev, ok := snap.Events[candID]
		if !ok {
			continue
		}
		match := false
		if weakCity != "" && ev.City != "" && NormalizeCity(ev.City) == weakCity {
			match = true
		}
		if !match && ev.Category != "" {
			_, match = weakCategories[ev.Category]
		}
		if !match {
			for tag := range ev.Tags {
				if _, ok := weakTags[tag]; ok {
					match = true
					break
				}
			}
		}
		if !match {
			continue
		}
		examples = append(examples, Example{
			X:      BuildFeatures(user, ev, snap.Now),
			Y:      1,
			Weight: 0.15,
		})
		userPositiveIDs[candID] = struct{}{}
		added++
	}
	return examples
}
