package recommender

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/unievents/unievents-backend/internal/platform/logger"
)

// TrainSGD fits weighted logistic regression by stochastic gradient
// descent over shuffled examples. The context deadline bounds training
// wall clock; exceeding it aborts with the context error.
func TrainSGD(ctx context.Context, examples []Example, epochs int, lr, l2 float64, seed int64, log *logger.Logger) ([]float64, error) {
	if len(examples) == 0 {
		return nil, ErrNoTrainingData
	}
	nFeatures := len(examples[0].X)
	weights := make([]float64, nFeatures)
	rng := rand.New(rand.NewSource(seed))
	const eps = 1e-12

	shuffled := make([]Example, len(examples))
	copy(shuffled, examples)

	for epoch := 1; epoch <= epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		totalLoss := 0.0
		for _, ex := range shuffled {
			z := Dot(weights, ex.X)
			p := Sigmoid(z)
			totalLoss += ex.Weight * -(ex.Y*math.Log(p+eps) + (1-ex.Y)*math.Log(1-p+eps))

			err := (p - ex.Y) * ex.Weight
			for i, xi := range ex.X {
				weights[i] -= lr * (err*xi + l2*weights[i])
			}
		}
		if log != nil {
			log.Debug("train_epoch",
				"epoch", epoch,
				"loss", totalLoss/math.Max(1, float64(len(shuffled))),
				"examples", len(shuffled),
			)
		}
	}
	return weights, nil
}

// EvaluateHitRateAtK ranks each held-out positive against K random
// negatives and reports the fraction landing in the top k.
func EvaluateHitRateAtK(ctx context.Context, snap *Snapshot, weights []float64, k, negativesPerUser int, seed int64) (float64, error) {
	rng := rand.New(rand.NewSource(seed))
	hits := 0
	total := 0

	heldUsers := make([]uuid.UUID, 0, len(snap.Holdout))
	for uid := range snap.Holdout {
		heldUsers = append(heldUsers, uid)
	}
	sort.Slice(heldUsers, func(i, j int) bool { return heldUsers[i].String() < heldUsers[j].String() })

	for _, uid := range heldUsers {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		posEventID := snap.Holdout[uid]
		user, ok := snap.Users[uid]
		if !ok {
			continue
		}
		if _, ok := snap.Events[posEventID]; !ok {
			continue
		}

		var negatives []uuid.UUID
		for attempts := 0; len(negatives) < negativesPerUser && attempts < 10*negativesPerUser+len(snap.EventIDs); attempts++ {
			cand := snap.EventIDs[rng.Intn(len(snap.EventIDs))]
			if cand == posEventID {
				continue
			}
			negatives = append(negatives, cand)
		}

		type scored struct {
			score float64
			id    uuid.UUID
		}
		candidates := append([]uuid.UUID{posEventID}, negatives...)
		ranked := make([]scored, 0, len(candidates))
		for _, eid := range candidates {
			ev, ok := snap.Events[eid]
			if !ok {
				continue
			}
			x := BuildFeatures(user, ev, snap.Now)
			ranked = append(ranked, scored{score: Sigmoid(Dot(weights, x)), id: eid})
		}
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

		total++
		limit := k
		if limit > len(ranked) {
			limit = len(ranked)
		}
		for _, entry := range ranked[:limit] {
			if entry.id == posEventID {
				hits++
				break
			}
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(hits) / float64(total), nil
}
