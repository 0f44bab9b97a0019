package recommender

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FeatureNames fixes the vector schema. BuildFeatures must emit values
// in exactly this order; persisted models carry the list so a load can
// verify the schema before scoring.
var FeatureNames = []string{
	"bias",
	"overlap_interest_ratio",
	"overlap_history_ratio",
	"same_city",
	"category_match",
	"organizer_match",
	"popularity",
	"days_until",
}

// UserProfile is the per-user feature input, assembled once per run.
type UserProfile struct {
	ID                uuid.UUID
	City              string
	Lang              string
	InterestTags      map[string]struct{}
	HistoryTags       map[string]struct{}
	HistoryCategories map[string]struct{}
	HistoryOrganizers map[uuid.UUID]struct{}
	HiddenTags        map[string]struct{}
	BlockedOrganizers map[uuid.UUID]struct{}
}

type EventProfile struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	Tags       map[string]struct{}
	Category   string
	City       string
	Status     string
	PublishAt  *time.Time
	StartTime  *time.Time
	SeatsTaken int
	MaxSeats   *int
}

func NormalizeTag(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func NormalizeCity(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// BuildFeatures is a pure function of its inputs: identical profiles and
// clock always produce the identical 8-element vector.
func BuildFeatures(user *UserProfile, event *EventProfile, now time.Time) []float64 {
	tagCount := len(event.Tags)
	if tagCount < 1 {
		tagCount = 1
	}

	overlapInterest := 0
	overlapHistory := 0
	for tag := range event.Tags {
		if _, ok := user.InterestTags[tag]; ok {
			overlapInterest++
		}
		if _, ok := user.HistoryTags[tag]; ok {
			overlapHistory++
		}
	}

	sameCity := 0.0
	if user.City != "" && event.City != "" && user.City == NormalizeCity(event.City) {
		sameCity = 1.0
	}

	categoryMatch := 0.0
	if event.Category != "" {
		if _, ok := user.HistoryCategories[event.Category]; ok {
			categoryMatch = 1.0
		}
	}

	organizerMatch := 0.0
	if _, ok := user.HistoryOrganizers[event.OwnerID]; ok {
		organizerMatch = 1.0
	}

	popularity := math.Log1p(float64(event.SeatsTaken)) / 5.0
	if popularity > 1.0 {
		popularity = 1.0
	}

	daysUntil := 0.0
	if event.StartTime != nil {
		deltaDays := event.StartTime.Sub(now).Seconds() / 86400.0
		daysUntil = deltaDays / 180.0
		if daysUntil < 0 {
			daysUntil = 0
		}
		if daysUntil > 1 {
			daysUntil = 1
		}
	}

	return []float64{
		1.0,
		float64(overlapInterest) / float64(tagCount),
		float64(overlapHistory) / float64(tagCount),
		sameCity,
		categoryMatch,
		organizerMatch,
		popularity,
		daysUntil,
	}
}

// Sigmoid is numerically stable for large |z|.
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1.0 / (1.0 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1.0 + e)
}

func Dot(weights, features []float64) float64 {
	n := len(weights)
	if len(features) < n {
		n = len(features)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += weights[i] * features[i]
	}
	return sum
}
