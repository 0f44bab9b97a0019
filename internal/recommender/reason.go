package recommender

import (
	"sort"
	"strings"
)

// ReasonFor picks a short, localized explanation: tag overlap first,
// then city proximity, then a generic fallback.
func ReasonFor(user *UserProfile, event *EventProfile, lang string) string {
	var overlap []string
	for tag := range event.Tags {
		if _, ok := user.InterestTags[tag]; ok {
			overlap = append(overlap, tag)
		}
	}
	if len(overlap) > 0 {
		sort.Strings(overlap)
		if len(overlap) > 3 {
			overlap = overlap[:3]
		}
		top := strings.Join(overlap, ", ")
		if lang == "en" {
			return "Your interests: " + top
		}
		return "Interesele tale: " + top
	}
	if user.City != "" && event.City != "" && user.City == NormalizeCity(event.City) {
		if lang == "en" {
			return "Near you"
		}
		return "În apropiere"
	}
	if lang == "en" {
		return "Recommended for you"
	}
	return "Recomandat pentru tine"
}
