package recommender

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/repos"
	"github.com/unievents/unievents-backend/internal/types"
)

type pairKey struct {
	UserID  uuid.UUID
	EventID uuid.UUID
}

// Snapshot is the in-memory training/scoring view of the database,
// built once per run so feature construction never touches the DB.
type Snapshot struct {
	Now time.Time

	Users    map[uuid.UUID]*UserProfile
	UserIDs  []uuid.UUID
	Events   map[uuid.UUID]*EventProfile
	EventIDs []uuid.UUID

	PositivesByUser    map[uuid.UUID]map[uuid.UUID]float64
	NegativeWeights    map[pairKey]float64
	SeenByUser         map[uuid.UUID]map[uuid.UUID]struct{}
	ImpressionPosition map[pairKey]int
	Holdout            map[uuid.UUID]uuid.UUID

	WeakTagsByUser       map[uuid.UUID]map[string]struct{}
	WeakCategoriesByUser map[uuid.UUID]map[string]struct{}
	WeakCityByUser       map[uuid.UUID]string

	RegisteredByUser map[uuid.UUID]map[uuid.UUID]struct{}
}

// SnapshotLoader assembles a Snapshot from the data-access layer.
type SnapshotLoader struct {
	users         repos.UserRepo
	events        repos.EventRepo
	registrations repos.RegistrationRepo
	favorites     repos.FavoriteRepo
	interactions  repos.InteractionRepo
	implicit      repos.ImplicitInterestRepo
}

func NewSnapshotLoader(
	users repos.UserRepo,
	events repos.EventRepo,
	registrations repos.RegistrationRepo,
	favorites repos.FavoriteRepo,
	interactions repos.InteractionRepo,
	implicit repos.ImplicitInterestRepo,
) *SnapshotLoader {
	return &SnapshotLoader{
		users:         users,
		events:        events,
		registrations: registrations,
		favorites:     favorites,
		interactions:  interactions,
		implicit:      implicit,
	}
}

// Load builds the snapshot for all active students, or a single student
// when userID is set. Holdout selection is seeded so runs reproduce.
func (l *SnapshotLoader) Load(ctx context.Context, tx *gorm.DB, userID *uuid.UUID, now time.Time, seed int64) (*Snapshot, error) {
	students, err := l.users.ListActiveStudents(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	if userID != nil {
		filtered := students[:0]
		for _, s := range students {
			if s.ID == *userID {
				filtered = append(filtered, s)
			}
		}
		students = filtered
	}
	if len(students) == 0 {
		return nil, ErrNoStudents
	}

	snap := &Snapshot{
		Now:                  now,
		Users:                make(map[uuid.UUID]*UserProfile, len(students)),
		Events:               make(map[uuid.UUID]*EventProfile),
		PositivesByUser:      make(map[uuid.UUID]map[uuid.UUID]float64),
		NegativeWeights:      make(map[pairKey]float64),
		SeenByUser:           make(map[uuid.UUID]map[uuid.UUID]struct{}),
		ImpressionPosition:   make(map[pairKey]int),
		Holdout:              make(map[uuid.UUID]uuid.UUID),
		WeakTagsByUser:       make(map[uuid.UUID]map[string]struct{}),
		WeakCategoriesByUser: make(map[uuid.UUID]map[string]struct{}),
		WeakCityByUser:       make(map[uuid.UUID]string),
		RegisteredByUser:     make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}

	if err := l.loadEvents(ctx, tx, snap); err != nil {
		return nil, err
	}
	if len(snap.EventIDs) == 0 {
		return nil, ErrNoEvents
	}

	scope := map[uuid.UUID]struct{}{}
	for _, s := range students {
		scope[s.ID] = struct{}{}
	}

	if err := l.loadSignals(ctx, tx, snap, scope, userID); err != nil {
		return nil, err
	}

	// Unregister cancels any positive weight for the pair.
	for key := range snap.NegativeWeights {
		if positives, ok := snap.PositivesByUser[key.UserID]; ok {
			delete(positives, key.EventID)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	for _, student := range students {
		if err := l.buildProfile(ctx, tx, snap, student, rng); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (l *SnapshotLoader) loadEvents(ctx context.Context, tx *gorm.DB, snap *Snapshot) error {
	events, err := l.eventsAll(ctx, tx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	seats, err := l.events.SeatsTaken(ctx, tx, ids)
	if err != nil {
		return fmt.Errorf("load seat counts: %w", err)
	}
	for _, ev := range events {
		tags := make(map[string]struct{}, len(ev.Tags))
		for _, tag := range ev.Tags {
			if normalized := NormalizeTag(tag.Name); normalized != "" {
				tags[normalized] = struct{}{}
			}
		}
		snap.Events[ev.ID] = &EventProfile{
			ID:         ev.ID,
			OwnerID:    ev.OwnerID,
			Tags:       tags,
			Category:   ev.Category,
			City:       ev.City,
			Status:     ev.Status,
			PublishAt:  ev.PublishAt,
			StartTime:  ev.StartTime,
			SeatsTaken: seats[ev.ID],
			MaxSeats:   ev.MaxSeats,
		}
		snap.EventIDs = append(snap.EventIDs, ev.ID)
	}
	sort.Slice(snap.EventIDs, func(i, j int) bool {
		return snap.EventIDs[i].String() < snap.EventIDs[j].String()
	})
	return nil
}

// eventsAll includes drafts and archived events: feature history reads
// every non-deleted event even though only published ones get scored.
func (l *SnapshotLoader) eventsAll(ctx context.Context, tx *gorm.DB) ([]*types.Event, error) {
	return l.events.ListAll(ctx, tx)
}

func (l *SnapshotLoader) loadSignals(ctx context.Context, tx *gorm.DB, snap *Snapshot, scope map[uuid.UUID]struct{}, userID *uuid.UUID) error {
	registrations, err := l.registrations.ListAll(ctx, tx)
	if err != nil {
		return fmt.Errorf("load registrations: %w", err)
	}
	for _, reg := range registrations {
		if _, ok := scope[reg.UserID]; !ok {
			continue
		}
		seen, ok := snap.RegisteredByUser[reg.UserID]
		if !ok {
			seen = make(map[uuid.UUID]struct{})
			snap.RegisteredByUser[reg.UserID] = seen
		}
		seen[reg.EventID] = struct{}{}

		weight := 1.0
		if reg.Attended {
			weight += 0.5
		}
		addPositive(snap, reg.UserID, reg.EventID, weight)
	}

	favorites, err := l.favorites.ListAll(ctx, tx)
	if err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}
	for _, fav := range favorites {
		if _, ok := scope[fav.UserID]; !ok {
			continue
		}
		addPositive(snap, fav.UserID, fav.EventID, 1.2)
	}

	var interactions []*types.EventInteraction
	if userID != nil {
		interactions, err = l.interactions.ListForUser(ctx, tx, *userID, time.Time{})
	} else {
		interactions, err = l.interactions.ListAll(ctx, tx)
	}
	if err != nil {
		return fmt.Errorf("load interactions: %w", err)
	}

	for _, row := range interactions {
		if row.UserID == nil {
			continue
		}
		if _, ok := scope[*row.UserID]; !ok {
			continue
		}
		uid := *row.UserID

		// Query-level signals carry no event id.
		if row.EventID == nil {
			if row.InteractionType != types.InteractionSearch && row.InteractionType != types.InteractionFilter {
				continue
			}
			l.collectWeakSignals(snap, uid, row)
			continue
		}
		eid := *row.EventID
		key := pairKey{UserID: uid, EventID: eid}

		switch row.InteractionType {
		case types.InteractionImpression:
			seen, ok := snap.SeenByUser[uid]
			if !ok {
				seen = make(map[uuid.UUID]struct{})
				snap.SeenByUser[uid] = seen
			}
			seen[eid] = struct{}{}
			if pos, ok := impressionPosition(row); ok {
				if existing, ok := snap.ImpressionPosition[key]; !ok || pos < existing {
					snap.ImpressionPosition[key] = pos
				}
			}
		case types.InteractionUnregister:
			if snap.NegativeWeights[key] < 2.0 {
				snap.NegativeWeights[key] = 2.0
			}
		default:
			if weight := interactionLabelWeight(row); weight > 0 {
				addPositive(snap, uid, eid, weight)
			}
		}
	}
	return nil
}

func (l *SnapshotLoader) collectWeakSignals(snap *Snapshot, uid uuid.UUID, row *types.EventInteraction) {
	meta := row.MetaMap()
	if meta == nil {
		return
	}
	if raw, ok := meta["tags"].([]any); ok {
		for _, tagVal := range raw {
			name, ok := tagVal.(string)
			if !ok {
				continue
			}
			if normalized := NormalizeTag(name); normalized != "" {
				tags, ok := snap.WeakTagsByUser[uid]
				if !ok {
					tags = make(map[string]struct{})
					snap.WeakTagsByUser[uid] = tags
				}
				tags[normalized] = struct{}{}
			}
		}
	}
	if category, ok := meta["category"].(string); ok && category != "" {
		cats, ok := snap.WeakCategoriesByUser[uid]
		if !ok {
			cats = make(map[string]struct{})
			snap.WeakCategoriesByUser[uid] = cats
		}
		cats[category] = struct{}{}
	}
	if city, ok := meta["city"].(string); ok {
		if normalized := NormalizeCity(city); normalized != "" {
			snap.WeakCityByUser[uid] = normalized
		}
	}
}

func (l *SnapshotLoader) buildProfile(ctx context.Context, tx *gorm.DB, snap *Snapshot, student *types.User, rng *rand.Rand) error {
	uid := student.ID

	city := NormalizeCity(student.City)
	if city == "" {
		city = snap.WeakCityByUser[uid]
	}
	lang := "ro"
	if student.LanguagePreference == "en" {
		lang = "en"
	}

	interestTags := make(map[string]struct{})
	for _, tag := range student.InterestTags {
		if normalized := NormalizeTag(tag.Name); normalized != "" {
			interestTags[normalized] = struct{}{}
		}
	}
	implicitTags, err := l.implicit.ListTags(ctx, tx, uid)
	if err != nil {
		return fmt.Errorf("load implicit tags for %s: %w", uid, err)
	}
	for _, row := range implicitTags {
		if row.Tag == nil {
			continue
		}
		if normalized := NormalizeTag(row.Tag.Name); normalized != "" {
			interestTags[normalized] = struct{}{}
		}
	}
	for tag := range snap.WeakTagsByUser[uid] {
		interestTags[tag] = struct{}{}
	}

	hiddenTags := make(map[string]struct{}, len(student.HiddenTags))
	for _, tag := range student.HiddenTags {
		if normalized := NormalizeTag(tag.Name); normalized != "" {
			hiddenTags[normalized] = struct{}{}
		}
	}
	blocked := make(map[uuid.UUID]struct{}, len(student.BlockedOrganizers))
	for _, organizer := range student.BlockedOrganizers {
		blocked[organizer.ID] = struct{}{}
	}

	// One positive per user is held out for evaluation and excluded from
	// its own training history.
	positives := snap.PositivesByUser[uid]
	posEvents := make([]uuid.UUID, 0, len(positives))
	for eid := range positives {
		posEvents = append(posEvents, eid)
	}
	sort.Slice(posEvents, func(i, j int) bool {
		return posEvents[i].String() < posEvents[j].String()
	})
	if len(posEvents) >= 2 {
		held := posEvents[rng.Intn(len(posEvents))]
		snap.Holdout[uid] = held
		delete(positives, held)
	}

	historyTags := make(map[string]struct{})
	historyCategories := make(map[string]struct{})
	historyOrganizers := make(map[uuid.UUID]struct{})
	for eid := range positives {
		ev, ok := snap.Events[eid]
		if !ok {
			continue
		}
		for tag := range ev.Tags {
			historyTags[tag] = struct{}{}
		}
		if ev.Category != "" {
			historyCategories[ev.Category] = struct{}{}
		}
		historyOrganizers[ev.OwnerID] = struct{}{}
	}
	for category := range snap.WeakCategoriesByUser[uid] {
		historyCategories[category] = struct{}{}
	}

	snap.Users[uid] = &UserProfile{
		ID:                uid,
		City:              city,
		Lang:              lang,
		InterestTags:      interestTags,
		HistoryTags:       historyTags,
		HistoryCategories: historyCategories,
		HistoryOrganizers: historyOrganizers,
		HiddenTags:        hiddenTags,
		BlockedOrganizers: blocked,
	}
	snap.UserIDs = append(snap.UserIDs, uid)
	return nil
}

func addPositive(snap *Snapshot, userID, eventID uuid.UUID, weight float64) {
	positives, ok := snap.PositivesByUser[userID]
	if !ok {
		positives = make(map[uuid.UUID]float64)
		snap.PositivesByUser[userID] = positives
	}
	if weight > positives[eventID] {
		positives[eventID] = weight
	}
}

func impressionPosition(row *types.EventInteraction) (int, bool) {
	meta := row.MetaMap()
	if meta == nil {
		return 0, false
	}
	switch v := meta["position"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func interactionLabelWeight(row *types.EventInteraction) float64 {
	switch row.InteractionType {
	case types.InteractionClick:
		return 0.4
	case types.InteractionView:
		return 0.25
	case types.InteractionDwell:
		weight := 0.35
		if meta := row.MetaMap(); meta != nil {
			if seconds, ok := meta["seconds"].(float64); ok && seconds > 0 {
				weight += seconds / 120.0 * 0.25
				if weight > 0.8 {
					weight = 0.8
				}
			}
		}
		return weight
	case types.InteractionShare:
		return 0.6
	case types.InteractionFavorite:
		return 1.2
	case types.InteractionRegister:
		return 1.0
	default:
		return 0
	}
}
