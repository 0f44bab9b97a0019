package recommender

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/repos"
	"github.com/unievents/unievents-backend/internal/testutil"
	"github.com/unievents/unievents-backend/internal/types"
)

type pipelineFixture struct {
	db       *gorm.DB
	pipeline *Pipeline
	models   repos.RecommenderModelRepo
	recs     repos.UserRecommendationRepo
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	db := testutil.OpenDB(t)
	log := testutil.NewLogger(t)

	users := repos.NewUserRepo(db, log)
	events := repos.NewEventRepo(db, log)
	registrations := repos.NewRegistrationRepo(db, log)
	favorites := repos.NewFavoriteRepo(db, log)
	interactions := repos.NewInteractionRepo(db, log)
	implicit := repos.NewImplicitInterestRepo(db, log)
	models := repos.NewRecommenderModelRepo(db, log)
	recs := repos.NewUserRecommendationRepo(db, log)

	loader := NewSnapshotLoader(users, events, registrations, favorites, interactions, implicit)
	scorer := NewScorer(recs, log)
	return &pipelineFixture{
		db:       db,
		pipeline: NewPipeline(loader, models, scorer, log),
		models:   models,
		recs:     recs,
	}
}

func (f *pipelineFixture) seedStudent(t *testing.T, email string, interests ...*types.Tag) *types.User {
	t.Helper()
	user := &types.User{
		Email:        email,
		Role:         types.UserRoleStudent,
		IsActive:     true,
		InterestTags: interests,
	}
	if err := f.db.Create(user).Error; err != nil {
		t.Fatalf("seed student: %v", err)
	}
	return user
}

func (f *pipelineFixture) seedEvent(t *testing.T, owner *types.User, title string, start time.Time, tags ...*types.Tag) *types.Event {
	t.Helper()
	event := &types.Event{
		OwnerID:   owner.ID,
		Title:     title,
		Status:    types.EventStatusPublished,
		StartTime: &start,
		Tags:      tags,
	}
	if err := f.db.Create(event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return event
}

func (f *pipelineFixture) seedTag(t *testing.T, name string) *types.Tag {
	t.Helper()
	tag := &types.Tag{Name: name}
	if err := f.db.Create(tag).Error; err != nil {
		t.Fatalf("seed tag: %v", err)
	}
	return tag
}

func (f *pipelineFixture) seedOrganizer(t *testing.T) *types.User {
	t.Helper()
	organizer := &types.User{
		Email:    uuid.NewString() + "@org.example",
		Role:     types.UserRoleOrganizer,
		IsActive: true,
	}
	if err := f.db.Create(organizer).Error; err != nil {
		t.Fatalf("seed organizer: %v", err)
	}
	return organizer
}

func TestPipelineTrainsPersistsAndScores(t *testing.T) {
	f := newPipelineFixture(t)
	ai := f.seedTag(t, "ai")
	web := f.seedTag(t, "web")
	organizer := f.seedOrganizer(t)
	student := f.seedStudent(t, "ana@uni.example", ai)
	future := time.Now().UTC().Add(7 * 24 * time.Hour)

	liked := f.seedEvent(t, organizer, "AI Meetup", future, ai)
	f.seedEvent(t, organizer, "Web Meetup", future, web)
	f.seedEvent(t, organizer, "AI Workshop", future, ai)

	if err := f.db.Create(&types.Registration{UserID: student.ID, EventID: liked.ID}).Error; err != nil {
		t.Fatalf("seed registration: %v", err)
	}

	cfg := DefaultConfig()
	cfg.TopN = 10
	result, err := f.pipeline.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Examples == 0 {
		t.Fatalf("no training examples built")
	}
	if result.UsersScored != 1 {
		t.Fatalf("users scored = %d, want 1", result.UsersScored)
	}

	// The trained model is persisted and active.
	active, err := f.models.GetActive(context.Background(), nil)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active == nil || active.ModelVersion != result.ModelVersion {
		t.Fatalf("active model = %+v, want %s", active, result.ModelVersion)
	}
	if len(active.WeightVector()) != len(FeatureNames) {
		t.Fatalf("persisted weight length = %d", len(active.WeightVector()))
	}

	// Cached rankings exist and exclude the already-registered event.
	recs, err := f.recs.ListForUser(context.Background(), nil, student.ID, 0)
	if err != nil {
		t.Fatalf("list recs: %v", err)
	}
	if len(recs) == 0 {
		t.Fatalf("no recommendations written")
	}
	for _, rec := range recs {
		if rec.EventID == liked.ID {
			t.Fatalf("registered event was recommended")
		}
		if rec.ModelVersion != result.ModelVersion {
			t.Fatalf("rec model version = %q", rec.ModelVersion)
		}
		if rec.Reason == "" {
			t.Fatalf("rec missing reason")
		}
	}
	for i, rec := range recs {
		if rec.Rank != i+1 {
			t.Fatalf("ranks not dense 1-based: %v", rec.Rank)
		}
	}
}

func TestPipelineSkipTrainingUsesPersistedModel(t *testing.T) {
	f := newPipelineFixture(t)
	ai := f.seedTag(t, "ai")
	organizer := f.seedOrganizer(t)
	student := f.seedStudent(t, "bob@uni.example", ai)
	future := time.Now().UTC().Add(3 * 24 * time.Hour)
	f.seedEvent(t, organizer, "AI Nights", future, ai)

	model := &types.RecommenderModel{
		ModelVersion: "ml-v1-manual",
		FeatureNames: types.MustJSON(FeatureNames),
		Weights:      types.MustJSON([]float64{0, 5, 0, 0, 0, 0, 0, 0}),
	}
	if err := f.models.Create(context.Background(), nil, model); err != nil {
		t.Fatalf("create model: %v", err)
	}
	if err := f.models.Activate(context.Background(), nil, model.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	cfg := DefaultConfig()
	cfg.SkipTraining = true
	result, err := f.pipeline.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ModelVersion != "ml-v1-manual" {
		t.Fatalf("model version = %q, want ml-v1-manual", result.ModelVersion)
	}
	if result.Hitrate != nil {
		t.Fatalf("skip-training run should not evaluate")
	}
	if result.RowsWritten == 0 {
		t.Fatalf("no rows written")
	}

	recs, err := f.recs.ListForUser(context.Background(), nil, student.ID, 0)
	if err != nil || len(recs) == 0 {
		t.Fatalf("recs = %v, %v", recs, err)
	}
}

func TestPipelineSkipTrainingNoModel(t *testing.T) {
	f := newPipelineFixture(t)
	ai := f.seedTag(t, "ai")
	organizer := f.seedOrganizer(t)
	f.seedStudent(t, "carol@uni.example", ai)
	f.seedEvent(t, organizer, "AI Talks", time.Now().UTC().Add(24*time.Hour), ai)

	cfg := DefaultConfig()
	cfg.SkipTraining = true
	_, err := f.pipeline.Run(context.Background(), cfg)
	if !errors.Is(err, ErrNoModel) {
		t.Fatalf("err = %v, want ErrNoModel", err)
	}
	if !CleanExit(err) {
		t.Fatalf("ErrNoModel should be a clean exit")
	}
}

func TestPipelineSkipTrainingSchemaMismatch(t *testing.T) {
	f := newPipelineFixture(t)
	ai := f.seedTag(t, "ai")
	organizer := f.seedOrganizer(t)
	f.seedStudent(t, "dan@uni.example", ai)
	f.seedEvent(t, organizer, "AI Forum", time.Now().UTC().Add(24*time.Hour), ai)

	stale := &types.RecommenderModel{
		ModelVersion: "ml-v0-legacy",
		FeatureNames: types.MustJSON([]string{"bias", "old_feature"}),
		Weights:      types.MustJSON([]float64{0.1, 0.2}),
	}
	if err := f.models.Create(context.Background(), nil, stale); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.models.Activate(context.Background(), nil, stale.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	cfg := DefaultConfig()
	cfg.SkipTraining = true
	_, err := f.pipeline.Run(context.Background(), cfg)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("err = %v, want ErrSchemaMismatch", err)
	}
	if CleanExit(err) {
		t.Fatalf("schema mismatch must not be a clean exit")
	}
}

func TestPipelineNoStudents(t *testing.T) {
	f := newPipelineFixture(t)
	organizer := f.seedOrganizer(t)
	f.seedEvent(t, organizer, "Lonely Event", time.Now().UTC().Add(24*time.Hour))

	_, err := f.pipeline.Run(context.Background(), DefaultConfig())
	if !errors.Is(err, ErrNoStudents) {
		t.Fatalf("err = %v, want ErrNoStudents", err)
	}
}

func TestPipelineDryRunWritesNothing(t *testing.T) {
	f := newPipelineFixture(t)
	ai := f.seedTag(t, "ai")
	organizer := f.seedOrganizer(t)
	student := f.seedStudent(t, "eve@uni.example", ai)
	future := time.Now().UTC().Add(24 * time.Hour)
	liked := f.seedEvent(t, organizer, "AI Eve", future, ai)
	f.seedEvent(t, organizer, "AI Later", future, ai)
	if err := f.db.Create(&types.Registration{UserID: student.ID, EventID: liked.ID}).Error; err != nil {
		t.Fatalf("seed registration: %v", err)
	}

	cfg := DefaultConfig()
	cfg.DryRun = true
	result, err := f.pipeline.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.RowsWritten != 0 {
		t.Fatalf("dry run wrote %d rows", result.RowsWritten)
	}

	var modelCount int64
	if err := f.db.Model(&types.RecommenderModel{}).Count(&modelCount).Error; err != nil {
		t.Fatalf("count models: %v", err)
	}
	if modelCount != 0 {
		t.Fatalf("dry run persisted %d models", modelCount)
	}

	recs, err := f.recs.ListForUser(context.Background(), nil, student.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("dry run cached %d recommendations", len(recs))
	}
}
