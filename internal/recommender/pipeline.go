package recommender

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/repos"
	"github.com/unievents/unievents-backend/internal/types"
)

type Config struct {
	TopN                 int
	Epochs               int
	LR                   float64
	L2                   float64
	NegativesPerPositive int
	EvalNegatives        int
	Seed                 int64
	UserID               *uuid.UUID
	SkipTraining         bool
	DryRun               bool
	ModelVersion         string
	Timeout              time.Duration
}

func DefaultConfig() Config {
	return Config{
		TopN:                 50,
		Epochs:               6,
		LR:                   0.35,
		L2:                   0.01,
		NegativesPerPositive: 3,
		EvalNegatives:        50,
		Seed:                 1337,
		Timeout:              10 * time.Minute,
	}
}

type Result struct {
	ModelVersion string
	Hitrate      *float64
	Examples     int
	UsersScored  int
	RowsWritten  int
}

// Pipeline runs the full retrain+score flow or a score-only refresh
// from a persisted model.
type Pipeline struct {
	loader *SnapshotLoader
	models repos.RecommenderModelRepo
	scorer *Scorer
	log    *logger.Logger
}

func NewPipeline(loader *SnapshotLoader, models repos.RecommenderModelRepo, scorer *Scorer, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{
		loader: loader,
		models: models,
		scorer: scorer,
		log:    baseLog.With("component", "recommender"),
	}
}

// Run executes the pipeline. No-data conditions come back as the
// sentinel errors in errors.go; ErrSchemaMismatch is not retryable.
func (p *Pipeline) Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	now := time.Now().UTC()

	snap, err := p.loader.Load(ctx, nil, cfg.UserID, now, cfg.Seed)
	if err != nil {
		return nil, err
	}

	var (
		weights      []float64
		modelVersion string
		hitrate      *float64
		exampleCount int
	)

	if cfg.SkipTraining {
		weights, modelVersion, err = p.loadPersistedModel(ctx, cfg.ModelVersion)
		if err != nil {
			return nil, err
		}
		p.log.Info("model_loaded", "model_version", modelVersion)
	} else {
		modelVersion = cfg.ModelVersion
		if modelVersion == "" {
			modelVersion = fmt.Sprintf("ml-v1-%s", now.Format("2006-01-02"))
		}

		rng := rand.New(rand.NewSource(cfg.Seed))
		examples := BuildExamples(snap, cfg.NegativesPerPositive, rng)
		if len(examples) == 0 {
			return nil, ErrNoTrainingData
		}
		exampleCount = len(examples)
		if len(examples[0].X) != len(FeatureNames) {
			return nil, fmt.Errorf("%w: vector length %d, schema %d", ErrSchemaMismatch, len(examples[0].X), len(FeatureNames))
		}

		weights, err = TrainSGD(ctx, examples, cfg.Epochs, cfg.LR, cfg.L2, cfg.Seed, p.log)
		if err != nil {
			return nil, fmt.Errorf("train: %w", err)
		}

		rate, err := EvaluateHitRateAtK(ctx, snap, weights, 10, cfg.EvalNegatives, cfg.Seed)
		if err != nil {
			return nil, fmt.Errorf("evaluate: %w", err)
		}
		hitrate = &rate
		p.log.Info("model_evaluated", "hitrate_at_10", rate, "holdout_users", len(snap.Holdout))

		if !cfg.DryRun {
			if err := p.persistModel(ctx, modelVersion, weights, rate, exampleCount, cfg, now); err != nil {
				return nil, fmt.Errorf("persist model: %w", err)
			}
		}
	}

	result := &Result{
		ModelVersion: modelVersion,
		Hitrate:      hitrate,
		Examples:     exampleCount,
		UsersScored:  len(snap.UserIDs),
	}
	if cfg.DryRun {
		p.log.Info("dry_run", "model_version", modelVersion)
		return result, nil
	}

	rows, err := p.scorer.ScoreAll(ctx, snap, weights, modelVersion, cfg.TopN)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	result.RowsWritten = rows
	return result, nil
}

// loadPersistedModel resolves in order: requested version, active model,
// newest model. The feature-name list must match the fixed schema.
func (p *Pipeline) loadPersistedModel(ctx context.Context, requestedVersion string) ([]float64, string, error) {
	var model *types.RecommenderModel
	var err error
	if requestedVersion != "" {
		model, err = p.models.GetByVersion(ctx, nil, requestedVersion)
		if err != nil {
			return nil, "", err
		}
	}
	if model == nil {
		model, err = p.models.GetActive(ctx, nil)
		if err != nil {
			return nil, "", err
		}
	}
	if model == nil {
		all, err := p.models.List(ctx, nil)
		if err != nil {
			return nil, "", err
		}
		if len(all) > 0 {
			model = all[len(all)-1]
		}
	}
	if model == nil {
		return nil, "", ErrNoModel
	}

	names := model.FeatureNameList()
	if !schemaMatches(names) {
		return nil, "", fmt.Errorf("%w: persisted %v", ErrSchemaMismatch, names)
	}
	weights := model.WeightVector()
	if len(weights) != len(FeatureNames) {
		return nil, "", fmt.Errorf("%w: weight length %d, schema %d", ErrSchemaMismatch, len(weights), len(FeatureNames))
	}
	return weights, model.ModelVersion, nil
}

func schemaMatches(names []string) bool {
	if len(names) != len(FeatureNames) {
		return false
	}
	for i, name := range names {
		if name != FeatureNames[i] {
			return false
		}
	}
	return true
}

func (p *Pipeline) persistModel(ctx context.Context, version string, weights []float64, hitrate float64, examples int, cfg Config, now time.Time) error {
	meta := map[string]any{
		"hitrate_at_10":          hitrate,
		"trained_at":             now.Format(time.RFC3339),
		"examples":               examples,
		"epochs":                 cfg.Epochs,
		"lr":                     cfg.LR,
		"l2":                     cfg.L2,
		"negatives_per_positive": cfg.NegativesPerPositive,
	}

	existing, err := p.models.GetByVersion(ctx, nil, version)
	if err != nil {
		return err
	}
	if existing == nil {
		existing = &types.RecommenderModel{
			ModelVersion: version,
			FeatureNames: types.MustJSON(FeatureNames),
			Weights:      types.MustJSON(weights),
			Meta:         types.MustJSON(meta),
		}
		if err := p.models.Create(ctx, nil, existing); err != nil {
			return err
		}
	} else {
		existing.FeatureNames = types.MustJSON(FeatureNames)
		existing.Weights = types.MustJSON(weights)
		existing.Meta = types.MustJSON(meta)
		if err := p.models.Update(ctx, nil, existing); err != nil {
			return err
		}
	}
	return p.models.Activate(ctx, nil, existing.ID)
}
