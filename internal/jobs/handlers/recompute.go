package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/unievents/unievents-backend/internal/jobs"
	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/recommender"
	"github.com/unievents/unievents-backend/internal/types"
)

// RecomputeHandler runs the recommender pipeline. The same handler
// serves two job types: the global retrain+score job and the per-user
// score-only refresh, which differ only in their payloads.
type RecomputeHandler struct {
	jobType  string
	pipeline *recommender.Pipeline
	log      *logger.Logger
}

func NewRecomputeHandler(pipeline *recommender.Pipeline, baseLog *logger.Logger) *RecomputeHandler {
	return &RecomputeHandler{
		jobType:  types.JobTypeRecomputeRecommendations,
		pipeline: pipeline,
		log:      baseLog.With("handler", types.JobTypeRecomputeRecommendations),
	}
}

func NewRefreshUserHandler(pipeline *recommender.Pipeline, baseLog *logger.Logger) *RecomputeHandler {
	return &RecomputeHandler{
		jobType:  types.JobTypeRefreshUserRecommendations,
		pipeline: pipeline,
		log:      baseLog.With("handler", types.JobTypeRefreshUserRecommendations),
	}
}

func (h *RecomputeHandler) Type() string { return h.jobType }

func (h *RecomputeHandler) Run(ctx context.Context, job *types.BackgroundJob) error {
	p, err := jobs.DecodeRecompute(job)
	if err != nil {
		return err
	}
	cfg := pipelineConfig(p)
	if h.jobType == types.JobTypeRefreshUserRecommendations {
		// A refresh never trains; the payload carries the user.
		cfg.SkipTraining = true
	}

	result, err := h.pipeline.Run(ctx, cfg)
	if err != nil {
		if recommender.CleanExit(err) {
			h.log.Info("nothing to do", "reason", err.Error())
			return nil
		}
		if errors.Is(err, recommender.ErrSchemaMismatch) {
			return jobs.Permanent(err)
		}
		return err
	}

	fields := []any{
		"model_version", result.ModelVersion,
		"examples", result.Examples,
		"users_scored", result.UsersScored,
		"rows_written", result.RowsWritten,
	}
	if result.Hitrate != nil {
		fields = append(fields, "hitrate_at_10", *result.Hitrate)
	}
	h.log.Info("recompute done", fields...)
	return nil
}

func pipelineConfig(p jobs.RecomputePayload) recommender.Config {
	cfg := recommender.DefaultConfig()
	if p.TopN != nil && *p.TopN > 0 {
		cfg.TopN = *p.TopN
	}
	if p.Epochs != nil && *p.Epochs > 0 {
		cfg.Epochs = *p.Epochs
	}
	if p.LR != nil && *p.LR > 0 {
		cfg.LR = *p.LR
	}
	if p.L2 != nil && *p.L2 >= 0 {
		cfg.L2 = *p.L2
	}
	if p.Seed != nil {
		cfg.Seed = *p.Seed
	}
	if p.TimeoutSeconds != nil && *p.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(*p.TimeoutSeconds) * time.Second
	}
	cfg.UserID = p.UserID
	cfg.SkipTraining = p.SkipTraining
	cfg.ModelVersion = p.ModelVersion
	return cfg
}
