package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/unievents/unievents-backend/internal/clients/redis"
	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/repos"
	"github.com/unievents/unievents-backend/internal/types"
)

const (
	DedupeKeyRecomputeGlobal = "global"
	DedupeKeyGuardrails      = "guardrails"
)

// DedupeKeyRefreshUser scopes realtime refreshes to one in-flight job
// per user.
func DedupeKeyRefreshUser(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// Enqueuer is the typed enqueue surface handed to collaborators. Each
// helper owns its payload contract and default dedupe key.
type Enqueuer struct {
	jobs repos.JobRepo
	bus  redisclient.JobEventBus
	log  *logger.Logger
}

func NewEnqueuer(jobs repos.JobRepo, bus redisclient.JobEventBus, baseLog *logger.Logger) *Enqueuer {
	return &Enqueuer{
		jobs: jobs,
		bus:  bus,
		log:  baseLog.With("component", "Enqueuer"),
	}
}

func (e *Enqueuer) enqueue(ctx context.Context, jobType string, payload any, dedupeKey *string, runAt *time.Time, maxAttempts int) (*types.BackgroundJob, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", jobType, err)
	}
	job, err := e.jobs.Enqueue(ctx, nil, repos.EnqueueOptions{
		JobType:     jobType,
		Payload:     raw,
		DedupeKey:   dedupeKey,
		RunAt:       runAt,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		return nil, err
	}
	if e.bus != nil {
		e.bus.Publish(ctx, redisclient.JobEvent{
			JobID:   job.ID,
			JobType: job.JobType,
			Status:  job.Status,
			At:      time.Now().UTC(),
		})
	}
	return job, nil
}

func (e *Enqueuer) SendEmail(ctx context.Context, p SendEmailPayload) (*types.BackgroundJob, error) {
	return e.enqueue(ctx, types.JobTypeSendEmail, p, nil, nil, 0)
}

// Recompute schedules a full retrain+score run; at most one global
// recompute is in flight at a time.
func (e *Enqueuer) Recompute(ctx context.Context, p RecomputePayload) (*types.BackgroundJob, error) {
	key := DedupeKeyRecomputeGlobal
	return e.enqueue(ctx, types.JobTypeRecomputeRecommendations, p, &key, nil, 0)
}

// RefreshUser schedules a score-only refresh for one user.
func (e *Enqueuer) RefreshUser(ctx context.Context, userID uuid.UUID, topN *int) (*types.BackgroundJob, error) {
	key := DedupeKeyRefreshUser(userID)
	p := RecomputePayload{
		UserID:       &userID,
		SkipTraining: true,
		TopN:         topN,
	}
	return e.enqueue(ctx, types.JobTypeRefreshUserRecommendations, p, &key, nil, 0)
}

func (e *Enqueuer) Guardrails(ctx context.Context, p GuardrailPayload) (*types.BackgroundJob, error) {
	key := DedupeKeyGuardrails
	return e.enqueue(ctx, types.JobTypeEvaluateGuardrails, p, &key, nil, 0)
}

func (e *Enqueuer) WeeklyDigest(ctx context.Context, p WeeklyDigestPayload, dedupeKey string) (*types.BackgroundJob, error) {
	var key *string
	if dedupeKey != "" {
		key = &dedupeKey
	}
	return e.enqueue(ctx, types.JobTypeSendWeeklyDigest, p, key, nil, 0)
}

func (e *Enqueuer) FillingFastAlerts(ctx context.Context, p FillingFastPayload, dedupeKey string) (*types.BackgroundJob, error) {
	var key *string
	if dedupeKey != "" {
		key = &dedupeKey
	}
	return e.enqueue(ctx, types.JobTypeSendFillingFastAlerts, p, key, nil, 0)
}

// EnqueueRaw keeps an escape hatch for schedules defined in config
// files, where the payload is free-form.
func (e *Enqueuer) EnqueueRaw(ctx context.Context, jobType string, payload map[string]any, dedupeKey string, maxAttempts int) (*types.BackgroundJob, error) {
	var key *string
	if dedupeKey != "" {
		key = &dedupeKey
	}
	return e.enqueue(ctx, jobType, payload, key, nil, maxAttempts)
}
