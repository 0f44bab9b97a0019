package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/types"
)

type EnqueueOptions struct {
	JobType     string
	Payload     []byte
	DedupeKey   *string
	RunAt       *time.Time
	MaxAttempts int
}

type JobRepo interface {
	// Enqueue inserts a queued job. When a dedupe key collides with an
	// existing queued/running job of the same type, that job is returned
	// instead of an error.
	Enqueue(ctx context.Context, tx *gorm.DB, opts EnqueueOptions) (*types.BackgroundJob, error)
	// ClaimNext atomically claims the earliest ready queued job for
	// workerID. Returns (nil, nil) when nothing is ready.
	ClaimNext(ctx context.Context, tx *gorm.DB, workerID string) (*types.BackgroundJob, error)
	// RequeueStale resets jobs stuck running past the threshold back to
	// queued with their locks cleared.
	RequeueStale(ctx context.Context, tx *gorm.DB, staleAfter time.Duration) (int64, error)
	MarkSucceeded(ctx context.Context, tx *gorm.DB, job *types.BackgroundJob) error
	MarkFailed(ctx context.Context, tx *gorm.DB, job *types.BackgroundJob, jobErr string) error
	// MarkFailedPermanent fails the job terminally regardless of
	// remaining attempts.
	MarkFailedPermanent(ctx context.Context, tx *gorm.DB, job *types.BackgroundJob, jobErr string) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.BackgroundJob, error)
	ListByTypeAndStatus(ctx context.Context, tx *gorm.DB, jobType string, statuses ...string) ([]*types.BackgroundJob, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "JobRepo"),
	}
}

func (r *jobRepo) Enqueue(ctx context.Context, tx *gorm.DB, opts EnqueueOptions) (*types.BackgroundJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if opts.JobType == "" {
		return nil, fmt.Errorf("job_type required")
	}
	payload := opts.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	runAt := time.Now().UTC()
	if opts.RunAt != nil {
		runAt = opts.RunAt.UTC()
	}
	job := &types.BackgroundJob{
		JobType:     opts.JobType,
		Payload:     payload,
		Status:      types.JobStatusQueued,
		Attempts:    0,
		MaxAttempts: maxAttempts,
		RunAt:       runAt,
		DedupeKey:   opts.DedupeKey,
	}
	err := transaction.WithContext(ctx).Create(job).Error
	if err == nil {
		r.log.Info("job_enqueued", "job_id", job.ID, "job_type", job.JobType)
		return job, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) || opts.DedupeKey == nil {
		return nil, err
	}
	var existing types.BackgroundJob
	fetchErr := transaction.WithContext(ctx).
		Where("job_type = ? AND dedupe_key = ? AND status IN ?", opts.JobType, *opts.DedupeKey, []string{types.JobStatusQueued, types.JobStatusRunning}).
		Order("created_at DESC").
		Limit(1).
		Find(&existing).Error
	if fetchErr != nil {
		return nil, fetchErr
	}
	if existing.ID == uuid.Nil {
		return nil, err
	}
	return &existing, nil
}

// The claim is a conditional update guarded by status, so it behaves the
// same on every backend: of N concurrent claimants exactly one sees
// RowsAffected == 1.
func (r *jobRepo) ClaimNext(ctx context.Context, tx *gorm.DB, workerID string) (*types.BackgroundJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	for attempt := 0; attempt < 3; attempt++ {
		var candidate types.BackgroundJob
		err := transaction.WithContext(ctx).
			Where("status = ? AND run_at <= ?", types.JobStatusQueued, now).
			Order("run_at ASC, created_at ASC").
			Limit(1).
			Find(&candidate).Error
		if err != nil {
			return nil, err
		}
		if candidate.ID == uuid.Nil {
			return nil, nil
		}
		res := transaction.WithContext(ctx).
			Model(&types.BackgroundJob{}).
			Where("id = ? AND status = ?", candidate.ID, types.JobStatusQueued).
			Updates(map[string]interface{}{
				"status":    types.JobStatusRunning,
				"locked_at": now,
				"locked_by": workerID,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race; try the next candidate.
			continue
		}
		candidate.Status = types.JobStatusRunning
		candidate.LockedAt = &now
		candidate.LockedBy = workerID
		return &candidate, nil
	}
	return nil, nil
}

func (r *jobRepo) RequeueStale(ctx context.Context, tx *gorm.DB, staleAfter time.Duration) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	cutoff := time.Now().UTC().Add(-staleAfter)
	res := transaction.WithContext(ctx).
		Model(&types.BackgroundJob{}).
		Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", types.JobStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":    types.JobStatusQueued,
			"locked_at": nil,
			"locked_by": "",
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Warn("jobs_requeued_stale", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

func (r *jobRepo) MarkSucceeded(ctx context.Context, tx *gorm.DB, job *types.BackgroundJob) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	err := transaction.WithContext(ctx).
		Model(&types.BackgroundJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":      types.JobStatusSucceeded,
			"finished_at": now,
			"dedupe_key":  nil,
			"locked_at":   nil,
			"locked_by":   "",
		}).Error
	if err != nil {
		return err
	}
	job.Status = types.JobStatusSucceeded
	job.FinishedAt = &now
	job.DedupeKey = nil
	r.log.Info("job_succeeded", "job_id", job.ID, "job_type", job.JobType, "attempts", job.Attempts)
	return nil
}

// MarkFailed increments attempts and either requeues the job with
// exponential backoff (capped at 60s) or fails it terminally, releasing
// the dedupe slot.
func (r *jobRepo) MarkFailed(ctx context.Context, tx *gorm.DB, job *types.BackgroundJob, jobErr string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	job.Attempts++
	job.LastError = jobErr

	if job.Attempts < job.MaxAttempts {
		backoff := BackoffDelay(job.Attempts)
		runAt := now.Add(backoff)
		err := transaction.WithContext(ctx).
			Model(&types.BackgroundJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":     types.JobStatusQueued,
				"attempts":   job.Attempts,
				"last_error": jobErr,
				"run_at":     runAt,
				"locked_at":  nil,
				"locked_by":  "",
			}).Error
		if err != nil {
			return err
		}
		job.Status = types.JobStatusQueued
		job.RunAt = runAt
		job.LockedAt = nil
		job.LockedBy = ""
		r.log.Warn("job_failed_retrying",
			"job_id", job.ID,
			"job_type", job.JobType,
			"attempts", job.Attempts,
			"max_attempts", job.MaxAttempts,
			"backoff_seconds", int(backoff.Seconds()),
			"error", jobErr,
		)
		return nil
	}

	return r.failTerminal(ctx, transaction, job, jobErr, now)
}

func (r *jobRepo) MarkFailedPermanent(ctx context.Context, tx *gorm.DB, job *types.BackgroundJob, jobErr string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	job.Attempts++
	job.LastError = jobErr
	return r.failTerminal(ctx, transaction, job, jobErr, time.Now().UTC())
}

func (r *jobRepo) failTerminal(ctx context.Context, transaction *gorm.DB, job *types.BackgroundJob, jobErr string, now time.Time) error {
	err := transaction.WithContext(ctx).
		Model(&types.BackgroundJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":      types.JobStatusFailed,
			"attempts":    job.Attempts,
			"last_error":  jobErr,
			"finished_at": now,
			"dedupe_key":  nil,
			"locked_at":   nil,
			"locked_by":   "",
		}).Error
	if err != nil {
		return err
	}
	job.Status = types.JobStatusFailed
	job.FinishedAt = &now
	job.DedupeKey = nil
	r.log.Warn("job_failed",
		"job_id", job.ID,
		"job_type", job.JobType,
		"attempts", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"error", jobErr,
	)
	return nil
}

// BackoffDelay is min(60, 2^(attempts-1)) seconds.
func BackoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	seconds := 1
	for i := 1; i < attempts && seconds < 60; i++ {
		seconds *= 2
	}
	if seconds > 60 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

func (r *jobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.BackgroundJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var job types.BackgroundJob
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRepo) ListByTypeAndStatus(ctx context.Context, tx *gorm.DB, jobType string, statuses ...string) ([]*types.BackgroundJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.BackgroundJob
	q := transaction.WithContext(ctx).Where("job_type = ?", jobType)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
