package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

const (
	JobTypeSendEmail                  = "send_email"
	JobTypeRecomputeRecommendations   = "recompute_recommendations_ml"
	JobTypeRefreshUserRecommendations = "refresh_user_recommendations_ml"
	JobTypeEvaluateGuardrails         = "evaluate_personalization_guardrails"
	JobTypeSendWeeklyDigest           = "send_weekly_digest"
	JobTypeSendFillingFastAlerts      = "send_filling_fast_alerts"
)

// DedupeKey is a pointer so terminal jobs can release the
// (job_type, dedupe_key) unique slot by nulling it out.
type BackgroundJob struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobType     string         `gorm:"column:job_type;not null;index;uniqueIndex:uq_background_job_dedupe" json:"job_type"`
	Payload     datatypes.JSON `gorm:"type:jsonb;column:payload;not null" json:"payload"`
	Status      string         `gorm:"not null;index;default:queued" json:"status"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int            `gorm:"not null;default:3" json:"max_attempts"`
	RunAt       time.Time      `gorm:"column:run_at;not null;index" json:"run_at"`
	LockedAt    *time.Time     `gorm:"column:locked_at" json:"locked_at,omitempty"`
	LockedBy    string         `gorm:"column:locked_by" json:"locked_by,omitempty"`
	LastError   string         `gorm:"column:last_error" json:"last_error,omitempty"`
	DedupeKey   *string        `gorm:"column:dedupe_key;uniqueIndex:uq_background_job_dedupe" json:"dedupe_key,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	FinishedAt  *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

func (BackgroundJob) TableName() string { return "background_jobs" }

func (j *BackgroundJob) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
