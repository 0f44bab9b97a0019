package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/unievents/unievents-backend/internal/types"
)

// Job payloads are a closed set of typed contracts, one per job type.
// Handlers decode with the matching helper; a payload that does not
// parse is a permanent failure, not a retry.

type SendEmailPayload struct {
	ToEmail  string         `json:"to_email"`
	Subject  string         `json:"subject"`
	BodyText string         `json:"body_text"`
	BodyHTML string         `json:"body_html,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// RecomputePayload drives both recompute_recommendations_ml and
// refresh_user_recommendations_ml. Nil fields fall back to defaults.
type RecomputePayload struct {
	TopN           *int       `json:"top_n,omitempty"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	SkipTraining   bool       `json:"skip_training,omitempty"`
	Epochs         *int       `json:"epochs,omitempty"`
	LR             *float64   `json:"lr,omitempty"`
	L2             *float64   `json:"l2,omitempty"`
	Seed           *int64     `json:"seed,omitempty"`
	ModelVersion   string     `json:"model_version,omitempty"`
	TimeoutSeconds *int       `json:"timeout_seconds,omitempty"`
}

type GuardrailPayload struct {
	Days                       *int     `json:"days,omitempty"`
	MinImpressions             *int     `json:"min_impressions,omitempty"`
	CTRDropRatio               *float64 `json:"ctr_drop_ratio,omitempty"`
	ConversionDropRatio        *float64 `json:"conversion_drop_ratio,omitempty"`
	ClickToRegisterWindowHours *int     `json:"click_to_register_window_hours,omitempty"`
}

type WeeklyDigestPayload struct {
	TopN *int `json:"top_n,omitempty"`
}

type FillingFastPayload struct {
	ThresholdAbs   *int     `json:"threshold_abs,omitempty"`
	ThresholdRatio *float64 `json:"threshold_ratio,omitempty"`
	MaxPerUser     *int     `json:"max_per_user,omitempty"`
}

func decodePayload[T any](job *types.BackgroundJob, out *T) error {
	if len(job.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(job.Payload, out); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", job.JobType, err))
	}
	return nil
}

func DecodeSendEmail(job *types.BackgroundJob) (SendEmailPayload, error) {
	var p SendEmailPayload
	err := decodePayload(job, &p)
	return p, err
}

func DecodeRecompute(job *types.BackgroundJob) (RecomputePayload, error) {
	var p RecomputePayload
	err := decodePayload(job, &p)
	return p, err
}

func DecodeGuardrail(job *types.BackgroundJob) (GuardrailPayload, error) {
	var p GuardrailPayload
	err := decodePayload(job, &p)
	return p, err
}

func DecodeWeeklyDigest(job *types.BackgroundJob) (WeeklyDigestPayload, error) {
	var p WeeklyDigestPayload
	err := decodePayload(job, &p)
	return p, err
}

func DecodeFillingFast(job *types.BackgroundJob) (FillingFastPayload, error) {
	var p FillingFastPayload
	err := decodePayload(job, &p)
	return p, err
}
