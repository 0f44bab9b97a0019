package jobs

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/types"
)

// ScheduleSpec is one recurring enqueue read from the scheduler YAML.
// The dedupe key makes a still-running job suppress the next tick's
// enqueue instead of stacking duplicates.
type ScheduleSpec struct {
	JobType     string         `yaml:"job_type"`
	Every       string         `yaml:"every"`
	DedupeKey   string         `yaml:"dedupe_key"`
	MaxAttempts int            `yaml:"max_attempts"`
	Payload     map[string]any `yaml:"payload"`
}

type scheduleFile struct {
	Schedules []ScheduleSpec `yaml:"schedules"`
}

type Schedule struct {
	Spec  ScheduleSpec
	Every time.Duration
}

func LoadSchedules(path string) ([]Schedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}
	var file scheduleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse schedule file: %w", err)
	}
	out := make([]Schedule, 0, len(file.Schedules))
	for _, spec := range file.Schedules {
		if spec.JobType == "" {
			return nil, fmt.Errorf("schedule with empty job_type")
		}
		every, err := time.ParseDuration(spec.Every)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: bad interval %q: %w", spec.JobType, spec.Every, err)
		}
		if every <= 0 {
			return nil, fmt.Errorf("schedule %s: interval must be positive", spec.JobType)
		}
		out = append(out, Schedule{Spec: spec, Every: every})
	}
	return out, nil
}

// DefaultSchedules covers the standard cadence when no YAML file is
// configured: nightly retrain, guardrails every 6h, weekly digest,
// filling-fast alerts every 6h.
func DefaultSchedules() []Schedule {
	return []Schedule{
		{
			Spec: ScheduleSpec{
				JobType:   types.JobTypeRecomputeRecommendations,
				DedupeKey: DedupeKeyRecomputeGlobal,
			},
			Every: 24 * time.Hour,
		},
		{
			Spec: ScheduleSpec{
				JobType:   types.JobTypeEvaluateGuardrails,
				DedupeKey: DedupeKeyGuardrails,
			},
			Every: 6 * time.Hour,
		},
		{
			Spec: ScheduleSpec{
				JobType:   types.JobTypeSendWeeklyDigest,
				DedupeKey: "weekly_digest",
			},
			Every: 7 * 24 * time.Hour,
		},
		{
			Spec: ScheduleSpec{
				JobType:   types.JobTypeSendFillingFastAlerts,
				DedupeKey: "filling_fast",
			},
			Every: 6 * time.Hour,
		},
	}
}

// Scheduler enqueues recurring jobs on fixed intervals.
type Scheduler struct {
	enqueuer  *Enqueuer
	log       *logger.Logger
	schedules []Schedule
}

func NewScheduler(enqueuer *Enqueuer, schedules []Schedule, baseLog *logger.Logger) *Scheduler {
	return &Scheduler{
		enqueuer:  enqueuer,
		log:       baseLog.With("component", "Scheduler"),
		schedules: schedules,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	for _, schedule := range s.schedules {
		schedule := schedule
		go s.runSchedule(ctx, schedule)
	}
}

func (s *Scheduler) runSchedule(ctx context.Context, schedule Schedule) {
	s.log.Info("schedule started",
		"job_type", schedule.Spec.JobType,
		"every", schedule.Every.String(),
		"dedupe_key", schedule.Spec.DedupeKey,
	)
	ticker := time.NewTicker(schedule.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := s.enqueuer.EnqueueRaw(ctx, schedule.Spec.JobType, schedule.Spec.Payload, schedule.Spec.DedupeKey, schedule.Spec.MaxAttempts)
			if err != nil {
				s.log.Warn("scheduled enqueue failed", "job_type", schedule.Spec.JobType, "error", err)
				continue
			}
			s.log.Debug("scheduled enqueue", "job_type", schedule.Spec.JobType, "job_id", job.ID)
		}
	}
}
