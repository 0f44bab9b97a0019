package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unievents/unievents-backend/internal/jobs"
	"github.com/unievents/unievents-backend/internal/platform/envutil"
	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/repos"
	"github.com/unievents/unievents-backend/internal/types"
)

const (
	VariantRecommended = "recommended"
	VariantTime        = "time"
)

const (
	GuardrailActionDisabled        = "disabled"
	GuardrailActionSkipLowVolume   = "skip_low_volume"
	GuardrailActionOK              = "ok"
	GuardrailActionNoActiveModel   = "no_active_model"
	GuardrailActionNoPreviousModel = "no_previous_model"
	GuardrailActionRollback        = "rollback"
)

type GuardrailConfig struct {
	Enabled                    bool
	Days                       int
	MinImpressions             int
	CTRDropRatio               float64
	ConversionDropRatio        float64
	ClickToRegisterWindowHours int
	RecomputeTopN              int
}

func GuardrailConfigFromEnv() GuardrailConfig {
	return GuardrailConfig{
		Enabled:                    envutil.Bool("GUARDRAILS_ENABLED", true),
		Days:                       envutil.Int("GUARDRAILS_DAYS", 7),
		MinImpressions:             envutil.Int("GUARDRAILS_MIN_IMPRESSIONS", 50),
		CTRDropRatio:               envutil.Float("GUARDRAILS_CTR_DROP_RATIO", 0.25),
		ConversionDropRatio:        envutil.Float("GUARDRAILS_CONVERSION_DROP_RATIO", 0.25),
		ClickToRegisterWindowHours: envutil.Int("GUARDRAILS_CLICK_TO_REGISTER_WINDOW_HOURS", 72),
		RecomputeTopN:              envutil.Int("REALTIME_REFRESH_TOP_N", 50),
	}
}

// VariantMetrics is one side of the A/B comparison, "recommended" vs
// chronological "time" sort on the events list.
type VariantMetrics struct {
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	Conversions int     `json:"conversions"`
	CTR         float64 `json:"ctr"`
	Conversion  float64 `json:"conversion"`
}

type GuardrailResult struct {
	Enabled        bool                      `json:"enabled"`
	Days           int                       `json:"days"`
	Variants       map[string]VariantMetrics `json:"variants"`
	CTROK          bool                      `json:"ctr_ok"`
	ConversionOK   bool                      `json:"conversion_ok"`
	Action         string                    `json:"action"`
	RolledBackFrom string                    `json:"rolled_back_from,omitempty"`
	RolledBackTo   string                    `json:"rolled_back_to,omitempty"`
}

// GuardrailService compares live CTR and click-to-register conversion
// between the recommended and chronological list variants, and rolls
// the active model back to its predecessor when recommended degrades.
type GuardrailService struct {
	cfg          GuardrailConfig
	interactions repos.InteractionRepo
	models       repos.RecommenderModelRepo
	enqueuer     *jobs.Enqueuer
	log          *logger.Logger
}

func NewGuardrailService(
	cfg GuardrailConfig,
	interactions repos.InteractionRepo,
	models repos.RecommenderModelRepo,
	enqueuer *jobs.Enqueuer,
	baseLog *logger.Logger,
) *GuardrailService {
	return &GuardrailService{
		cfg:          cfg,
		interactions: interactions,
		models:       models,
		enqueuer:     enqueuer,
		log:          baseLog.With("service", "GuardrailService"),
	}
}

type guardrailParams struct {
	days                int
	minImpressions      int
	ctrDropRatio        float64
	conversionDropRatio float64
	clickWindow         time.Duration
}

func (s *GuardrailService) resolveParams(override GuardrailOverrides) guardrailParams {
	p := guardrailParams{
		days:                s.cfg.Days,
		minImpressions:      s.cfg.MinImpressions,
		ctrDropRatio:        s.cfg.CTRDropRatio,
		conversionDropRatio: s.cfg.ConversionDropRatio,
	}
	if override.Days != nil && *override.Days >= 1 && *override.Days <= 365 {
		p.days = *override.Days
	}
	if override.MinImpressions != nil && *override.MinImpressions > 0 {
		p.minImpressions = *override.MinImpressions
	}
	if override.CTRDropRatio != nil && *override.CTRDropRatio > 0 {
		p.ctrDropRatio = *override.CTRDropRatio
	}
	if override.ConversionDropRatio != nil && *override.ConversionDropRatio > 0 {
		p.conversionDropRatio = *override.ConversionDropRatio
	}
	hours := s.cfg.ClickToRegisterWindowHours
	if override.ClickToRegisterWindowHours != nil && *override.ClickToRegisterWindowHours > 0 {
		hours = *override.ClickToRegisterWindowHours
	}
	if hours < 1 {
		hours = 1
	}
	p.clickWindow = time.Duration(hours) * time.Hour
	return p
}

// GuardrailOverrides are per-job parameter overrides; nil fields fall
// back to the configured defaults.
type GuardrailOverrides struct {
	Days                       *int
	MinImpressions             *int
	CTRDropRatio               *float64
	ConversionDropRatio        *float64
	ClickToRegisterWindowHours *int
}

type pairKey struct {
	UserID  uuid.UUID
	EventID uuid.UUID
}

type latestClick struct {
	Sort       string
	OccurredAt time.Time
}

func metaVariant(row *types.EventInteraction) (string, bool) {
	source, _ := row.MetaValue("source")
	sort, _ := row.MetaValue("sort")
	if strings.ToLower(strings.TrimSpace(source)) != "events_list" {
		return "", false
	}
	sort = strings.ToLower(strings.TrimSpace(sort))
	if sort != VariantRecommended && sort != VariantTime {
		return "", false
	}
	return sort, true
}

// Evaluate runs one guardrail pass over the trailing window.
func (s *GuardrailService) Evaluate(ctx context.Context, tx *gorm.DB, override GuardrailOverrides) (*GuardrailResult, error) {
	if !s.cfg.Enabled {
		return &GuardrailResult{Enabled: false, Action: GuardrailActionDisabled}, nil
	}
	p := s.resolveParams(override)
	now := time.Now().UTC()
	start := now.Add(-time.Duration(p.days) * 24 * time.Hour)

	rows, err := s.interactions.ListSince(ctx, tx, start,
		types.InteractionImpression, types.InteractionClick, types.InteractionRegister)
	if err != nil {
		return nil, err
	}

	impressions := map[string]int{VariantRecommended: 0, VariantTime: 0}
	clicks := map[string]int{VariantRecommended: 0, VariantTime: 0}
	conversions := map[string]int{VariantRecommended: 0, VariantTime: 0}
	clickByUserEvent := make(map[pairKey]latestClick)

	for _, row := range rows {
		if row.UserID == nil || row.EventID == nil {
			continue
		}
		switch row.InteractionType {
		case types.InteractionImpression:
			if variant, ok := metaVariant(row); ok {
				impressions[variant]++
			}
		case types.InteractionClick:
			variant, ok := metaVariant(row)
			if !ok {
				continue
			}
			clicks[variant]++
			key := pairKey{*row.UserID, *row.EventID}
			if prev, seen := clickByUserEvent[key]; !seen || row.OccurredAt.After(prev.OccurredAt) {
				clickByUserEvent[key] = latestClick{Sort: variant, OccurredAt: row.OccurredAt}
			}
		}
	}

	// Registers are attributed to the latest click on the same
	// (user, event) pair, within the click-to-register window.
	for _, row := range rows {
		if row.InteractionType != types.InteractionRegister || row.UserID == nil || row.EventID == nil {
			continue
		}
		click, ok := clickByUserEvent[pairKey{*row.UserID, *row.EventID}]
		if !ok {
			continue
		}
		if row.OccurredAt.Before(click.OccurredAt) || row.OccurredAt.After(click.OccurredAt.Add(p.clickWindow)) {
			continue
		}
		conversions[click.Sort]++
	}

	result := &GuardrailResult{
		Enabled:  true,
		Days:     p.days,
		Variants: make(map[string]VariantMetrics, 2),
	}
	for _, variant := range []string{VariantRecommended, VariantTime} {
		result.Variants[variant] = VariantMetrics{
			Impressions: impressions[variant],
			Clicks:      clicks[variant],
			Conversions: conversions[variant],
			CTR:         safeRatio(clicks[variant], impressions[variant]),
			Conversion:  safeRatio(conversions[variant], clicks[variant]),
		}
	}

	if impressions[VariantRecommended] < p.minImpressions || impressions[VariantTime] < p.minImpressions {
		result.Action = GuardrailActionSkipLowVolume
		s.log.Info("guardrails skipped, low volume",
			"recommended_impressions", impressions[VariantRecommended],
			"time_impressions", impressions[VariantTime],
			"min_impressions", p.minImpressions)
		return result, nil
	}

	rec := result.Variants[VariantRecommended]
	base := result.Variants[VariantTime]
	result.CTROK = base.CTR == 0 || rec.CTR >= base.CTR*(1.0-p.ctrDropRatio)
	result.ConversionOK = base.Conversion == 0 || rec.Conversion >= base.Conversion*(1.0-p.conversionDropRatio)

	if result.CTROK && result.ConversionOK {
		result.Action = GuardrailActionOK
		s.log.Info("guardrails ok",
			"recommended_ctr", rec.CTR, "time_ctr", base.CTR,
			"recommended_conversion", rec.Conversion, "time_conversion", base.Conversion)
		return result, nil
	}

	active, err := s.models.GetActive(ctx, tx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		result.Action = GuardrailActionNoActiveModel
		s.log.Warn("guardrails degraded but no active model")
		return result, nil
	}
	previous, err := s.models.Predecessor(ctx, tx, active)
	if err != nil {
		return nil, err
	}
	if previous == nil {
		result.Action = GuardrailActionNoPreviousModel
		s.log.Warn("guardrails degraded but no previous model", "active_model_version", active.ModelVersion)
		return result, nil
	}

	if err := s.models.Activate(ctx, tx, previous.ID); err != nil {
		return nil, err
	}
	result.Action = GuardrailActionRollback
	result.RolledBackFrom = active.ModelVersion
	result.RolledBackTo = previous.ModelVersion
	s.log.Warn("guardrails rollback",
		"from_model_version", active.ModelVersion,
		"to_model_version", previous.ModelVersion,
		"recommended_ctr", rec.CTR, "time_ctr", base.CTR)

	if s.enqueuer != nil {
		topN := s.cfg.RecomputeTopN
		if _, err := s.enqueuer.Recompute(ctx, jobs.RecomputePayload{TopN: &topN, SkipTraining: true}); err != nil {
			s.log.Warn("post-rollback recompute enqueue failed", "error", err)
		}
	}
	return result, nil
}

func safeRatio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
