package handlers

import (
	"context"

	"github.com/unievents/unievents-backend/internal/jobs"
	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/services"
	"github.com/unievents/unievents-backend/internal/types"
)

type GuardrailHandler struct {
	guardrails *services.GuardrailService
	log        *logger.Logger
}

func NewGuardrailHandler(guardrails *services.GuardrailService, baseLog *logger.Logger) *GuardrailHandler {
	return &GuardrailHandler{
		guardrails: guardrails,
		log:        baseLog.With("handler", types.JobTypeEvaluateGuardrails),
	}
}

func (h *GuardrailHandler) Type() string { return types.JobTypeEvaluateGuardrails }

func (h *GuardrailHandler) Run(ctx context.Context, job *types.BackgroundJob) error {
	p, err := jobs.DecodeGuardrail(job)
	if err != nil {
		return err
	}
	result, err := h.guardrails.Evaluate(ctx, nil, services.GuardrailOverrides{
		Days:                       p.Days,
		MinImpressions:             p.MinImpressions,
		CTRDropRatio:               p.CTRDropRatio,
		ConversionDropRatio:        p.ConversionDropRatio,
		ClickToRegisterWindowHours: p.ClickToRegisterWindowHours,
	})
	if err != nil {
		return err
	}
	h.log.Info("guardrails evaluated", "action", result.Action)
	return nil
}
