package handlers

import (
	"context"

	"github.com/unievents/unievents-backend/internal/jobs"
	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/services"
	"github.com/unievents/unievents-backend/internal/types"
)

type FillingFastHandler struct {
	notifications *services.NotificationService
	log           *logger.Logger
}

func NewFillingFastHandler(notifications *services.NotificationService, baseLog *logger.Logger) *FillingFastHandler {
	return &FillingFastHandler{
		notifications: notifications,
		log:           baseLog.With("handler", types.JobTypeSendFillingFastAlerts),
	}
}

func (h *FillingFastHandler) Type() string { return types.JobTypeSendFillingFastAlerts }

func (h *FillingFastHandler) Run(ctx context.Context, job *types.BackgroundJob) error {
	p, err := jobs.DecodeFillingFast(job)
	if err != nil {
		return err
	}
	thresholdAbs := 0
	if p.ThresholdAbs != nil {
		thresholdAbs = *p.ThresholdAbs
	}
	thresholdRatio := 0.0
	if p.ThresholdRatio != nil {
		thresholdRatio = *p.ThresholdRatio
	}
	maxPerUser := 0
	if p.MaxPerUser != nil {
		maxPerUser = *p.MaxPerUser
	}
	stats, err := h.notifications.SendFillingFastAlerts(ctx, nil, thresholdAbs, thresholdRatio, maxPerUser)
	if err != nil {
		return err
	}
	h.log.Info("filling fast run", "pairs", stats.Pairs, "emails", stats.Emails)
	return nil
}
