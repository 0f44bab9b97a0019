package handlers

import (
	"context"

	"github.com/unievents/unievents-backend/internal/jobs"
	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/services"
	"github.com/unievents/unievents-backend/internal/types"
)

type WeeklyDigestHandler struct {
	notifications *services.NotificationService
	log           *logger.Logger
}

func NewWeeklyDigestHandler(notifications *services.NotificationService, baseLog *logger.Logger) *WeeklyDigestHandler {
	return &WeeklyDigestHandler{
		notifications: notifications,
		log:           baseLog.With("handler", types.JobTypeSendWeeklyDigest),
	}
}

func (h *WeeklyDigestHandler) Type() string { return types.JobTypeSendWeeklyDigest }

func (h *WeeklyDigestHandler) Run(ctx context.Context, job *types.BackgroundJob) error {
	p, err := jobs.DecodeWeeklyDigest(job)
	if err != nil {
		return err
	}
	topN := 0
	if p.TopN != nil {
		topN = *p.TopN
	}
	stats, err := h.notifications.SendWeeklyDigest(ctx, nil, topN)
	if err != nil {
		return err
	}
	h.log.Info("weekly digest run", "users", stats.Users, "emails", stats.Emails)
	return nil
}
