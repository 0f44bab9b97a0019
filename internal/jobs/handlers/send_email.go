package handlers

import (
	"context"
	"fmt"

	"github.com/unievents/unievents-backend/internal/jobs"
	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/platform/sendgrid"
	"github.com/unievents/unievents-backend/internal/types"
)

type SendEmailHandler struct {
	mailer sendgrid.Client
	log    *logger.Logger
}

func NewSendEmailHandler(mailer sendgrid.Client, baseLog *logger.Logger) *SendEmailHandler {
	return &SendEmailHandler{
		mailer: mailer,
		log:    baseLog.With("handler", types.JobTypeSendEmail),
	}
}

func (h *SendEmailHandler) Type() string { return types.JobTypeSendEmail }

func (h *SendEmailHandler) Run(ctx context.Context, job *types.BackgroundJob) error {
	p, err := jobs.DecodeSendEmail(job)
	if err != nil {
		return err
	}
	if p.ToEmail == "" || p.Subject == "" {
		return jobs.Permanent(fmt.Errorf("send_email payload missing to_email or subject"))
	}
	result, err := h.mailer.Send(ctx, sendgrid.SendEmailRequest{
		To:      []sendgrid.EmailAddress{{Email: p.ToEmail}},
		Subject: p.Subject,
		Text:    p.BodyText,
		HTML:    p.BodyHTML,
	})
	if err != nil {
		return fmt.Errorf("send email to %s: %w", p.ToEmail, err)
	}
	h.log.Info("email sent", "to", p.ToEmail, "subject", p.Subject, "status", result.StatusCode)
	return nil
}
