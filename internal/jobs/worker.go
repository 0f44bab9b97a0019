package jobs

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	redisclient "github.com/unievents/unievents-backend/internal/clients/redis"
	"github.com/unievents/unievents-backend/internal/platform/envutil"
	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/repos"
	"github.com/unievents/unievents-backend/internal/types"
)

// Worker polls the job store and runs one claimed job at a time.
// Horizontal scale comes from more worker processes, not more
// goroutines per process.
type Worker struct {
	log      *logger.Logger
	jobs     repos.JobRepo
	registry *Registry
	bus      redisclient.JobEventBus
	tracer   trace.Tracer

	workerID     string
	pollInterval time.Duration
	staleAfter   time.Duration
}

func NewWorker(jobs repos.JobRepo, registry *Registry, bus redisclient.JobEventBus, baseLog *logger.Logger) *Worker {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return &Worker{
		log:          baseLog.With("component", "JobWorker"),
		jobs:         jobs,
		registry:     registry,
		bus:          bus,
		tracer:       otel.Tracer("jobs"),
		workerID:     fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		pollInterval: envutil.Duration("WORKER_POLL_INTERVAL", 2*time.Second),
		staleAfter:   envutil.Duration("WORKER_STALE_AFTER", 10*time.Minute),
	}
}

// Run blocks until ctx is cancelled. The stale-requeue sweep runs on
// its own ticker, at least every max(30s, staleAfter).
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker started",
		"worker_id", w.workerID,
		"poll_interval", w.pollInterval.String(),
		"stale_after", w.staleAfter.String(),
	)

	staleEvery := w.staleAfter
	if staleEvery < 30*time.Second {
		staleEvery = 30 * time.Second
	}
	staleTicker := time.NewTicker(staleEvery)
	defer staleTicker.Stop()
	pollTicker := time.NewTicker(w.pollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopped", "worker_id", w.workerID)
			return
		case <-staleTicker.C:
			if _, err := w.jobs.RequeueStale(ctx, nil, w.staleAfter); err != nil {
				w.log.Warn("stale requeue failed", "error", err)
			}
		case <-pollTicker.C:
			// Drain ready jobs before going back to sleep.
			for {
				if ctx.Err() != nil {
					return
				}
				job, err := w.jobs.ClaimNext(ctx, nil, w.workerID)
				if err != nil {
					w.log.Warn("claim failed", "worker_id", w.workerID, "error", err)
					break
				}
				if job == nil {
					break
				}
				w.runJob(ctx, job)
			}
		}
	}
}

func (w *Worker) runJob(ctx context.Context, job *types.BackgroundJob) {
	jobCtx, span := w.tracer.Start(ctx, "job."+job.JobType,
		trace.WithAttributes(
			attribute.String("job.id", job.ID.String()),
			attribute.String("job.type", job.JobType),
			attribute.Int("job.attempts", job.Attempts),
		),
	)
	defer span.End()

	w.publish(jobCtx, job, "")

	handler, ok := w.registry.Get(job.JobType)
	if !ok {
		err := fmt.Errorf("no handler registered for job_type=%s", job.JobType)
		w.log.Warn("unknown job type", "job_id", job.ID, "job_type", job.JobType)
		w.failPermanent(jobCtx, span, job, err)
		return
	}

	runErr := w.runHandler(jobCtx, handler, job)
	if runErr == nil {
		if err := w.jobs.MarkSucceeded(jobCtx, nil, job); err != nil {
			w.log.Error("mark succeeded failed", "job_id", job.ID, "error", err)
			return
		}
		span.SetStatus(codes.Ok, "")
		w.publish(jobCtx, job, "")
		return
	}

	if IsPermanent(runErr) {
		w.failPermanent(jobCtx, span, job, runErr)
		return
	}
	span.RecordError(runErr)
	span.SetStatus(codes.Error, runErr.Error())
	if err := w.jobs.MarkFailed(jobCtx, nil, job, runErr.Error()); err != nil {
		w.log.Error("mark failed failed", "job_id", job.ID, "error", err)
		return
	}
	w.publish(jobCtx, job, runErr.Error())
}

// runHandler converts a handler panic into an error so a bad payload
// cannot take the worker loop down.
func (w *Worker) runHandler(ctx context.Context, handler Handler, job *types.BackgroundJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("job handler panic",
				"job_id", job.ID,
				"job_type", job.JobType,
				"panic", r,
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler.Run(ctx, job)
}

func (w *Worker) failPermanent(ctx context.Context, span trace.Span, job *types.BackgroundJob, cause error) {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	if err := w.jobs.MarkFailedPermanent(ctx, nil, job, cause.Error()); err != nil {
		w.log.Error("mark failed (permanent) failed", "job_id", job.ID, "error", err)
		return
	}
	w.publish(ctx, job, cause.Error())
}

func (w *Worker) publish(ctx context.Context, job *types.BackgroundJob, errMsg string) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(ctx, redisclient.JobEvent{
		JobID:    job.ID,
		JobType:  job.JobType,
		Status:   job.Status,
		Attempts: job.Attempts,
		Error:    errMsg,
		At:       time.Now().UTC(),
	})
}
