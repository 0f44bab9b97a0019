package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/unievents/unievents-backend/internal/clients/redis"
	"github.com/unievents/unievents-backend/internal/repos"
	"github.com/unievents/unievents-backend/internal/testutil"
	"github.com/unievents/unievents-backend/internal/types"
)

type stubHandler struct {
	jobType string
	run     func(ctx context.Context, job *types.BackgroundJob) error
	calls   int
}

func (h *stubHandler) Type() string { return h.jobType }

func (h *stubHandler) Run(ctx context.Context, job *types.BackgroundJob) error {
	h.calls++
	return h.run(ctx, job)
}

type workerFixture struct {
	jobs   repos.JobRepo
	worker *Worker
}

func newWorkerFixture(t *testing.T, handlers ...Handler) *workerFixture {
	t.Helper()
	db := testutil.OpenDB(t)
	log := testutil.NewLogger(t)
	jobRepo := repos.NewJobRepo(db, log)
	registry := NewRegistry()
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			t.Fatalf("register %s: %v", h.Type(), err)
		}
	}
	return &workerFixture{
		jobs:   jobRepo,
		worker: NewWorker(jobRepo, registry, redis.NewNoopJobEventBus(), log),
	}
}

func (f *workerFixture) enqueue(t *testing.T, jobType string, maxAttempts int) *types.BackgroundJob {
	t.Helper()
	job, err := f.jobs.Enqueue(context.Background(), nil, repos.EnqueueOptions{
		JobType:     jobType,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return job
}

func (f *workerFixture) claimAndRun(t *testing.T) *types.BackgroundJob {
	t.Helper()
	job, err := f.jobs.ClaimNext(context.Background(), nil, "test-worker")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil {
		t.Fatalf("no claimable job")
	}
	f.worker.runJob(context.Background(), job)
	return job
}

func (f *workerFixture) reload(t *testing.T, job *types.BackgroundJob) *types.BackgroundJob {
	t.Helper()
	got, err := f.jobs.GetByID(context.Background(), nil, job.ID)
	if err != nil || got == nil {
		t.Fatalf("reload job: %v, %v", got, err)
	}
	return got
}

func TestRunJobSuccess(t *testing.T) {
	handler := &stubHandler{
		jobType: "noop",
		run:     func(context.Context, *types.BackgroundJob) error { return nil },
	}
	f := newWorkerFixture(t, handler)
	job := f.enqueue(t, "noop", 3)

	f.claimAndRun(t)

	got := f.reload(t, job)
	if got.Status != types.JobStatusSucceeded {
		t.Fatalf("status = %q, want succeeded", got.Status)
	}
	if got.FinishedAt == nil {
		t.Fatalf("finished_at not set")
	}
	if handler.calls != 1 {
		t.Fatalf("handler calls = %d", handler.calls)
	}
}

func TestRunJobRetriesThenSucceeds(t *testing.T) {
	handler := &stubHandler{jobType: "flaky"}
	handler.run = func(context.Context, *types.BackgroundJob) error {
		if handler.calls == 1 {
			return errors.New("transient failure")
		}
		return nil
	}
	f := newWorkerFixture(t, handler)
	job := f.enqueue(t, "flaky", 3)

	f.claimAndRun(t)
	got := f.reload(t, job)
	if got.Status != types.JobStatusQueued {
		t.Fatalf("status after first failure = %q, want queued", got.Status)
	}
	if got.LastError != "transient failure" {
		t.Fatalf("last_error = %v", got.LastError)
	}
	if !got.RunAt.After(job.RunAt) {
		t.Fatalf("retry run_at not pushed back")
	}
}

func TestRunJobPermanentErrorSkipsRetry(t *testing.T) {
	handler := &stubHandler{
		jobType: "doomed",
		run: func(context.Context, *types.BackgroundJob) error {
			return Permanent(errors.New("bad payload"))
		},
	}
	f := newWorkerFixture(t, handler)
	job := f.enqueue(t, "doomed", 5)

	f.claimAndRun(t)

	got := f.reload(t, job)
	if got.Status != types.JobStatusFailed {
		t.Fatalf("status = %q, want failed on first attempt", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", got.Attempts)
	}
}

func TestRunJobPanicBecomesRetry(t *testing.T) {
	handler := &stubHandler{
		jobType: "panicky",
		run: func(context.Context, *types.BackgroundJob) error {
			panic("boom")
		},
	}
	f := newWorkerFixture(t, handler)
	job := f.enqueue(t, "panicky", 3)

	f.claimAndRun(t)

	got := f.reload(t, job)
	if got.Status != types.JobStatusQueued {
		t.Fatalf("status = %q, want requeued after panic", got.Status)
	}
	if got.LastError != "panic: boom" {
		t.Fatalf("last_error = %v", got.LastError)
	}
}

func TestRunJobUnknownTypeFailsPermanently(t *testing.T) {
	f := newWorkerFixture(t)
	job := f.enqueue(t, "never_registered", 3)

	f.claimAndRun(t)

	got := f.reload(t, job)
	if got.Status != types.JobStatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	h := &stubHandler{jobType: "dup", run: func(context.Context, *types.BackgroundJob) error { return nil }}
	if err := registry.Register(h); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := registry.Register(h); err == nil {
		t.Fatalf("duplicate register accepted")
	}
	if _, ok := registry.Get("missing"); ok {
		t.Fatalf("lookup of unregistered type succeeded")
	}
}

func TestPermanentErrorWrapping(t *testing.T) {
	base := errors.New("root cause")
	wrapped := Permanent(base)
	if !IsPermanent(wrapped) {
		t.Fatalf("wrapped error not permanent")
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("permanent wrapper hides the cause")
	}
	if IsPermanent(base) {
		t.Fatalf("plain error reported permanent")
	}
	if Permanent(nil) != nil {
		t.Fatalf("Permanent(nil) != nil")
	}
}
