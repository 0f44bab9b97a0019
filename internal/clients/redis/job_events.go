package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unievents/unievents-backend/internal/platform/logger"
)

// JobEvent is one lifecycle transition of a background job, published
// for admin dashboards and ops tooling.
type JobEvent struct {
	JobID    uuid.UUID `json:"job_id"`
	JobType  string    `json:"job_type"`
	Status   string    `json:"status"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

type JobEventBus interface {
	Publish(ctx context.Context, event JobEvent)
	Close() error
}

type jobEventBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewJobEventBus connects to REDIS_ADDR. When the address is unset the
// returned bus is a no-op so the worker runs without redis.
func NewJobEventBus(log *logger.Logger) (JobEventBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return NewNoopJobEventBus(), nil
	}
	channel := strings.TrimSpace(os.Getenv("REDIS_JOB_EVENTS_CHANNEL"))
	if channel == "" {
		channel = "job_events"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &jobEventBus{
		log:     log.With("service", "RedisJobEventBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

// Publish is fire-and-forget: a bus failure never fails the job.
func (b *jobEventBus) Publish(ctx context.Context, event JobEvent) {
	raw, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.log.Warn("job event publish failed", "job_id", event.JobID, "error", err)
	}
}

func (b *jobEventBus) Close() error {
	return b.rdb.Close()
}

type noopBus struct{}

func (noopBus) Publish(context.Context, JobEvent) {}
func (noopBus) Close() error                      { return nil }

// NewNoopJobEventBus is the bus used when redis is unavailable.
func NewNoopJobEventBus() JobEventBus { return noopBus{} }
