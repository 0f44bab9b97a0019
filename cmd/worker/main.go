package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/unievents/unievents-backend/internal/clients/redis"
	"github.com/unievents/unievents-backend/internal/db"
	"github.com/unievents/unievents-backend/internal/jobs"
	"github.com/unievents/unievents-backend/internal/jobs/handlers"
	"github.com/unievents/unievents-backend/internal/observability"
	"github.com/unievents/unievents-backend/internal/platform/envutil"
	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/platform/sendgrid"
	"github.com/unievents/unievents-backend/internal/recommender"
	"github.com/unievents/unievents-backend/internal/repos"
	"github.com/unievents/unievents-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "unievents-worker",
		Environment: os.Getenv("APP_ENV"),
	})
	if shutdownOTel != nil {
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				log.Warn("OTel shutdown failed", "error", err)
			}
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	eventRepo := repos.NewEventRepo(thePG, log)
	registrationRepo := repos.NewRegistrationRepo(thePG, log)
	favoriteRepo := repos.NewFavoriteRepo(thePG, log)
	interactionRepo := repos.NewInteractionRepo(thePG, log)
	implicitRepo := repos.NewImplicitInterestRepo(thePG, log)
	jobRepo := repos.NewJobRepo(thePG, log)
	modelRepo := repos.NewRecommenderModelRepo(thePG, log)
	recommendationRepo := repos.NewUserRecommendationRepo(thePG, log)
	deliveryRepo := repos.NewNotificationDeliveryRepo(thePG, log)

	// Redis job event bus (no-op when REDIS_ADDR is unset)
	bus, err := redis.NewJobEventBus(log)
	if err != nil {
		log.Warn("Redis init failed, continuing without job events", "error", err)
		bus = redis.NewNoopJobEventBus()
	}
	defer bus.Close()

	enqueuer := jobs.NewEnqueuer(jobRepo, bus, log)

	// Recommender pipeline
	loader := recommender.NewSnapshotLoader(userRepo, eventRepo, registrationRepo, favoriteRepo, interactionRepo, implicitRepo)
	scorer := recommender.NewScorer(recommendationRepo, log)
	pipeline := recommender.NewPipeline(loader, modelRepo, scorer, log)

	// Services
	log.Info("Setting up Services from main...")
	guardrails := services.NewGuardrailService(services.GuardrailConfigFromEnv(), interactionRepo, modelRepo, enqueuer, log)
	notifications := services.NewNotificationService(userRepo, eventRepo, favoriteRepo, recommendationRepo, deliveryRepo, enqueuer, log)

	// Email
	mailer, err := sendgrid.NewFromEnv(log)
	if err != nil {
		log.Error("SendGrid init failed", "error", err)
		os.Exit(1)
	}

	// Handlers
	registry := jobs.NewRegistry()
	mustRegister(log, registry, handlers.NewSendEmailHandler(mailer, log))
	mustRegister(log, registry, handlers.NewRecomputeHandler(pipeline, log))
	mustRegister(log, registry, handlers.NewRefreshUserHandler(pipeline, log))
	mustRegister(log, registry, handlers.NewGuardrailHandler(guardrails, log))
	mustRegister(log, registry, handlers.NewWeeklyDigestHandler(notifications, log))
	mustRegister(log, registry, handlers.NewFillingFastHandler(notifications, log))

	// Scheduler
	schedules := jobs.DefaultSchedules()
	if path := envutil.Str("SCHEDULES_PATH", ""); path != "" {
		loaded, err := jobs.LoadSchedules(path)
		if err != nil {
			log.Error("Failed to load schedules", "path", path, "error", err)
			os.Exit(1)
		}
		schedules = loaded
	}
	scheduler := jobs.NewScheduler(enqueuer, schedules, log)
	go scheduler.Run(ctx)

	// Worker loop blocks until shutdown.
	worker := jobs.NewWorker(jobRepo, registry, bus, log)
	log.Info("Worker starting")
	worker.Run(ctx)
	log.Info("Worker stopped")
}

func mustRegister(log *logger.Logger, registry *jobs.Registry, handler jobs.Handler) {
	if err := registry.Register(handler); err != nil {
		log.Error("Handler registration failed", "error", err)
		os.Exit(1)
	}
}
