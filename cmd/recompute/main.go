package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/unievents/unievents-backend/internal/db"
	"github.com/unievents/unievents-backend/internal/platform/logger"
	"github.com/unievents/unievents-backend/internal/recommender"
	"github.com/unievents/unievents-backend/internal/repos"
)

// Standalone trainer/scorer entry point, for manual and ops use outside
// the job queue. Exit codes: 0 on success or a clean no-data run, 2 on
// misconfiguration, 1 on everything else.
func main() {
	topN := flag.Int("top-n", 50, "recommendations to cache per user")
	epochs := flag.Int("epochs", 6, "SGD epochs")
	lr := flag.Float64("lr", 0.35, "SGD learning rate")
	l2 := flag.Float64("l2", 0.01, "L2 regularization strength")
	seed := flag.Int64("seed", 1337, "deterministic rng seed")
	userIDFlag := flag.String("user-id", "", "score only this user")
	skipTraining := flag.Bool("skip-training", false, "score from a persisted model instead of training")
	dryRun := flag.Bool("dry-run", false, "train and evaluate without writing recommendations")
	modelVersion := flag.String("model-version", "", "model version to persist or load")
	timeoutSeconds := flag.Int("timeout-seconds", 600, "overall run timeout")
	flag.Parse()

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

	cfg := recommender.DefaultConfig()
	cfg.TopN = *topN
	cfg.Epochs = *epochs
	cfg.LR = *lr
	cfg.L2 = *l2
	cfg.Seed = *seed
	cfg.SkipTraining = *skipTraining
	cfg.DryRun = *dryRun
	cfg.ModelVersion = *modelVersion
	cfg.Timeout = time.Duration(*timeoutSeconds) * time.Second
	if *userIDFlag != "" {
		id, err := uuid.Parse(*userIDFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -user-id %q: %v\n", *userIDFlag, err)
			os.Exit(2)
		}
		cfg.UserID = &id
	}

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

	userRepo := repos.NewUserRepo(thePG, log)
	eventRepo := repos.NewEventRepo(thePG, log)
	registrationRepo := repos.NewRegistrationRepo(thePG, log)
	favoriteRepo := repos.NewFavoriteRepo(thePG, log)
	interactionRepo := repos.NewInteractionRepo(thePG, log)
	implicitRepo := repos.NewImplicitInterestRepo(thePG, log)
	modelRepo := repos.NewRecommenderModelRepo(thePG, log)
	recommendationRepo := repos.NewUserRecommendationRepo(thePG, log)

	loader := recommender.NewSnapshotLoader(userRepo, eventRepo, registrationRepo, favoriteRepo, interactionRepo, implicitRepo)
	scorer := recommender.NewScorer(recommendationRepo, log)
	pipeline := recommender.NewPipeline(loader, modelRepo, scorer, log)

	result, err := pipeline.Run(context.Background(), cfg)
	if err != nil {
		if recommender.CleanExit(err) {
			fmt.Printf("nothing to do: %v\n", err)
			os.Exit(0)
		}
		if errors.Is(err, recommender.ErrSchemaMismatch) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
		log.Error("Recompute failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("model_version=%s\n", result.ModelVersion)
	if result.Hitrate != nil {
		fmt.Printf("hitrate_at_10=%.4f\n", *result.Hitrate)
	}
	fmt.Printf("examples=%d users_scored=%d rows_written=%d\n", result.Examples, result.UsersScored, result.RowsWritten)
}
