package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/mural/mural-api/internal/config"
	"github.com/mural/mural-api/internal/domain/image"
	"github.com/mural/mural-api/internal/pkg/database"
	"github.com/mural/mural-api/internal/pkg/logger"
	"github.com/mural/mural-api/internal/pkg/storage"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Dur("grace", cfg.SweepGracePeriod).
		Bool("dry_run", cfg.SweepDryRun).
		Msg("Starting orphan-sweeper")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.DefaultPool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	catalogs := []image.Catalog{
		image.MuralCatalog(cfg.MuralBucket, cfg.MaxFileSize, cfg.CatalogQuota),
		image.FoodCatalog(cfg.FoodBucket, cfg.MaxFileSize, cfg.CatalogQuota),
	}

	failed := false
	for _, catalog := range catalogs {
		if ctx.Err() != nil {
			break
		}

		st, err := storage.New(ctx, cfg.StorageConfig(), catalog.Bucket)
		if err != nil {
			log.Error().Err(err).Str("catalog", catalog.Name).Msg("Failed to create storage client")
			failed = true
			continue
		}

		sweeper := image.NewSweeper(catalog, image.NewRepository(db, catalog), st, cfg.SweepGracePeriod, cfg.SweepDryRun)
		report, err := sweeper.Sweep(ctx)
		if err != nil {
			log.Error().Err(err).Str("catalog", catalog.Name).Msg("Sweep failed")
			failed = true
			continue
		}

		log.Info().
			Str("catalog", report.Catalog).
			Bool("dry_run", report.DryRun).
			Int("stale_pending", report.StalePending).
			Int("discarded_rows", report.DiscardedRows).
			Int("orphan_blobs", len(report.OrphanBlobs)).
			Int("removed_blobs", report.RemovedBlobs).
			Int("failed_removals", report.FailedRemovals).
			Int("failed_discards", report.FailedDiscards).
			Int64("used_bytes", report.UsedBytes).
			Msg("Sweep finished")

		if report.FailedRemovals > 0 || report.FailedDiscards > 0 {
			failed = true
		}
	}

	log.Info().Msg("orphan-sweeper stopped")
	if failed {
		database.ClosePostgres(db)
		os.Exit(1)
	}
}
