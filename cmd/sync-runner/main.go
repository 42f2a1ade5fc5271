package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/mastersleague/platform/pkg/carnival"
	"github.com/mastersleague/platform/pkg/common/config"
	"github.com/mastersleague/platform/pkg/common/database"
	"github.com/mastersleague/platform/pkg/common/kafka"
	"github.com/mastersleague/platform/pkg/common/logger"
	"github.com/mastersleague/platform/pkg/ingest"
	"github.com/mastersleague/platform/pkg/synclog"
)

// Exit codes: 0 completed or skipped, 2 already running, 3 source
// unavailable, 4 partial (deadline), 1 any other failure.
func main() {
	sourcesFlag := flag.String("sources", "", "comma-separated source names (overrides SYNC_SOURCE_NAMES)")
	forceFlag := flag.Bool("force", false, "bypass the minimum-interval gate")
	flag.Parse()

	logger.Init()
	cfg := config.Load()

	sourceNames := cfg.SyncSourceNames
	if *sourcesFlag != "" {
		sourceNames = nil
		for _, name := range strings.Split(*sourcesFlag, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				sourceNames = append(sourceNames, trimmed)
			}
		}
	}
	if len(sourceNames) == 0 {
		logger.Log.Error("no sources to sync; set SYNC_SOURCE_NAMES or -sources")
		os.Exit(1)
	}

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}

	carnivalRepo := carnival.NewRepository(db)
	if err := carnivalRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Error("failed to migrate carnival tables")
		os.Exit(1)
	}
	syncLogRepo := synclog.NewRepository(db)
	if err := syncLogRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Error("failed to migrate sync log tables")
		os.Exit(1)
	}

	if cfg.SyncSourcesConfig == "" {
		logger.Log.Error("SYNC_SOURCES_CONFIG is required")
		os.Exit(1)
	}
	sources, err := ingest.LoadSources(cfg.SyncSourcesConfig)
	if err != nil {
		logger.Log.WithError(err).Error("failed to load source registry")
		os.Exit(1)
	}

	var producer *kafka.Producer
	if cfg.SyncKafkaTopic != "" {
		producer = kafka.NewProducer(cfg.SyncKafkaTopic)
		defer producer.Close()
	}

	syncLogs := synclog.NewService(syncLogRepo, database.GetRedis(), cfg.SyncStatsCacheTTL)
	normalizer := ingest.NewNormalizer(nil)
	reconciler := ingest.NewReconciler(carnivalRepo, normalizer, ingest.LogObserver{}, nil)
	orchestrator := ingest.NewOrchestrator(ingest.NewRegistry(sources), reconciler, syncLogs,
		ingest.LogObserver{}, producer, cfg.SyncInterval(), cfg.SyncDeadline(), nil)

	result := orchestrator.RunAll(context.Background(),
		sourceNames, ingest.RunOptions{Force: *forceFlag || cfg.SyncForce})
	if result.Err != nil {
		logger.Log.WithError(result.Err).WithField("status", result.Status).Error("sync run finished with error")
	} else {
		logger.Log.WithField("status", result.Status).Info("sync run finished")
	}

	database.ClosePostgres()
	database.CloseRedis()
	os.Exit(result.ExitCode())
}
