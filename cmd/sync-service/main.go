package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mastersleague/platform/pkg/carnival"
	"github.com/mastersleague/platform/pkg/common/config"
	"github.com/mastersleague/platform/pkg/common/database"
	"github.com/mastersleague/platform/pkg/common/kafka"
	"github.com/mastersleague/platform/pkg/common/logger"
	"github.com/mastersleague/platform/pkg/ingest"
	"github.com/mastersleague/platform/pkg/membership"
	"github.com/mastersleague/platform/pkg/observability/metrics"
	"github.com/mastersleague/platform/pkg/ownership"
	"github.com/mastersleague/platform/pkg/synclog"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	carnivalRepo := carnival.NewRepository(db)
	if err := carnivalRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate carnival tables")
	}
	syncLogRepo := synclog.NewRepository(db)
	if err := syncLogRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate sync log tables")
	}
	memberRepo := membership.NewRepository(db)

	registry := &ingest.Registry{}
	if cfg.SyncSourcesConfig != "" {
		sources, err := ingest.LoadSources(cfg.SyncSourcesConfig)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to load source registry")
		}
		registry = ingest.NewRegistry(sources)
	} else {
		logger.Log.Warn("SYNC_SOURCES_CONFIG not set, no sources registered")
	}

	var producer *kafka.Producer
	if cfg.SyncKafkaTopic != "" {
		producer = kafka.NewProducer(cfg.SyncKafkaTopic)
		defer producer.Close()
	}

	syncLogs := synclog.NewService(syncLogRepo, database.GetRedis(), cfg.SyncStatsCacheTTL)

	normalizer := ingest.NewNormalizer(nil)
	reconciler := ingest.NewReconciler(carnivalRepo, normalizer, ingest.LogObserver{}, nil)
	orchestrator := ingest.NewOrchestrator(registry, reconciler, syncLogs,
		ingest.LogObserver{}, producer, cfg.SyncInterval(), cfg.SyncDeadline(), nil)

	ownershipSvc := ownership.NewService(carnivalRepo, memberRepo, producer, nil)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(ownership.BodyLimit(cfg.MaxRequestBody))
	ingest.NewHandler(orchestrator, syncLogs, nil).Register(api)
	ownership.NewHandler(ownershipSvc).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Sync Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	// Scheduler: check every hour; the interval gate decides whether a run
	// is actually due.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				result := orchestrator.RunAll(ctx, cfg.SyncSourceNames, ingest.RunOptions{Force: cfg.SyncForce})
				if result.Err != nil {
					logger.Log.WithError(result.Err).Warn("scheduled sync finished with error")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Retention: prune terminal sync log rows past the retention window.
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pruned, err := syncLogs.PruneOlderThan(context.Background(), cfg.SyncLogRetentionDays, time.Now().UTC())
				if err != nil {
					logger.Log.WithError(err).Warn("sync log pruning failed")
				} else if pruned > 0 {
					logger.Log.WithField("rows", pruned).Info("pruned sync log rows")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Sync Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("failed to close postgres")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Error("failed to close redis")
	}

	logger.Log.Info("Sync Service stopped")
}
