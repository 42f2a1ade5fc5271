package synclog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mastersleague/platform/pkg/common/logger"
	"github.com/mastersleague/platform/pkg/common/models"
	"github.com/redis/go-redis/v9"
)

// Service fronts the repository and caches stats in Redis. The cache is
// best-effort: a cache failure falls through to the database.
type Service struct {
	repo     *Repository
	cache    *redis.Client
	cacheTTL time.Duration
}

func NewService(repo *Repository, cache *redis.Client, cacheTTL time.Duration) *Service {
	return &Service{repo: repo, cache: cache, cacheTTL: cacheTTL}
}

func (s *Service) StartSync(ctx context.Context, syncType string, metadata map[string]interface{}, now time.Time) (models.SyncLog, error) {
	return s.repo.StartSync(ctx, syncType, metadata, now)
}

func (s *Service) MarkCompleted(ctx context.Context, log models.SyncLog, outcome models.SyncOutcome, now time.Time) error {
	if err := s.repo.MarkCompleted(ctx, log.ID, outcome, now); err != nil {
		return err
	}
	s.invalidateStats(ctx, log.SyncType)
	return nil
}

func (s *Service) MarkFailed(ctx context.Context, log models.SyncLog, outcome models.SyncOutcome, errorMessage string, now time.Time) error {
	if err := s.repo.MarkFailed(ctx, log.ID, outcome, errorMessage, now); err != nil {
		return err
	}
	s.invalidateStats(ctx, log.SyncType)
	return nil
}

func (s *Service) LastSuccessful(ctx context.Context, syncType string) (models.SyncLog, error) {
	return s.repo.LastSuccessful(ctx, syncType)
}

func (s *Service) ShouldRunSync(ctx context.Context, syncType string, minInterval time.Duration, now time.Time) (bool, error) {
	return s.repo.ShouldRunSync(ctx, syncType, minInterval, now)
}

func (s *Service) History(ctx context.Context, syncType string, limit int) ([]models.SyncLog, error) {
	return s.repo.History(ctx, syncType, limit)
}

func (s *Service) PruneOlderThan(ctx context.Context, retentionDays int, now time.Time) (int64, error) {
	return s.repo.PruneOlderThan(ctx, retentionDays, now)
}

func (s *Service) Stats(ctx context.Context, syncType string, lookbackDays int, now time.Time) (models.SyncStats, error) {
	key := statsKey(syncType, lookbackDays)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var stats models.SyncStats
			if json.Unmarshal(data, &stats) == nil {
				return stats, nil
			}
		}
	}

	stats, err := s.repo.Stats(ctx, syncType, lookbackDays, now)
	if err != nil {
		return models.SyncStats{}, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
				logger.Log.WithError(err).Debug("failed to cache sync stats")
			}
		}
	}
	return stats, nil
}

func (s *Service) invalidateStats(ctx context.Context, syncType string) {
	if s.cache == nil {
		return
	}
	iter := s.cache.Scan(ctx, 0, fmt.Sprintf("synclog:stats:%s:*", syncType), 50).Iterator()
	for iter.Next(ctx) {
		if err := s.cache.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Log.WithError(err).Debug("failed to invalidate sync stats cache")
		}
	}
}

func statsKey(syncType string, lookbackDays int) string {
	return fmt.Sprintf("synclog:stats:%s:%d", syncType, lookbackDays)
}
