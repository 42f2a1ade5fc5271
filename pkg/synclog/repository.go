package synclog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mastersleague/platform/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("sync log not found")
	// ErrTerminal is returned when a terminal row is asked to transition
	// again. Rows are append-only past completed/failed.
	ErrTerminal = errors.New("sync log already terminal")
)

type syncLogModel struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey;column:id"`
	SyncType        string         `gorm:"column:sync_type;index:idx_synclog_type_status_started,priority:1"`
	Status          string         `gorm:"column:status;index:idx_synclog_type_status_started,priority:2"`
	StartedAt       time.Time      `gorm:"column:started_at;index:idx_synclog_type_status_started,priority:3"`
	CompletedAt     *time.Time     `gorm:"column:completed_at"`
	EventsProcessed int            `gorm:"column:events_processed"`
	EventsCreated   int            `gorm:"column:events_created"`
	EventsUpdated   int            `gorm:"column:events_updated"`
	EventsRetired   int            `gorm:"column:events_retired"`
	ErrorMessage    string         `gorm:"column:error_message"`
	Metadata        datatypes.JSON `gorm:"column:metadata"`
}

func (syncLogModel) TableName() string { return "sync_logs" }

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&syncLogModel{})
}

func (r *Repository) StartSync(ctx context.Context, syncType string, metadata map[string]interface{}, now time.Time) (models.SyncLog, error) {
	row := &syncLogModel{
		ID:        uuid.New(),
		SyncType:  syncType,
		Status:    models.SyncStatusStarted,
		StartedAt: now,
	}
	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			row.Metadata = datatypes.JSON(data)
		}
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return models.SyncLog{}, err
	}
	return toDomain(row), nil
}

// MarkCompleted performs the single terminal transition for a successful
// run. The status guard keeps terminal rows immutable.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, outcome models.SyncOutcome, now time.Time) error {
	return r.finish(ctx, id, models.SyncStatusCompleted, outcome, "", now)
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, outcome models.SyncOutcome, errorMessage string, now time.Time) error {
	return r.finish(ctx, id, models.SyncStatusFailed, outcome, errorMessage, now)
}

func (r *Repository) finish(ctx context.Context, id uuid.UUID, status string, outcome models.SyncOutcome, errorMessage string, now time.Time) error {
	updates := map[string]interface{}{
		"status":           status,
		"completed_at":     now,
		"events_processed": outcome.EventsProcessed,
		"events_created":   outcome.EventsCreated,
		"events_updated":   outcome.EventsUpdated,
		"events_retired":   outcome.EventsRetired,
		"error_message":    errorMessage,
	}
	if meta := outcome.MetadataMap(); len(meta) > 0 {
		var row syncLogModel
		if err := r.db.WithContext(ctx).Select("metadata").First(&row, "id = ?", id).Error; err == nil {
			merged := map[string]interface{}{}
			if len(row.Metadata) > 0 {
				_ = json.Unmarshal(row.Metadata, &merged)
			}
			for k, v := range meta {
				merged[k] = v
			}
			if data, err := json.Marshal(merged); err == nil {
				updates["metadata"] = datatypes.JSON(data)
			}
		}
	}

	result := r.db.WithContext(ctx).Model(&syncLogModel{}).
		Where("id = ? AND status = ?", id, models.SyncStatusStarted).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTerminal
	}
	return nil
}

// LastSuccessful returns the most recently completed run of syncType, or
// ErrNotFound when none exists.
func (r *Repository) LastSuccessful(ctx context.Context, syncType string) (models.SyncLog, error) {
	var row syncLogModel
	err := r.db.WithContext(ctx).
		Where("sync_type = ? AND status = ?", syncType, models.SyncStatusCompleted).
		Order("completed_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.SyncLog{}, ErrNotFound
	}
	if err != nil {
		return models.SyncLog{}, err
	}
	return toDomain(&row), nil
}

// ShouldRunSync is true when no completed run exists or the elapsed time
// since the last one is at least minInterval. Orphaned started rows never
// block future runs.
func (r *Repository) ShouldRunSync(ctx context.Context, syncType string, minInterval time.Duration, now time.Time) (bool, error) {
	last, err := r.LastSuccessful(ctx, syncType)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return Due(last.CompletedAt, minInterval, now), nil
}

// Due applies the minimum-interval gate. The comparison is inclusive: a run
// exactly minInterval after the last completion is due.
func Due(lastCompleted *time.Time, minInterval time.Duration, now time.Time) bool {
	if lastCompleted == nil {
		return true
	}
	return now.Sub(*lastCompleted) >= minInterval
}

func (r *Repository) Stats(ctx context.Context, syncType string, lookbackDays int, now time.Time) (models.SyncStats, error) {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	cutoff := now.AddDate(0, 0, -lookbackDays)

	var rows []syncLogModel
	err := r.db.WithContext(ctx).
		Where("sync_type = ? AND started_at >= ?", syncType, cutoff).
		Order("started_at").
		Find(&rows).Error
	if err != nil {
		return models.SyncStats{}, err
	}

	stats := models.SyncStats{SyncType: syncType}
	for i := range rows {
		row := &rows[i]
		stats.TotalSyncs++
		switch row.Status {
		case models.SyncStatusCompleted:
			stats.SuccessfulSyncs++
			stats.TotalEventsProcessed += row.EventsProcessed
			stats.TotalEventsCreated += row.EventsCreated
			stats.TotalEventsUpdated += row.EventsUpdated
			if row.CompletedAt != nil && (stats.LastSuccessfulAt == nil || row.CompletedAt.After(*stats.LastSuccessfulAt)) {
				completedAt := *row.CompletedAt
				stats.LastSuccessfulAt = &completedAt
			}
		case models.SyncStatusFailed:
			stats.FailedSyncs++
			if row.CompletedAt != nil && (stats.LastFailedAt == nil || row.CompletedAt.After(*stats.LastFailedAt)) {
				completedAt := *row.CompletedAt
				stats.LastFailedAt = &completedAt
			}
		}
	}
	return stats, nil
}

func (r *Repository) History(ctx context.Context, syncType string, limit int) ([]models.SyncLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []syncLogModel
	err := r.db.WithContext(ctx).
		Where("sync_type = ?", syncType).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	logs := make([]models.SyncLog, 0, len(rows))
	for i := range rows {
		logs = append(logs, toDomain(&rows[i]))
	}
	return logs, nil
}

// PruneOlderThan deletes terminal rows past the retention window. Started
// rows are kept so crashed runs stay visible to operators.
func (r *Repository) PruneOlderThan(ctx context.Context, retentionDays int, now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -retentionDays)
	result := r.db.WithContext(ctx).
		Where("status IN ? AND started_at < ?",
			[]string{models.SyncStatusCompleted, models.SyncStatusFailed}, cutoff).
		Delete(&syncLogModel{})
	return result.RowsAffected, result.Error
}

func toDomain(row *syncLogModel) models.SyncLog {
	log := models.SyncLog{
		ID:              row.ID,
		SyncType:        row.SyncType,
		Status:          row.Status,
		StartedAt:       row.StartedAt,
		CompletedAt:     row.CompletedAt,
		EventsProcessed: row.EventsProcessed,
		EventsCreated:   row.EventsCreated,
		EventsUpdated:   row.EventsUpdated,
		EventsRetired:   row.EventsRetired,
		ErrorMessage:    row.ErrorMessage,
	}
	if len(row.Metadata) > 0 {
		meta := map[string]interface{}{}
		_ = json.Unmarshal(row.Metadata, &meta)
		log.Metadata = meta
	}
	return log
}
