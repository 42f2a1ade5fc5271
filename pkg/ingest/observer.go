package ingest

import (
	"github.com/mastersleague/platform/pkg/common/logger"
	"github.com/mastersleague/platform/pkg/common/models"
)

// Per-record actions reported to the observer.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionUnchanged = "unchanged"
	ActionRetired   = "retired"
	ActionRejected  = "rejected"
	ActionConflict  = "conflict"
	ActionDuplicate = "duplicate"
)

// SyncObserver receives per-run and per-record callbacks. Implementations
// must be cheap; the reconciler calls RecordProcessed on every record.
type SyncObserver interface {
	SyncStarted(syncType, source string)
	RecordProcessed(externalKey, action string)
	SyncFinished(syncType string, outcome models.SyncOutcome, err error)
}

// NopObserver discards all callbacks.
type NopObserver struct{}

func (NopObserver) SyncStarted(string, string)                     {}
func (NopObserver) RecordProcessed(string, string)                 {}
func (NopObserver) SyncFinished(string, models.SyncOutcome, error) {}

// LogObserver writes record actions at debug level and run boundaries at
// info level.
type LogObserver struct{}

func (LogObserver) SyncStarted(syncType, source string) {
	logger.WithSync(syncType).WithField("source", source).Info("sync started")
}

func (LogObserver) RecordProcessed(externalKey, action string) {
	logger.Log.WithFields(map[string]interface{}{
		"external_key": externalKey,
		"action":       action,
	}).Debug("record processed")
}

func (LogObserver) SyncFinished(syncType string, outcome models.SyncOutcome, err error) {
	entry := logger.WithSync(syncType).WithFields(map[string]interface{}{
		"processed": outcome.EventsProcessed,
		"created":   outcome.EventsCreated,
		"updated":   outcome.EventsUpdated,
		"retired":   outcome.EventsRetired,
	})
	if err != nil {
		entry.WithError(err).Warn("sync finished with error")
		return
	}
	entry.Info("sync finished")
}
