package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mastersleague/platform/pkg/common/kafka"
	"github.com/mastersleague/platform/pkg/common/logger"
	"github.com/mastersleague/platform/pkg/common/models"
	"github.com/mastersleague/platform/pkg/observability/metrics"
)

// SyncLogStore is the audit surface the orchestrator writes through.
// Implemented by synclog.Service.
type SyncLogStore interface {
	StartSync(ctx context.Context, syncType string, metadata map[string]interface{}, now time.Time) (models.SyncLog, error)
	MarkCompleted(ctx context.Context, log models.SyncLog, outcome models.SyncOutcome, now time.Time) error
	MarkFailed(ctx context.Context, log models.SyncLog, outcome models.SyncOutcome, errorMessage string, now time.Time) error
	ShouldRunSync(ctx context.Context, syncType string, minInterval time.Duration, now time.Time) (bool, error)
}

// Run statuses.
const (
	RunCompleted      = "completed"
	RunSkipped        = "skipped"
	RunAlreadyRunning = "already_running"
	RunPartial        = "partial"
	RunFailed         = "failed"
)

type RunOptions struct {
	// Force bypasses the minimum-interval gate.
	Force bool
}

type RunResult struct {
	SyncType string
	Status   string
	Outcome  models.SyncOutcome
	Err      error
}

// ExitCode maps a result to the process exit code contract.
func (r RunResult) ExitCode() int {
	switch r.Status {
	case RunCompleted, RunSkipped:
		return 0
	case RunAlreadyRunning:
		return 2
	case RunPartial:
		return 4
	default:
		if IsSourceUnavailable(r.Err) {
			return 3
		}
		return 1
	}
}

// SyncTypeForSource names the sync log stream for one external source.
func SyncTypeForSource(sourceName string) string {
	return "external-events:" + sourceName
}

// Orchestrator composes the source registry, normalizer, reconciler and sync
// log store, and guarantees at most one in-flight sync per syncType within
// this process.
type Orchestrator struct {
	registry   *Registry
	reconciler *Reconciler
	logs       SyncLogStore
	observer   SyncObserver
	producer   *kafka.Producer
	interval   time.Duration
	deadline   time.Duration
	now        func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewOrchestrator(registry *Registry, reconciler *Reconciler, logs SyncLogStore,
	observer SyncObserver, producer *kafka.Producer, interval, deadline time.Duration,
	now func() time.Time) *Orchestrator {
	if observer == nil {
		observer = NopObserver{}
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		registry:   registry,
		reconciler: reconciler,
		logs:       logs,
		observer:   observer,
		producer:   producer,
		interval:   interval,
		deadline:   deadline,
		now:        now,
		inflight:   make(map[string]struct{}),
	}
}

// RunSync executes one sync for the named source. The returned result never
// carries a nil Err for Partial or Failed statuses.
func (o *Orchestrator) RunSync(ctx context.Context, sourceName string, opts RunOptions) RunResult {
	syncType := SyncTypeForSource(sourceName)
	result := RunResult{SyncType: syncType}

	if !opts.Force {
		due, err := o.logs.ShouldRunSync(ctx, syncType, o.interval, o.now())
		if err != nil {
			result.Status = RunFailed
			result.Err = fmt.Errorf("checking sync gate: %w", err)
			return result
		}
		if !due {
			logger.WithSync(syncType).Info("sync not due, skipping")
			result.Status = RunSkipped
			return result
		}
	}

	if !o.acquire(syncType) {
		logger.WithSync(syncType).Warn("sync already running")
		result.Status = RunAlreadyRunning
		return result
	}
	defer o.release(syncType)

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && o.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deadline)
		defer cancel()
	}

	source, registered := o.registry.Lookup(sourceName)
	if !registered {
		result.Status = RunFailed
		result.Err = fmt.Errorf("source %q is not registered", sourceName)
		return result
	}

	log, err := o.logs.StartSync(ctx, syncType, map[string]interface{}{"source": sourceName}, o.now())
	if err != nil {
		result.Status = RunFailed
		result.Err = fmt.Errorf("recording sync start: %w", err)
		return result
	}
	o.observer.SyncStarted(syncType, sourceName)

	raws, err := source.Fetch(ctx)
	if err != nil {
		return o.fail(ctx, &result, sourceName, log, models.SyncOutcome{}, err)
	}

	outcome, err := o.reconciler.Run(ctx, sourceName, raws)
	result.Outcome = outcome
	metrics.ObserveSyncOutcome(outcome)

	if errors.Is(err, ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		o.terminate(ctx, log, outcome, "deadline exceeded")
		o.observer.SyncFinished(syncType, outcome, err)
		o.notify(ctx, "carnival-sync.failed", sourceName, outcome, "deadline exceeded")
		result.Status = RunPartial
		result.Err = err
		return result
	}
	if err != nil {
		return o.fail(ctx, &result, sourceName, log, outcome, err)
	}

	if err := o.logs.MarkCompleted(ctx, log, outcome, o.now()); err != nil {
		return o.fail(ctx, &result, sourceName, log, outcome, fmt.Errorf("recording completion: %w", err))
	}
	o.observer.SyncFinished(syncType, outcome, nil)
	o.notify(ctx, "carnival-sync.completed", sourceName, outcome, "")

	result.Status = RunCompleted
	return result
}

// RunAll runs every named source sequentially and returns the worst result
// by exit code.
func (o *Orchestrator) RunAll(ctx context.Context, sourceNames []string, opts RunOptions) RunResult {
	worst := RunResult{Status: RunSkipped}
	for _, name := range sourceNames {
		result := o.RunSync(ctx, name, opts)
		if result.ExitCode() > worst.ExitCode() {
			worst = result
		} else if worst.Status == RunSkipped && result.Status == RunCompleted {
			worst = result
		}
	}
	return worst
}

func (o *Orchestrator) fail(ctx context.Context, result *RunResult, sourceName string, log models.SyncLog, outcome models.SyncOutcome, cause error) RunResult {
	o.terminate(ctx, log, outcome, cause.Error())
	o.observer.SyncFinished(result.SyncType, outcome, cause)
	o.notify(ctx, "carnival-sync.failed", sourceName, outcome, cause.Error())
	result.Status = RunFailed
	result.Err = cause
	return *result
}

// terminate marks the log row failed on a fresh context so a blown deadline
// cannot also lose the audit record.
func (o *Orchestrator) terminate(ctx context.Context, log models.SyncLog, outcome models.SyncOutcome, message string) {
	writeCtx := context.WithoutCancel(ctx)
	if err := o.logs.MarkFailed(writeCtx, log, outcome, message, o.now()); err != nil {
		logger.WithSync(log.SyncType).WithError(err).Error("failed to record sync failure")
	}
}

func (o *Orchestrator) notify(ctx context.Context, eventType, source string, outcome models.SyncOutcome, errorMessage string) {
	if o.producer == nil {
		return
	}
	data := map[string]interface{}{
		"events_processed": outcome.EventsProcessed,
		"events_created":   outcome.EventsCreated,
		"events_updated":   outcome.EventsUpdated,
		"events_retired":   outcome.EventsRetired,
	}
	if errorMessage != "" {
		data["error"] = errorMessage
	}
	publishCtx := context.WithoutCancel(ctx)
	if err := o.producer.PublishEvent(publishCtx, eventType, source, data); err != nil {
		logger.Log.WithError(err).Warn("failed to publish sync notification")
	}
}

func (o *Orchestrator) acquire(syncType string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, running := o.inflight[syncType]; running {
		return false
	}
	o.inflight[syncType] = struct{}{}
	return true
}

func (o *Orchestrator) release(syncType string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, syncType)
}
