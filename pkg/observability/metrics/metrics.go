package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/mastersleague/platform/pkg/common/models"
)

var (
	syncRuns           atomic.Int64
	syncEventsCreated  atomic.Int64
	syncEventsUpdated  atomic.Int64
	syncEventsRetired  atomic.Int64
	syncEventsRejected atomic.Int64
	syncConflicts      atomic.Int64
)

// ObserveSyncOutcome folds one run's counters into the process totals.
func ObserveSyncOutcome(outcome models.SyncOutcome) {
	syncRuns.Add(1)
	syncEventsCreated.Add(int64(outcome.EventsCreated))
	syncEventsUpdated.Add(int64(outcome.EventsUpdated))
	syncEventsRetired.Add(int64(outcome.EventsRetired))
	syncEventsRejected.Add(int64(outcome.Rejected))
	syncConflicts.Add(int64(len(outcome.Conflicts)))
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP mastersleague_sync_runs_total Number of reconciliation runs since process start.\n")
	fmt.Fprintf(w, "# TYPE mastersleague_sync_runs_total counter\n")
	fmt.Fprintf(w, "mastersleague_sync_runs_total %d\n", syncRuns.Load())

	fmt.Fprintf(w, "# HELP mastersleague_sync_events_created_total Carnivals created by reconciliation runs.\n")
	fmt.Fprintf(w, "# TYPE mastersleague_sync_events_created_total counter\n")
	fmt.Fprintf(w, "mastersleague_sync_events_created_total %d\n", syncEventsCreated.Load())

	fmt.Fprintf(w, "# HELP mastersleague_sync_events_updated_total Carnivals updated by reconciliation runs.\n")
	fmt.Fprintf(w, "# TYPE mastersleague_sync_events_updated_total counter\n")
	fmt.Fprintf(w, "mastersleague_sync_events_updated_total %d\n", syncEventsUpdated.Load())

	fmt.Fprintf(w, "# HELP mastersleague_sync_events_retired_total Carnivals retired by reconciliation runs.\n")
	fmt.Fprintf(w, "# TYPE mastersleague_sync_events_retired_total counter\n")
	fmt.Fprintf(w, "mastersleague_sync_events_retired_total %d\n", syncEventsRetired.Load())

	fmt.Fprintf(w, "# HELP mastersleague_sync_events_rejected_total Source records the normalizer rejected.\n")
	fmt.Fprintf(w, "# TYPE mastersleague_sync_events_rejected_total counter\n")
	fmt.Fprintf(w, "mastersleague_sync_events_rejected_total %d\n", syncEventsRejected.Load())

	fmt.Fprintf(w, "# HELP mastersleague_sync_store_conflicts_total Per-record writes skipped on unique violations.\n")
	fmt.Fprintf(w, "# TYPE mastersleague_sync_store_conflicts_total counter\n")
	fmt.Fprintf(w, "mastersleague_sync_store_conflicts_total %d\n", syncConflicts.Load())
}
