package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/mastersleague/platform/pkg/common/logger"
	"github.com/mastersleague/platform/pkg/common/models"
)

// SyncQuery is the read surface behind the stats and history endpoints.
// Implemented by synclog.Service.
type SyncQuery interface {
	Stats(ctx context.Context, syncType string, lookbackDays int, now time.Time) (models.SyncStats, error)
	History(ctx context.Context, syncType string, limit int) ([]models.SyncLog, error)
}

// Handler exposes the operator RPC surface: trigger a run, read stats and
// history for one source's sync stream.
type Handler struct {
	orchestrator *Orchestrator
	query        SyncQuery
	now          func() time.Time
}

func NewHandler(orchestrator *Orchestrator, query SyncQuery, now func() time.Time) *Handler {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Handler{orchestrator: orchestrator, query: query, now: now}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/sync/{source}/run", h.handleRun).Methods(http.MethodPost)
	r.HandleFunc("/sync/{source}/stats", h.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/sync/{source}/history", h.handleHistory).Methods(http.MethodGet)
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	sourceName := mux.Vars(r)["source"]
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	result := h.orchestrator.RunSync(r.Context(), sourceName, RunOptions{Force: force})

	payload := map[string]interface{}{
		"sync_type": result.SyncType,
		"status":    result.Status,
		"outcome":   result.Outcome,
	}
	if result.Err != nil {
		payload["error"] = result.Err.Error()
	}

	switch result.Status {
	case RunAlreadyRunning:
		writeJSON(w, http.StatusConflict, payload)
	case RunFailed, RunPartial:
		writeJSON(w, http.StatusBadGateway, payload)
	default:
		writeJSON(w, http.StatusOK, payload)
	}
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	sourceName := mux.Vars(r)["source"]
	lookback := parseIntQuery(r, "lookback_days", 30)

	stats, err := h.query.Stats(r.Context(), SyncTypeForSource(sourceName), lookback, h.now())
	if err != nil {
		logger.Log.WithError(err).Error("failed to load sync stats")
		http.Error(w, "failed to load sync stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sourceName := mux.Vars(r)["source"]
	limit := parseIntQuery(r, "limit", 50)

	logs, err := h.query.History(r.Context(), SyncTypeForSource(sourceName), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to load sync history")
		http.Error(w, "failed to load sync history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": logs})
}

func parseIntQuery(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			return value
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
