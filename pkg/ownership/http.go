package ownership

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mastersleague/platform/pkg/common/logger"
	"github.com/mastersleague/platform/pkg/common/models"
)

// Handler exposes the ownership operations. Authentication happens upstream;
// the acting user arrives in the X-User-ID header set by the gateway.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// BodyLimit caps request bodies so a misbehaving client cannot stream an
// unbounded payload into the JSON decoder.
func BodyLimit(maxBytes int64) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/carnivals/{id}/claim", h.handleClaim).Methods(http.MethodPost)
	r.HandleFunc("/carnivals/{id}/release", h.handleRelease).Methods(http.MethodPost)
	r.HandleFunc("/carnivals/{id}/owner", h.handleAdminAssign).Methods(http.MethodPost)
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	eventID, userID, ok := h.resolveIDs(w, r)
	if !ok {
		return
	}
	result, err := h.service.Claim(r.Context(), eventID, userID)
	if err != nil {
		h.writeError(w, err, "failed to claim carnival")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event": result.Carnival,
		"claimedBy": map[string]interface{}{
			"userId":   result.UserID,
			"clubName": result.ClubName,
		},
	})
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	eventID, userID, ok := h.resolveIDs(w, r)
	if !ok {
		return
	}
	event, err := h.service.Release(r.Context(), eventID, userID)
	if err != nil {
		h.writeError(w, err, "failed to release carnival")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"event": event})
}

func (h *Handler) handleAdminAssign(w http.ResponseWriter, r *http.Request) {
	eventID, adminID, ok := h.resolveIDs(w, r)
	if !ok {
		return
	}
	var req models.AdminAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRuleError(w, badRequest("invalid request body"))
		return
	}
	event, err := h.service.AdminAssign(r.Context(), eventID, req.UserID, adminID)
	if err != nil {
		h.writeError(w, err, "failed to assign carnival owner")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"event": event})
}

func (h *Handler) resolveIDs(w http.ResponseWriter, r *http.Request) (eventID, userID uuid.UUID, ok bool) {
	eventID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeRuleError(w, badRequest("invalid carnival id"))
		return uuid.Nil, uuid.Nil, false
	}
	userID, err = uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		writeRuleError(w, badRequest("missing or invalid user id"))
		return uuid.Nil, uuid.Nil, false
	}
	return eventID, userID, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, logMessage string) {
	if re, ok := AsRuleError(err); ok {
		writeRuleError(w, re)
		return
	}
	logger.Log.WithError(err).Error(logMessage)
	writeRuleError(w, &RuleError{Code: CodeInternal, Message: "internal error"})
}

func writeRuleError(w http.ResponseWriter, re *RuleError) {
	writeJSON(w, re.HTTPStatus(), map[string]interface{}{
		"code":    re.Code,
		"message": re.Message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
