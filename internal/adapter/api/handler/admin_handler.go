package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/V4T54L/logrelay/internal/usecase"
)

// AdminHandler serves health and mirror stream administration endpoints.
type AdminHandler struct {
	uc     *usecase.AdminStreamUseCase
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler. uc is nil when the mirror is disabled.
func NewAdminHandler(uc *usecase.AdminStreamUseCase, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{uc: uc, logger: logger.With("component", "admin_handler")}
}

// HealthCheck reports liveness and whether the stream mirror is configured.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	mirror := "disabled"
	if h.uc != nil {
		mirror = "enabled"
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok", "mirror": mirror})
}

// GetGroupInfo lists the consumer groups reading the mirror stream.
// GET /admin/stream/groups
func (h *AdminHandler) GetGroupInfo(w http.ResponseWriter, r *http.Request) {
	if !h.mirrorEnabled(w) {
		return
	}
	groups, err := h.uc.GetGroupInfo(r.Context())
	if err != nil {
		h.logger.Error("failed to get group info", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.respondWithJSON(w, http.StatusOK, groups)
}

// GetPendingSummary reports records delivered to a group but not yet archived.
// GET /admin/stream/groups/{groupName}/pending
func (h *AdminHandler) GetPendingSummary(w http.ResponseWriter, r *http.Request) {
	if !h.mirrorEnabled(w) {
		return
	}
	groupName := chi.URLParam(r, "groupName")
	if groupName == "" {
		http.Error(w, "groupName is required", http.StatusBadRequest)
		return
	}

	summary, err := h.uc.GetPendingSummary(r.Context(), groupName)
	if err != nil {
		h.logger.Error("failed to get pending summary", "group", groupName, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.respondWithJSON(w, http.StatusOK, summary)
}

// TrimStream caps the mirror stream length.
// POST /admin/stream/trim {"maxlen": N}
func (h *AdminHandler) TrimStream(w http.ResponseWriter, r *http.Request) {
	if !h.mirrorEnabled(w) {
		return
	}
	var payload struct {
		MaxLen int64 `json:"maxlen"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	trimmed, err := h.uc.TrimStream(r.Context(), payload.MaxLen)
	if errors.Is(err, usecase.ErrInvalidMaxLen) {
		http.Error(w, "maxlen must be a positive integer", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("failed to trim stream", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]int64{"trimmed": trimmed})
}

func (h *AdminHandler) mirrorEnabled(w http.ResponseWriter) bool {
	if h.uc == nil {
		http.Error(w, "record mirror is not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (h *AdminHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
