package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/oddsmesh/crossarb/internal/domain"
)

// SuggestionReviewer is the operator review surface of the suggestion
// service.
type SuggestionReviewer interface {
	Approve(ctx context.Context, id string) (domain.Mapping, error)
	Reject(ctx context.Context, id string) error
}

// SuggestionHandler serves the graph-suggestion review endpoints.
type SuggestionHandler struct {
	store    domain.SuggestionStore
	reviewer SuggestionReviewer
	logger   *slog.Logger
}

// NewSuggestionHandler creates a SuggestionHandler.
func NewSuggestionHandler(store domain.SuggestionStore, reviewer SuggestionReviewer, logger *slog.Logger) *SuggestionHandler {
	return &SuggestionHandler{store: store, reviewer: reviewer, logger: logger}
}

// List returns suggestions by status, default pending.
// GET /api/suggestions?status=pending
func (h *SuggestionHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.SuggestionStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.SuggestionPending
	}

	suggestions, err := h.store.ListByStatus(r.Context(), status)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list suggestions failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "listing suggestions failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      status,
		"suggestions": suggestions,
	})
}

// Approve promotes a pending suggestion to a tradeable mapping.
// POST /api/suggestions/{id}/approve
func (h *SuggestionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	mapping, err := h.reviewer.Approve(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "suggestion not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mapping": mapping})
}

// Reject marks a pending suggestion rejected so it is never re-counted.
// POST /api/suggestions/{id}/reject
func (h *SuggestionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.reviewer.Reject(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "suggestion not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}
