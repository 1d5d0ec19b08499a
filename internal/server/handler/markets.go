package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/oddsmesh/crossarb/internal/domain"
)

// MarketReader is the snapshot view the market endpoints need. Matches the
// redis snapshot cache.
type MarketReader interface {
	Get(ctx context.Context, venue domain.Venue, externalID string) (domain.Market, error)
	GetByToken(ctx context.Context, tokenID string) (domain.Market, error)
	Invalidate(ctx context.Context, venue domain.Venue, externalID string) error
}

// MarketHandler serves the cached market snapshots so an operator can
// inspect what the engine last saw for a venue market, and evict an entry
// that is known to be wrong.
type MarketHandler struct {
	snapshots MarketReader
	logger    *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(snapshots MarketReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{snapshots: snapshots, logger: logger}
}

// Get returns the latest cached snapshot of a venue market.
// GET /api/markets/{venue}/{id}
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	venue := domain.Venue(r.PathValue("venue"))
	id := r.PathValue("id")

	market, err := h.snapshots.Get(r.Context(), venue, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get snapshot failed",
			slog.String("venue", string(venue)), slog.String("id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "getting snapshot failed")
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// GetByToken resolves an outcome token back to the market it belongs to.
// GET /api/markets/token/{token}
func (h *MarketHandler) GetByToken(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	market, err := h.snapshots.GetByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "token not indexed")
			return
		}
		h.logger.ErrorContext(r.Context(), "get snapshot by token failed",
			slog.String("token", token), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "getting snapshot failed")
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// Invalidate evicts a snapshot and its token index entries so the next feed
// write rebuilds them.
// DELETE /api/markets/{venue}/{id}
func (h *MarketHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	venue := domain.Venue(r.PathValue("venue"))
	id := r.PathValue("id")

	if err := h.snapshots.Invalidate(r.Context(), venue, id); err != nil {
		h.logger.ErrorContext(r.Context(), "invalidate snapshot failed",
			slog.String("venue", string(venue)), slog.String("id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "invalidating snapshot failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}
