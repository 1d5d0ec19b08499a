package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// BreakerControl is the operator control surface of the circuit breaker.
type BreakerControl interface {
	BreakerSource
	Reset(ctx context.Context) error
}

// PairControl clears per-pair execution halts.
type PairControl interface {
	HaltSource
	AcknowledgePair(pair string)
}

// BreakerHandler serves breaker and halt control endpoints.
type BreakerHandler struct {
	breaker BreakerControl
	pairs   PairControl
	logger  *slog.Logger
}

// NewBreakerHandler creates a BreakerHandler; pairs may be nil when no
// executor is wired.
func NewBreakerHandler(breaker BreakerControl, pairs PairControl, logger *slog.Logger) *BreakerHandler {
	return &BreakerHandler{breaker: breaker, pairs: pairs, logger: logger}
}

// Reset clears a tripped breaker and re-anchors the day at the current
// balance. Deliberate operator action, hence POST.
// POST /api/breaker/reset
func (h *BreakerHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.breaker.Reset(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "breaker reset failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "breaker reset failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reset",
		"state":  h.breaker.State(),
	})
}

// AcknowledgePair clears a manual-intervention halt for one venue pair
// after the operator has verified positions by hand.
// POST /api/pairs/{pair}/acknowledge
func (h *BreakerHandler) AcknowledgePair(w http.ResponseWriter, r *http.Request) {
	if h.pairs == nil {
		writeError(w, http.StatusNotFound, "no executor in this mode")
		return
	}
	pair := r.PathValue("pair")
	if _, halted := h.pairs.HaltedPairs()[pair]; !halted {
		writeError(w, http.StatusNotFound, "pair is not halted")
		return
	}
	h.pairs.AcknowledgePair(pair)
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged", "pair": pair})
}
