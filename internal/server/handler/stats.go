package handler

import (
	"net/http"

	"github.com/oddsmesh/crossarb/internal/domain"
	"github.com/oddsmesh/crossarb/internal/scan"
)

// StatsSource supplies scan-cycle counters.
type StatsSource interface {
	Stats() scan.Stats
}

// BreakerSource supplies the current breaker ledger.
type BreakerSource interface {
	State() domain.BreakerState
	CanTrade() bool
}

// HaltSource supplies per-pair execution halts.
type HaltSource interface {
	HaltedPairs() map[string]string
}

// StatsHandler exposes the engine's operational counters in one place.
type StatsHandler struct {
	stats   StatsSource
	breaker BreakerSource
	halts   HaltSource
}

// NewStatsHandler creates a StatsHandler. Any source may be nil when the
// running mode does not wire that subsystem.
func NewStatsHandler(stats StatsSource, breaker BreakerSource, halts HaltSource) *StatsHandler {
	return &StatsHandler{stats: stats, breaker: breaker, halts: halts}
}

// Stats returns scan counters, breaker state, and halted venue pairs.
// GET /api/stats
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{}
	if h.stats != nil {
		out["scan"] = h.stats.Stats()
	}
	if h.breaker != nil {
		st := h.breaker.State()
		out["breaker"] = map[string]any{
			"can_trade":       h.breaker.CanTrade(),
			"date":            st.Date,
			"current_balance": st.CurrentBalance,
			"drawdown":        st.Drawdown(),
			"error_rate":      st.ErrorRate(),
			"tripped":         st.Tripped,
			"tripped_reason":  st.TrippedReason,
		}
	}
	if h.halts != nil {
		out["halted_pairs"] = h.halts.HaltedPairs()
	}
	writeJSON(w, http.StatusOK, out)
}
