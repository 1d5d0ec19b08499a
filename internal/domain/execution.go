package domain

import "time"

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Opposite returns the reversing side, used when unwinding a filled leg.
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType constrains how a venue may fill an order. Arbitrage legs are
// always fill-or-kill: a partial fill leaves unhedged exposure.
type OrderType string

const (
	OrderFOK OrderType = "fok"
)

// ExecState tracks a two-legged execution through its lifecycle.
type ExecState string

const (
	ExecPending        ExecState = "pending"
	ExecLegASubmitted  ExecState = "leg_a_submitted"
	ExecLegAFilled     ExecState = "leg_a_filled"
	ExecLegBSubmitted  ExecState = "leg_b_submitted"
	ExecBothFilled     ExecState = "both_filled"
	ExecRollingBack    ExecState = "rolling_back"
	ExecRolledBack     ExecState = "rolled_back"
	ExecRollbackFailed ExecState = "rollback_failed"
	ExecLegAFailed     ExecState = "leg_a_failed"
)

// ExecOutcome is the terminal classification of an execution attempt.
type ExecOutcome string

const (
	OutcomeBothFilled         ExecOutcome = "both_filled"
	OutcomeLegAFailed         ExecOutcome = "leg_a_failed"
	OutcomeRolledBack         ExecOutcome = "rolled_back"
	OutcomeManualIntervention ExecOutcome = "manual_intervention_required"
)

// OrderRequest is the venue-agnostic order submitted to a gateway.
type OrderRequest struct {
	Venue    Venue
	MarketID string
	TokenID  string
	Side     OrderSide
	Type     OrderType
	Price    float64
	SizeUSD  float64
}

// FillResult is a gateway's report for a submitted order. FOK semantics mean
// Filled is all-or-nothing; FilledUSD equals the request size or zero.
type FillResult struct {
	OrderID   string
	Filled    bool
	FillPrice float64
	FilledUSD float64
	FilledAt  time.Time
}

// LegResult captures the outcome of one leg inside an execution record.
type LegResult struct {
	Request   OrderRequest
	OrderID   string
	Filled    bool
	FillPrice float64
	FilledUSD float64
	Err       string
}

// ExecutionRecord is the append-only audit row for one execution attempt,
// including any rollback leg.
type ExecutionRecord struct {
	ID            string
	OpportunityID string
	MappingID     string
	State         ExecState
	Outcome       ExecOutcome
	LegA          LegResult
	LegB          LegResult
	Rollback      *LegResult
	RealizedPnl   float64
	StartedAt     time.Time
	FinishedAt    time.Time
}
