package domain

import "time"

// BreakerState is the persisted ledger of the circuit breaker. It is written
// back after every mutation so a crash never forgets a trip or the day's
// starting balance.
type BreakerState struct {
	Date            string // UTC day, YYYY-MM-DD
	DayStartBalance float64
	CurrentBalance  float64
	TxAttempts      int
	TxFailures      int
	Tripped         bool
	TrippedReason   string
	TrippedAt       time.Time
	LastHeartbeat   time.Time
}

// Drawdown returns the fractional loss from the day's starting balance.
// Returns 0 when the start balance is unusable.
func (s BreakerState) Drawdown() float64 {
	if s.DayStartBalance <= 0 {
		return 0
	}
	loss := s.DayStartBalance - s.CurrentBalance
	if loss <= 0 {
		return 0
	}
	return loss / s.DayStartBalance
}

// ErrorRate returns the fraction of failed transaction attempts.
func (s BreakerState) ErrorRate() float64 {
	if s.TxAttempts == 0 {
		return 0
	}
	return float64(s.TxFailures) / float64(s.TxAttempts)
}
