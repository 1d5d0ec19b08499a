// Package breaker implements the fail-closed capital-protection gate
// consulted before every execution. Ambiguous input is always treated as
// worst case: a balance that cannot be verified is a zero balance.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/oddsmesh/crossarb/internal/domain"
)

type Config struct {
	InitialCapital float64
	MaxDrawdownPct float64 // fraction, default 0.05
	MaxErrorRate   float64 // fraction, default 0.20
	MinSafeBalance float64 // USD, default 10
	WarmupAttempts int     // error-rate checks start after this many attempts
}

func DefaultConfig() Config {
	return Config{
		InitialCapital: 1000,
		MaxDrawdownPct: 0.05,
		MaxErrorRate:   0.20,
		MinSafeBalance: 10,
		WarmupAttempts: 10,
	}
}

// Breaker is the process-wide gate. All state lives behind one mutex; every
// mutation is persisted before the method returns so a crash cannot erase a
// trip or the day's starting balance.
type Breaker struct {
	mu     sync.Mutex
	cfg    Config
	store  domain.BreakerStore
	state  domain.BreakerState
	logger *slog.Logger
}

// New loads persisted state, resetting it when the UTC day has rolled over
// since it was written.
func New(ctx context.Context, cfg Config, store domain.BreakerStore, logger *slog.Logger) (*Breaker, error) {
	b := &Breaker{
		cfg:    cfg,
		store:  store,
		logger: logger.With(slog.String("component", "breaker")),
	}
	state, err := store.Load(ctx)
	switch {
	case err == nil && state.Date == utcDay(time.Now()):
		state.CurrentBalance = validBalance(state.CurrentBalance)
		b.state = state
	case err == nil || err == domain.ErrNotFound:
		b.state = b.freshState()
	default:
		return nil, fmt.Errorf("breaker: load state: %w", err)
	}
	if err := b.persist(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Breaker) freshState() domain.BreakerState {
	now := time.Now().UTC()
	return domain.BreakerState{
		Date:            utcDay(now),
		DayStartBalance: b.cfg.InitialCapital,
		CurrentBalance:  b.cfg.InitialCapital,
		LastHeartbeat:   now,
	}
}

// UpdateBalance validates and records a new balance, checking the minimum
// and drawdown rules. NaN, infinite, or otherwise unverifiable balances
// become zero, which trips the breaker via the minimum-balance rule.
func (b *Breaker) UpdateBalance(ctx context.Context, balance float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()

	validated := validBalance(balance)
	if validated != balance {
		b.logger.Warn("unverifiable balance treated as zero", slog.Float64("raw", balance))
	}
	b.state.CurrentBalance = validated
	b.state.LastHeartbeat = time.Now().UTC()

	if validated < b.cfg.MinSafeBalance {
		b.tripLocked(fmt.Sprintf("balance %.2f below minimum %.2f", validated, b.cfg.MinSafeBalance))
	}
	if dd := b.state.Drawdown(); dd > b.cfg.MaxDrawdownPct {
		b.tripLocked(fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%", dd*100, b.cfg.MaxDrawdownPct*100))
	}
	b.persistLocked(ctx)
}

// Heartbeat polls the oracle and feeds the result through UpdateBalance.
// A failed poll is an unverifiable balance and counts as zero.
func (b *Breaker) Heartbeat(ctx context.Context, oracle domain.BalanceOracle) {
	bal, err := oracle.Balance(ctx)
	if err != nil {
		b.logger.Error("balance poll failed, assuming zero", slog.Any("error", err))
		b.UpdateBalance(ctx, 0)
		return
	}
	b.UpdateBalance(ctx, bal)
}

// RecordAttempt tracks a trade attempt for the error-rate rule. The rule
// only engages after the warm-up count so one early failure cannot trip a
// cold process.
func (b *Breaker) RecordAttempt(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()

	b.state.TxAttempts++
	if !success {
		b.state.TxFailures++
	}
	if b.state.TxAttempts >= b.cfg.WarmupAttempts {
		if rate := b.state.ErrorRate(); rate > b.cfg.MaxErrorRate {
			b.tripLocked(fmt.Sprintf("error rate %.1f%% exceeds limit %.1f%%", rate*100, b.cfg.MaxErrorRate*100))
		}
	}
	b.persistLocked(ctx)
}

// CanTrade reports whether execution may proceed. Tripped state and an
// unsafe balance both gate; only an operator Reset clears a trip.
func (b *Breaker) CanTrade() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if validBalance(b.state.CurrentBalance) < b.cfg.MinSafeBalance {
		return false
	}
	return !b.state.Tripped
}

// Trip forces the breaker open. Exported for the executor's
// manual-intervention path.
func (b *Breaker) Trip(ctx context.Context, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripLocked(reason)
	b.persistLocked(ctx)
}

// Reset is the operator-only recovery path: it clears the trip and starts a
// fresh day anchored at the current balance.
func (b *Breaker) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	balance := validBalance(b.state.CurrentBalance)
	b.state = b.freshState()
	if balance > 0 {
		b.state.DayStartBalance = balance
		b.state.CurrentBalance = balance
	}
	b.logger.Info("breaker reset by operator", slog.Float64("balance", b.state.CurrentBalance))
	return b.persist(ctx)
}

// State returns a copy of the current ledger.
func (b *Breaker) State() domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) tripLocked(reason string) {
	if b.state.Tripped {
		return
	}
	b.state.Tripped = true
	b.state.TrippedReason = reason
	b.state.TrippedAt = time.Now().UTC()
	b.logger.Error("circuit breaker tripped", slog.String("reason", reason))
}

// rolloverLocked starts a new day when the UTC date has changed. A trip
// never rolls over: tripped state survives until an operator reset.
func (b *Breaker) rolloverLocked() {
	today := utcDay(time.Now())
	if b.state.Date == today || b.state.Tripped {
		return
	}
	balance := validBalance(b.state.CurrentBalance)
	b.state = b.freshState()
	if balance > 0 {
		b.state.DayStartBalance = balance
		b.state.CurrentBalance = balance
	}
}

func (b *Breaker) persistLocked(ctx context.Context) {
	if err := b.persist(ctx); err != nil {
		b.logger.Error("persist breaker state", slog.Any("error", err))
	}
}

func (b *Breaker) persist(ctx context.Context) error {
	if err := b.store.Save(ctx, b.state); err != nil {
		return fmt.Errorf("breaker: save state: %w", err)
	}
	return nil
}

func validBalance(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
