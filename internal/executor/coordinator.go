// Package executor drives the atomic two-leg trade protocol: leg A first,
// leg B only after leg A's fill is confirmed, and a compensating rollback on
// leg A when leg B fails. Partial fills are rejected outright; every leg is
// fill-or-kill.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oddsmesh/crossarb/internal/domain"
)

// Gate is the capital-protection check consulted around every attempt.
type Gate interface {
	CanTrade() bool
	RecordAttempt(ctx context.Context, success bool)
}

// Notifier delivers operator-facing alerts. Matches the notify package.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

type Config struct {
	// RollbackSlippage is the price cushion accepted on an ordinary
	// rollback after leg B is rejected.
	RollbackSlippage float64
	// EmergencySlippage is the wider cushion used when leg B failed with a
	// transport error and the venue's state is unknown.
	EmergencySlippage float64
	// LockTTL bounds how long a venue-pair execution lock is held.
	LockTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		RollbackSlippage:  0.01,
		EmergencySlippage: 0.05,
		LockTTL:           30 * time.Second,
	}
}

// Coordinator executes opportunities one at a time per venue pair. A pair
// that ends in manual intervention is halted until an operator acknowledges
// it; the rest of the system keeps running.
type Coordinator struct {
	cfg      Config
	gateways map[domain.Venue]domain.OrderGateway
	store    domain.ExecutionStore
	locks    domain.LockManager
	gate     Gate
	notifier Notifier
	logger   *slog.Logger

	mu     sync.Mutex
	halted map[string]string // venue pair -> reason
}

func NewCoordinator(
	cfg Config,
	gateways map[domain.Venue]domain.OrderGateway,
	store domain.ExecutionStore,
	locks domain.LockManager,
	gate Gate,
	notifier Notifier,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		gateways: gateways,
		store:    store,
		locks:    locks,
		gate:     gate,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "executor")),
		halted:   make(map[string]string),
	}
}

// HaltedPairs returns the venue pairs currently awaiting acknowledgement.
func (c *Coordinator) HaltedPairs() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.halted))
	for k, v := range c.halted {
		out[k] = v
	}
	return out
}

// AcknowledgePair clears a manual-intervention halt after an operator has
// resolved the exposure by hand.
func (c *Coordinator) AcknowledgePair(pair string) {
	c.mu.Lock()
	delete(c.halted, pair)
	c.mu.Unlock()
	c.logger.Info("venue pair acknowledged", slog.String("pair", pair))
}

func (c *Coordinator) haltPair(pair, reason string) {
	c.mu.Lock()
	c.halted[pair] = reason
	c.mu.Unlock()
}

func (c *Coordinator) pairHalted(pair string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.halted[pair]
	return r, ok
}

// Execute runs the two-leg protocol for one opportunity. The returned record
// is always persisted, whatever the outcome. The error is non-nil only for
// conditions that must stop further submissions: a tripped breaker, a halted
// pair, a held lock, or a failed rollback.
func (c *Coordinator) Execute(ctx context.Context, opp domain.Opportunity) (domain.ExecutionRecord, error) {
	pair := domain.VenuePair(opp.LegA.Venue, opp.LegB.Venue)

	if !c.gate.CanTrade() {
		return domain.ExecutionRecord{}, domain.ErrBreakerTripped
	}
	if reason, halted := c.pairHalted(pair); halted {
		return domain.ExecutionRecord{}, fmt.Errorf("executor: pair %s halted (%s): %w", pair, reason, domain.ErrManualIntervention)
	}

	token, err := c.locks.Acquire(ctx, pair, c.cfg.LockTTL)
	if err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("executor: acquire %s: %w", pair, err)
	}

	// Once leg A may have filled, shutdown must not abandon the trade:
	// the remaining decisions run on a context that survives cancellation.
	runCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := c.locks.Release(runCtx, pair, token); err != nil {
			c.logger.Warn("release pair lock", slog.String("pair", pair), slog.Any("error", err))
		}
	}()

	rec := domain.ExecutionRecord{
		ID:            uuid.NewString(),
		OpportunityID: opp.ID,
		MappingID:     opp.MappingID,
		State:         domain.ExecPending,
		StartedAt:     time.Now().UTC(),
	}

	rec = c.run(runCtx, opp, rec)
	rec.FinishedAt = time.Now().UTC()

	if err := c.store.Insert(runCtx, rec); err != nil {
		c.logger.Error("persist execution record",
			slog.String("execution", rec.ID),
			slog.Any("error", err))
	}

	if rec.Outcome == domain.OutcomeManualIntervention {
		c.haltPair(pair, "rollback failed for execution "+rec.ID)
		if c.notifier != nil {
			_ = c.notifier.Notify(runCtx, "manual_intervention", "Manual intervention required",
				fmt.Sprintf("Rollback failed on %s, execution %s. Pair halted.", pair, rec.ID))
		}
		return rec, fmt.Errorf("executor: execution %s: %w", rec.ID, domain.ErrManualIntervention)
	}
	return rec, nil
}

func (c *Coordinator) run(ctx context.Context, opp domain.Opportunity, rec domain.ExecutionRecord) domain.ExecutionRecord {
	legAReq := orderFor(opp.LegA, opp.MaxSizeUSD)
	legBReq := orderFor(opp.LegB, opp.MaxSizeUSD)

	rec.State = domain.ExecLegASubmitted
	legA, err := c.submit(ctx, legAReq)
	rec.LegA = legA
	if err != nil || !legA.Filled {
		rec.State = domain.ExecLegAFailed
		rec.Outcome = domain.OutcomeLegAFailed
		c.gate.RecordAttempt(ctx, false)
		c.logger.Debug("leg A not filled, no exposure",
			slog.String("venue", string(opp.LegA.Venue)),
			slog.String("error", legA.Err))
		return rec
	}
	rec.State = domain.ExecLegAFilled

	rec.State = domain.ExecLegBSubmitted
	legB, err := c.submit(ctx, legBReq)
	rec.LegB = legB
	if legB.Filled {
		rec.State = domain.ExecBothFilled
		rec.Outcome = domain.OutcomeBothFilled
		c.gate.RecordAttempt(ctx, true)
		c.logger.Info("both legs filled",
			slog.String("execution", rec.ID),
			slog.Float64("size_usd", opp.MaxSizeUSD),
			slog.Float64("ev_net_pct", opp.EVNetPct))
		return rec
	}

	// Leg B failed with leg A filled: unwind leg A at whatever cushion it
	// takes to go flat. Directional exposure is never acceptable.
	slippage := c.cfg.RollbackSlippage
	if err != nil {
		slippage = c.cfg.EmergencySlippage
	}
	rec.State = domain.ExecRollingBack
	c.logger.Warn("leg B failed, rolling back leg A",
		slog.String("execution", rec.ID),
		slog.Float64("slippage", slippage),
		slog.String("leg_b_error", legB.Err))

	rollback := rollbackFor(legAReq, legA, slippage)
	rbResult, rbErr := c.submit(ctx, rollback)
	rec.Rollback = &rbResult

	c.gate.RecordAttempt(ctx, false)
	if rbErr == nil && rbResult.Filled {
		rec.State = domain.ExecRolledBack
		rec.Outcome = domain.OutcomeRolledBack
		rec.RealizedPnl = -legA.FilledUSD * slippage
		return rec
	}

	rec.State = domain.ExecRollbackFailed
	rec.Outcome = domain.OutcomeManualIntervention
	c.logger.Error("rollback failed, manual intervention required",
		slog.String("execution", rec.ID),
		slog.String("rollback_error", rbResult.Err))
	return rec
}

// submit routes an order to its venue gateway and folds transport errors
// into the LegResult. The error is also returned so callers can distinguish
// a clean rejection from an unknown venue state.
func (c *Coordinator) submit(ctx context.Context, req domain.OrderRequest) (domain.LegResult, error) {
	res := domain.LegResult{Request: req}
	gw, ok := c.gateways[req.Venue]
	if !ok {
		res.Err = "no gateway for venue"
		return res, fmt.Errorf("executor: no gateway for %s: %w", req.Venue, domain.ErrInvalidOrder)
	}
	fill, err := gw.SubmitOrder(ctx, req)
	if err != nil {
		res.Err = err.Error()
		return res, err
	}
	res.OrderID = fill.OrderID
	res.FillPrice = fill.FillPrice
	res.FilledUSD = fill.FilledUSD
	// FOK means all-or-nothing. A partial fill is a venue bug and is
	// treated as unfilled so the protocol's accounting stays truthful.
	if fill.Filled && fill.FilledUSD > 0 && fill.FilledUSD < req.SizeUSD {
		res.Err = "partial fill on FOK order"
		return res, nil
	}
	res.Filled = fill.Filled
	return res, nil
}

func orderFor(leg domain.Leg, sizeUSD float64) domain.OrderRequest {
	return domain.OrderRequest{
		Venue:    leg.Venue,
		MarketID: leg.MarketID,
		TokenID:  leg.TokenID,
		Side:     leg.Side,
		Type:     domain.OrderFOK,
		Price:    leg.Price,
		SizeUSD:  sizeUSD,
	}
}

// rollbackFor builds the compensating order: opposite side, identical size,
// priced through the market by the slippage cushion so it fills.
func rollbackFor(legA domain.OrderRequest, fill domain.LegResult, slippage float64) domain.OrderRequest {
	price := fill.FillPrice
	if price <= 0 {
		price = legA.Price
	}
	if legA.Side == domain.SideBuy {
		price *= 1 - slippage
	} else {
		price *= 1 + slippage
	}
	return domain.OrderRequest{
		Venue:    legA.Venue,
		MarketID: legA.MarketID,
		TokenID:  legA.TokenID,
		Side:     legA.Side.Opposite(),
		Type:     domain.OrderFOK,
		Price:    price,
		SizeUSD:  legA.SizeUSD,
	}
}
