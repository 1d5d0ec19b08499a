// Package scan runs the top-level cycle: fetch markets from every venue,
// resolve cross-venue mappings, validate arbitrage opportunities, gate them
// through the circuit breaker, execute, and record. Matching fans out under
// a semaphore; execution is sequential so breaker state stays coherent.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/oddsmesh/crossarb/internal/arb"
	"github.com/oddsmesh/crossarb/internal/domain"
	"github.com/oddsmesh/crossarb/internal/executor"
	"github.com/oddsmesh/crossarb/internal/resolve"
)

// Gate is the breaker view the orchestrator needs.
type Gate interface {
	CanTrade() bool
}

// Notifier delivers opportunity and risk alerts. Matches the notify package.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

type Config struct {
	// SourceVenue is the venue whose markets drive each scan.
	SourceVenue domain.Venue
	// Concurrency caps in-flight resolution calls per cycle.
	Concurrency int64
	// MinROIPct is the acceptance floor for fee-adjusted ROI, covering the
	// estimated slippage buffer.
	MinROIPct float64
	// MinLiquidityUSD rejects opportunities whose thinner side is below it.
	MinLiquidityUSD float64
	// MaxDivergence is the live-price consistency ceiling.
	MaxDivergence float64
	// FeeRates maps a venue to its commission on winnings.
	FeeRates map[domain.Venue]float64
	// CandidateWindow bounds the time delta for candidate lookups.
	CandidateWindow time.Duration
	// MaxFeedAge excludes markets fetched longer ago than this; stale feed
	// data is treated as down, not as last known good.
	MaxFeedAge time.Duration
}

func DefaultConfig() Config {
	return Config{
		SourceVenue:     domain.VenuePolymarket,
		Concurrency:     15,
		MinROIPct:       2,
		MinLiquidityUSD: 10,
		MaxDivergence:   0.20,
		CandidateWindow: 24 * time.Hour,
		MaxFeedAge:      2 * time.Minute,
	}
}

// Stats is a snapshot of cycle counters since process start.
type Stats struct {
	Cycles             int
	MarketsScanned     int
	Matched            int
	OpportunitiesFound int
	Executed           int
	RolledBack         int
	BreakerBlocked     int
	Unmatched          int
}

// Orchestrator owns one scan loop. Feeds, resolver, coordinator, and stores
// are injected; the orchestrator contributes sequencing, concurrency
// control, and per-item failure isolation.
type Orchestrator struct {
	cfg         Config
	feeds       map[domain.Venue]domain.MarketFeed
	resolver    *resolve.Resolver
	mappings    domain.MappingStore
	coordinator *executor.Coordinator
	gate        Gate
	notifier    Notifier
	logger      *slog.Logger

	mu        sync.Mutex
	stats     Stats
	unmatched map[domain.Venue][]domain.Market // orphans from the latest cycle
}

func NewOrchestrator(
	cfg Config,
	feeds map[domain.Venue]domain.MarketFeed,
	resolver *resolve.Resolver,
	mappings domain.MappingStore,
	coordinator *executor.Coordinator,
	gate Gate,
	notifier Notifier,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 15
	}
	return &Orchestrator{
		cfg:         cfg,
		feeds:       feeds,
		resolver:    resolver,
		mappings:    mappings,
		coordinator: coordinator,
		gate:        gate,
		notifier:    notifier,
		logger:      logger.With(slog.String("component", "orchestrator")),
		unmatched:   make(map[domain.Venue][]domain.Market),
	}
}

// RunCycle executes one full scan and returns the execution records it
// produced. Per-item failures are isolated: one market failing to resolve
// or execute never aborts the batch. Only a tripped breaker or a
// manual-intervention escalation stops further submissions.
func (o *Orchestrator) RunCycle(ctx context.Context) ([]domain.ExecutionRecord, error) {
	sourceMarkets, targets, err := o.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	matches := o.resolveAll(ctx, sourceMarkets, targets)

	var records []domain.ExecutionRecord
	executed, rolledBack, opportunities := 0, 0, 0
	for _, m := range matches {
		opp, ok := o.validate(m)
		if !ok {
			continue
		}
		opportunities++
		if o.notifier != nil {
			_ = o.notifier.Notify(ctx, "opportunity", "Arbitrage opportunity",
				fmt.Sprintf("%s <-> %s EV %.2f%% size $%.0f", opp.LegA.Venue, opp.LegB.Venue, opp.EVNetPct, opp.MaxSizeUSD))
		}

		if !o.gate.CanTrade() {
			o.bump(func(s *Stats) { s.BreakerBlocked++ })
			o.logger.Warn("breaker closed, skipping remaining opportunities")
			break
		}

		rec, execErr := o.coordinator.Execute(ctx, opp)
		if rec.ID != "" {
			records = append(records, rec)
		}
		switch {
		case execErr == nil && rec.Outcome == domain.OutcomeBothFilled:
			executed++
		case execErr == nil && rec.Outcome == domain.OutcomeRolledBack:
			rolledBack++
			if o.notifier != nil {
				_ = o.notifier.Notify(ctx, "rollback", "Execution rolled back",
					fmt.Sprintf("Execution %s unwound, pnl %.2f", rec.ID, rec.RealizedPnl))
			}
		case execErr != nil:
			// Breaker trips and manual intervention halt new submissions
			// for the rest of the cycle; anything else is item-local.
			o.logger.Error("execution failed", slog.Any("error", execErr))
			if isHalting(execErr) {
				o.bump(func(s *Stats) { s.BreakerBlocked++ })
				o.finishCycle(len(sourceMarkets), len(matches), opportunities, executed, rolledBack)
				return records, execErr
			}
		}
	}

	o.finishCycle(len(sourceMarkets), len(matches), opportunities, executed, rolledBack)
	return records, nil
}

func isHalting(err error) bool {
	return errors.Is(err, domain.ErrBreakerTripped) || errors.Is(err, domain.ErrManualIntervention)
}

type match struct {
	mapping domain.Mapping
	source  domain.Market
	target  domain.Market
}

// fetchAll pulls fresh markets from every configured feed. A failing or
// stale feed is excluded from this cycle, not substituted with old data.
func (o *Orchestrator) fetchAll(ctx context.Context) ([]domain.Market, map[domain.Venue][]domain.Market, error) {
	var sourceMarkets []domain.Market
	targets := make(map[domain.Venue][]domain.Market)

	for venue, feed := range o.feeds {
		markets, err := feed.Markets(ctx)
		if err != nil {
			if venue == o.cfg.SourceVenue {
				return nil, nil, fmt.Errorf("scan: source feed %s: %w", venue, err)
			}
			o.logger.Warn("feed unavailable, excluding venue this cycle",
				slog.String("venue", string(venue)), slog.Any("error", err))
			continue
		}
		markets = o.dropStale(venue, markets)
		if venue == o.cfg.SourceVenue {
			sourceMarkets = markets
		} else {
			targets[venue] = markets
		}
	}
	return sourceMarkets, targets, nil
}

func (o *Orchestrator) dropStale(venue domain.Venue, markets []domain.Market) []domain.Market {
	if o.cfg.MaxFeedAge <= 0 {
		return markets
	}
	cutoff := time.Now().Add(-o.cfg.MaxFeedAge)
	fresh := markets[:0:0]
	for _, m := range markets {
		if m.FetchedAt.IsZero() || m.FetchedAt.After(cutoff) {
			fresh = append(fresh, m)
		}
	}
	if dropped := len(markets) - len(fresh); dropped > 0 {
		o.logger.Warn("stale markets excluded",
			slog.String("venue", string(venue)), slog.Int("dropped", dropped))
	}
	return fresh
}

// resolveAll pairs source markets with target-venue counterparts: stored
// mappings from earlier promotions and cycles are applied first, then the
// rest fans out through the resolver under the concurrency cap. Orphans are
// recorded for the graph engine either way.
func (o *Orchestrator) resolveAll(ctx context.Context, sources []domain.Market, targets map[domain.Venue][]domain.Market) []match {
	indexes := make(map[domain.Venue]*resolve.CandidateIndex, len(targets))
	byID := make(map[domain.Venue]map[string]domain.Market, len(targets))
	matchedTargets := make(map[domain.Venue]map[string]struct{}, len(targets))
	for venue, markets := range targets {
		indexes[venue] = resolve.NewCandidateIndex(markets, o.cfg.CandidateWindow)
		ids := make(map[string]domain.Market, len(markets))
		for _, m := range markets {
			ids[m.ExternalID] = m
		}
		byID[venue] = ids
		matchedTargets[venue] = make(map[string]struct{})
	}

	sourceByID := make(map[string]domain.Market, len(sources))
	for _, m := range sources {
		sourceByID[m.ExternalID] = m
	}

	var matches []match

	// Stored mappings, including operator-promoted graph pairings, trade
	// without re-deriving the match. Prices are live market data, so the
	// validator still rechecks ROI, liquidity, and consistency downstream.
	stored := make(map[string]map[domain.Venue]struct{})
	for venue := range targets {
		active, err := o.mappings.ListActive(ctx, domain.VenuePair(o.cfg.SourceVenue, venue))
		if err != nil {
			o.logger.Warn("load stored mappings",
				slog.String("venue", string(venue)), slog.Any("error", err))
			continue
		}
		for _, m := range active {
			src, okSrc := sourceByID[m.SourceID]
			target, okTgt := byID[venue][m.TargetID]
			if !okSrc || !okTgt {
				continue
			}
			if _, dup := matchedTargets[venue][m.TargetID]; dup {
				continue
			}
			matches = append(matches, match{mapping: m, source: src, target: target})
			matchedTargets[venue][m.TargetID] = struct{}{}
			set := stored[m.SourceID]
			if set == nil {
				set = make(map[domain.Venue]struct{}, len(targets))
				stored[m.SourceID] = set
			}
			set[venue] = struct{}{}
		}
	}

	sem := semaphore.NewWeighted(o.cfg.Concurrency)
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var orphans []domain.Market

	for _, src := range sources {
		src := src
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			preMatched := stored[src.ExternalID]
			found := len(preMatched) > 0
			for venue, idx := range indexes {
				if _, ok := preMatched[venue]; ok {
					continue
				}
				mapping, ok := o.resolver.Resolve(gctx, src, idx)
				if !ok {
					continue
				}
				target, present := byID[venue][mapping.TargetID]
				if !present {
					continue
				}
				mu.Lock()
				matches = append(matches, match{mapping: mapping, source: src, target: target})
				matchedTargets[venue][target.ExternalID] = struct{}{}
				mu.Unlock()
				found = true

				if err := o.mappings.Upsert(gctx, mapping); err != nil {
					o.logger.Warn("persist mapping", slog.Any("error", err))
				}
			}
			if !found {
				mu.Lock()
				orphans = append(orphans, src)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	// Snapshot orphans from both sides for the background graph run.
	unmatched := map[domain.Venue][]domain.Market{o.cfg.SourceVenue: orphans}
	for venue, markets := range targets {
		for _, m := range markets {
			if _, ok := matchedTargets[venue][m.ExternalID]; !ok {
				unmatched[venue] = append(unmatched[venue], m)
			}
		}
	}
	o.mu.Lock()
	o.unmatched = unmatched
	o.stats.Unmatched += len(orphans)
	o.mu.Unlock()

	return matches
}

// validate turns a resolved match into an opportunity if the numbers
// survive fees, liquidity, and the live price-consistency guard.
func (o *Orchestrator) validate(m match) (domain.Opportunity, bool) {
	srcTok, okA := m.source.PrimaryToken()
	tgtTok, okB := m.target.PrimaryToken()
	if !okA || !okB {
		return domain.Opportunity{}, false
	}

	fee := o.cfg.FeeRates[m.target.Venue]
	roi := arb.FeeAdjustedROI(srcTok.Price, tgtTok.DecimalOdds, fee)
	if roi < o.cfg.MinROIPct {
		return domain.Opportunity{}, false
	}
	if !arb.CheckLiquidity(srcTok.LiquidityUSD, tgtTok.LiquidityUSD, o.cfg.MinLiquidityUSD) {
		return domain.Opportunity{}, false
	}
	hedgeProb := arb.HedgeImpliedProbability(tgtTok.DecimalOdds, fee)
	if !arb.CheckPriceConsistency(srcTok.Price, hedgeProb, o.cfg.MaxDivergence) {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		ID:        uuid.NewString(),
		MappingID: m.mapping.ID,
		LegA: domain.Leg{
			Venue:        m.source.Venue,
			MarketID:     m.source.ExternalID,
			TokenID:      srcTok.TokenID,
			Side:         domain.SideBuy,
			Price:        srcTok.Price,
			LiquidityUSD: srcTok.LiquidityUSD,
		},
		LegB: domain.Leg{
			Venue:        m.target.Venue,
			MarketID:     m.target.ExternalID,
			TokenID:      tgtTok.TokenID,
			Side:         domain.SideSell,
			Price:        hedgeProb,
			DecimalOdds:  tgtTok.DecimalOdds,
			LiquidityUSD: tgtTok.LiquidityUSD,
		},
		EVNetPct:   roi,
		MaxSizeUSD: arb.MaxExecutableUSD(srcTok.LiquidityUSD, tgtTok.LiquidityUSD),
		FeeRate:    fee,
		DetectedAt: time.Now().UTC(),
	}, true
}

// ResolveCycle runs fetch and resolution without validating or executing
// opportunities, keeping mappings and the orphan snapshot current while no
// capital is at risk.
func (o *Orchestrator) ResolveCycle(ctx context.Context) (int, error) {
	sourceMarkets, targets, err := o.fetchAll(ctx)
	if err != nil {
		return 0, err
	}
	matches := o.resolveAll(ctx, sourceMarkets, targets)
	o.finishCycle(len(sourceMarkets), len(matches), 0, 0, 0)
	return len(matches), nil
}

// Unmatched returns the orphan snapshot from the latest cycle, keyed by
// venue. The graph engine consumes this on its own cadence.
func (o *Orchestrator) Unmatched() map[domain.Venue][]domain.Market {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[domain.Venue][]domain.Market, len(o.unmatched))
	for venue, markets := range o.unmatched {
		out[venue] = append([]domain.Market(nil), markets...)
	}
	return out
}

// Stats returns a snapshot of the counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

func (o *Orchestrator) bump(fn func(*Stats)) {
	o.mu.Lock()
	fn(&o.stats)
	o.mu.Unlock()
}

func (o *Orchestrator) finishCycle(scanned, matched, opportunities, executed, rolledBack int) {
	o.bump(func(s *Stats) {
		s.Cycles++
		s.MarketsScanned += scanned
		s.Matched += matched
		s.OpportunitiesFound += opportunities
		s.Executed += executed
		s.RolledBack += rolledBack
	})
}
