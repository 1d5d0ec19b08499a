package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmesh/crossarb/internal/domain"
	"github.com/oddsmesh/crossarb/internal/executor"
	"github.com/oddsmesh/crossarb/internal/resolve"
)

type stubFeed struct {
	venue   domain.Venue
	markets []domain.Market
	err     error
}

func (f *stubFeed) Venue() domain.Venue { return f.venue }
func (f *stubFeed) Markets(context.Context) ([]domain.Market, error) {
	return f.markets, f.err
}

type memMappingStore struct {
	mu       sync.Mutex
	mappings []domain.Mapping
}

func (s *memMappingStore) Upsert(_ context.Context, m domain.Mapping) error {
	s.mu.Lock()
	s.mappings = append(s.mappings, m)
	s.mu.Unlock()
	return nil
}
func (s *memMappingStore) Get(context.Context, domain.Venue, string) (domain.Mapping, error) {
	return domain.Mapping{}, domain.ErrNotFound
}
func (s *memMappingStore) ListActive(context.Context, string) ([]domain.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Mapping(nil), s.mappings...), nil
}
func (s *memMappingStore) Delete(context.Context, string) error { return nil }

type fokGateway struct {
	venue domain.Venue
	fill  bool
}

func (g *fokGateway) Venue() domain.Venue { return g.venue }
func (g *fokGateway) SubmitOrder(_ context.Context, req domain.OrderRequest) (domain.FillResult, error) {
	if !g.fill {
		return domain.FillResult{}, nil
	}
	return domain.FillResult{OrderID: "o", Filled: true, FillPrice: req.Price, FilledUSD: req.SizeUSD}, nil
}

type memExecStore struct {
	mu      sync.Mutex
	records []domain.ExecutionRecord
}

func (s *memExecStore) Insert(_ context.Context, rec domain.ExecutionRecord) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return nil
}
func (s *memExecStore) ListSince(context.Context, time.Time) ([]domain.ExecutionRecord, error) {
	return s.records, nil
}

type noopLocks struct{}

func (noopLocks) Acquire(context.Context, string, time.Duration) (string, error) { return "t", nil }
func (noopLocks) Release(context.Context, string, string) error                  { return nil }

type openGate struct{ open bool }

func (g *openGate) CanTrade() bool                   { return g.open }
func (g *openGate) RecordAttempt(context.Context, bool) {}

type nilCache struct{}

func (nilCache) Get(context.Context, string, []string) (domain.MatchPayload, bool) {
	return domain.MatchPayload{}, false
}
func (nilCache) Set(context.Context, string, []string, domain.MatchPayload, time.Duration) {}

func testOrchestrator(t *testing.T, sourceMkts, targetMkts []domain.Market, fill bool, gate *openGate) (*Orchestrator, *memMappingStore, *memExecStore) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	feeds := map[domain.Venue]domain.MarketFeed{
		domain.VenuePolymarket: &stubFeed{venue: domain.VenuePolymarket, markets: sourceMkts},
		domain.VenueBetfair:    &stubFeed{venue: domain.VenueBetfair, markets: targetMkts},
	}
	mappings := &memMappingStore{}
	execStore := &memExecStore{}

	resolver := resolve.NewResolver(resolve.NewEntitySet(), nilCache{}, nil, resolve.DefaultConfig(), logger)
	coord := executor.NewCoordinator(
		executor.DefaultConfig(),
		map[domain.Venue]domain.OrderGateway{
			domain.VenuePolymarket: &fokGateway{venue: domain.VenuePolymarket, fill: fill},
			domain.VenueBetfair:    &fokGateway{venue: domain.VenueBetfair, fill: fill},
		},
		execStore, noopLocks{}, gate, nil, logger,
	)

	cfg := DefaultConfig()
	cfg.FeeRates = map[domain.Venue]float64{domain.VenueBetfair: 0.065}
	o := NewOrchestrator(cfg, feeds, resolver, mappings, coord, gate, nil, logger)
	return o, mappings, execStore
}

func arbPair(start time.Time) (domain.Market, domain.Market) {
	src := domain.Market{
		Venue:      domain.VenuePolymarket,
		ExternalID: "p1",
		Title:      "Drake vs Illinois",
		StartTime:  start,
		Tokens: []domain.OutcomeToken{
			{TokenID: "tp", Price: 0.42, LiquidityUSD: 50},
		},
	}
	tgt := domain.Market{
		Venue:      domain.VenueBetfair,
		ExternalID: "b1",
		Title:      "Illinois vs Drake",
		StartTime:  start,
		Tokens: []domain.OutcomeToken{
			{TokenID: "tb", DecimalOdds: 2.70, LiquidityUSD: 40},
		},
	}
	return src, tgt
}

func TestRunCycleEndToEnd(t *testing.T) {
	start := time.Now().UTC().Add(6 * time.Hour)
	src, tgt := arbPair(start)
	gate := &openGate{open: true}
	o, mappings, execStore := testOrchestrator(t, []domain.Market{src}, []domain.Market{tgt}, true, gate)

	records, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.OutcomeBothFilled, records[0].Outcome)
	assert.Len(t, execStore.records, 1)
	assert.NotEmpty(t, mappings.mappings)

	stats := o.Stats()
	assert.Equal(t, 1, stats.Cycles)
	assert.Equal(t, 1, stats.Matched)
	assert.Equal(t, 1, stats.OpportunitiesFound)
	assert.Equal(t, 1, stats.Executed)
}

func TestRunCycleTradesStoredGraphMappings(t *testing.T) {
	start := time.Now().UTC().Add(6 * time.Hour)
	// Reworded titles the resolver cannot pair on its own: entity tokens
	// differ, and no semantic matcher is wired in the fixture.
	src := domain.Market{
		Venue:      domain.VenuePolymarket,
		ExternalID: "p1",
		Title:      "Drake to advance past Illinois",
		StartTime:  start,
		Tokens: []domain.OutcomeToken{
			{TokenID: "tp", Price: 0.42, LiquidityUSD: 50},
		},
	}
	tgt := domain.Market{
		Venue:      domain.VenueBetfair,
		ExternalID: "b1",
		Title:      "Illinois v Drake Match Odds",
		StartTime:  start,
		Tokens: []domain.OutcomeToken{
			{TokenID: "tb", DecimalOdds: 2.70, LiquidityUSD: 40},
		},
	}

	gate := &openGate{open: true}
	unseeded, _, _ := testOrchestrator(t, []domain.Market{src}, []domain.Market{tgt}, true, gate)
	records, err := unseeded.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, unseeded.Stats().Matched)

	seeded, mappings, execStore := testOrchestrator(t, []domain.Market{src}, []domain.Market{tgt}, true, gate)
	now := time.Now().UTC()
	require.NoError(t, mappings.Upsert(context.Background(), domain.Mapping{
		ID:           "m-graph",
		SourceVenue:  domain.VenuePolymarket,
		SourceID:     "p1",
		TargetVenue:  domain.VenueBetfair,
		TargetID:     "b1",
		SourceTitle:  src.Title,
		TargetTitle:  tgt.Title,
		Confidence:   0.88,
		Source:       domain.SourceGraph,
		CreatedAt:    now,
		LastVerified: now,
	}))

	records, err = seeded.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.OutcomeBothFilled, records[0].Outcome)
	assert.Len(t, execStore.records, 1)

	stats := seeded.Stats()
	assert.Equal(t, 1, stats.Matched)
	assert.Equal(t, 1, stats.OpportunitiesFound)
	assert.Equal(t, 1, stats.Executed)
	assert.Empty(t, seeded.Unmatched()[domain.VenuePolymarket],
		"a stored mapping keeps its source out of the orphan set")
}

func TestRunCycleRejectsThinLiquidity(t *testing.T) {
	start := time.Now().UTC().Add(6 * time.Hour)
	src, tgt := arbPair(start)
	tgt.Tokens[0].LiquidityUSD = 5
	gate := &openGate{open: true}
	o, _, _ := testOrchestrator(t, []domain.Market{src}, []domain.Market{tgt}, true, gate)

	records, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records, "a $5 side must never execute")
	assert.Equal(t, 0, o.Stats().OpportunitiesFound)
	assert.Equal(t, 1, o.Stats().Matched, "the mapping itself is still valid")
}

func TestRunCycleBreakerBlocksExecution(t *testing.T) {
	start := time.Now().UTC().Add(6 * time.Hour)
	src, tgt := arbPair(start)
	gate := &openGate{open: false}
	o, _, execStore := testOrchestrator(t, []domain.Market{src}, []domain.Market{tgt}, true, gate)

	records, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, execStore.records)
	assert.Equal(t, 1, o.Stats().BreakerBlocked)
}

func TestRunCycleCollectsOrphans(t *testing.T) {
	start := time.Now().UTC().Add(6 * time.Hour)
	src, _ := arbPair(start)
	stranger := domain.Market{
		Venue:      domain.VenueBetfair,
		ExternalID: "b9",
		Title:      "Arsenal vs Chelsea",
		StartTime:  start,
	}
	gate := &openGate{open: true}
	o, _, _ := testOrchestrator(t, []domain.Market{src}, []domain.Market{stranger}, true, gate)

	_, err := o.RunCycle(context.Background())
	require.NoError(t, err)

	orphans := o.Unmatched()
	require.Len(t, orphans[domain.VenuePolymarket], 1)
	assert.Equal(t, "p1", orphans[domain.VenuePolymarket][0].ExternalID)
	require.Len(t, orphans[domain.VenueBetfair], 1)
	assert.Equal(t, "b9", orphans[domain.VenueBetfair][0].ExternalID)
}

func TestRunCycleSourceFeedFailureAborts(t *testing.T) {
	gate := &openGate{open: true}
	logger := slog.New(slog.DiscardHandler)
	feeds := map[domain.Venue]domain.MarketFeed{
		domain.VenuePolymarket: &stubFeed{venue: domain.VenuePolymarket, err: errors.New("timeout")},
	}
	resolver := resolve.NewResolver(resolve.NewEntitySet(), nilCache{}, nil, resolve.DefaultConfig(), logger)
	o := NewOrchestrator(DefaultConfig(), feeds, resolver, &memMappingStore{}, nil, gate, nil, logger)

	_, err := o.RunCycle(context.Background())
	assert.Error(t, err)
}

func TestRunCycleExcludesStaleMarkets(t *testing.T) {
	start := time.Now().UTC().Add(6 * time.Hour)
	src, tgt := arbPair(start)
	tgt.FetchedAt = time.Now().Add(-10 * time.Minute)
	gate := &openGate{open: true}
	o, _, _ := testOrchestrator(t, []domain.Market{src}, []domain.Market{tgt}, true, gate)

	records, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records, "stale feed data is excluded, not used as last known good")
	assert.Equal(t, 0, o.Stats().Matched)
}
