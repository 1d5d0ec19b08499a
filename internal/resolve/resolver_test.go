package resolve

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmesh/crossarb/internal/domain"
)

type memCache struct {
	entries map[string]domain.MatchPayload
	sets    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]domain.MatchPayload)}
}

func (c *memCache) key(title string, candSet []string) string {
	k := title
	for _, s := range candSet {
		k += "|" + s
	}
	return k
}

func (c *memCache) Get(_ context.Context, title string, candSet []string) (domain.MatchPayload, bool) {
	p, ok := c.entries[c.key(title, candSet)]
	return p, ok
}

func (c *memCache) Set(_ context.Context, title string, candSet []string, p domain.MatchPayload, _ time.Duration) {
	c.sets++
	c.entries[c.key(title, candSet)] = p
}

type stubMatcher struct {
	result domain.MatchResult
	err    error
	calls  int
}

func (m *stubMatcher) Match(_ context.Context, _ string, _ time.Time, _ []domain.MatchCandidate) (domain.MatchResult, error) {
	m.calls++
	return m.result, m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func priced(m domain.Market, price, odds float64) domain.Market {
	m.Tokens = []domain.OutcomeToken{{TokenID: m.ExternalID + "-t0", Price: price, DecimalOdds: odds, LiquidityUSD: 100}}
	return m
}

func TestResolveStaticMatch(t *testing.T) {
	base := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	src := priced(mkMarket(domain.VenuePolymarket, "p1", "Will Drake win vs Illinois?", base), 0.42, 0)
	cand := priced(mkMarket(domain.VenueBetfair, "b1", "Drake vs Illinois Match Odds", base), 0, 2.5)

	idx := NewCandidateIndex([]domain.Market{cand}, 24*time.Hour)
	r := NewResolver(NewEntitySet(), newMemCache(), &stubMatcher{}, DefaultConfig(), testLogger())

	m, ok := r.Resolve(context.Background(), src, idx)
	require.True(t, ok)
	assert.Equal(t, domain.SourceStatic, m.Source)
	assert.Equal(t, "b1", m.TargetID)
	assert.Equal(t, domain.VenueBetfair, m.TargetVenue)
	assert.GreaterOrEqual(t, m.Confidence, 0.9)
}

func TestResolveAmbiguityGuard(t *testing.T) {
	base := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	src := mkMarket(domain.VenuePolymarket, "p1", "Drake vs Illinois", base)
	wrong := mkMarket(domain.VenueBetfair, "b1", "Illinois State vs Drake", base)

	idx := NewCandidateIndex([]domain.Market{wrong}, 24*time.Hour)
	matcher := &stubMatcher{}
	r := NewResolver(NewEntitySet(), newMemCache(), matcher, DefaultConfig(), testLogger())

	_, ok := r.Resolve(context.Background(), src, idx)
	assert.False(t, ok)
	assert.Zero(t, matcher.calls, "ambiguous candidates must never reach the semantic matcher")
}

func TestResolveFingerprintMismatch(t *testing.T) {
	base := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	src := mkMarket(domain.VenuePolymarket, "p1", "Drake vs Illinois Over 2.5", base)
	cand := mkMarket(domain.VenueBetfair, "b1", "Drake vs Illinois Match Odds", base)

	idx := NewCandidateIndex([]domain.Market{cand}, 24*time.Hour)
	r := NewResolver(NewEntitySet(), newMemCache(), &stubMatcher{}, DefaultConfig(), testLogger())

	_, ok := r.Resolve(context.Background(), src, idx)
	assert.False(t, ok)
}

func TestResolveSemanticPath(t *testing.T) {
	base := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	src := priced(mkMarket(domain.VenuePolymarket, "p1", "Will the Lakers beat Celtics tonight?", base), 0.42, 0)
	cand := priced(mkMarket(domain.VenueBetfair, "b1", "Los Angeles Lakers vs Boston Celtics", base), 0, 2.5)

	idx := NewCandidateIndex([]domain.Market{cand}, 24*time.Hour)
	cache := newMemCache()
	matcher := &stubMatcher{result: domain.MatchResult{Matched: true, MarketID: "b1", Confidence: 0.88}}
	r := NewResolver(NewEntitySet(), cache, matcher, DefaultConfig(), testLogger())

	m, ok := r.Resolve(context.Background(), src, idx)
	require.True(t, ok)
	assert.Equal(t, domain.SourceLLM, m.Source)
	assert.InDelta(t, 0.88, m.Confidence, 1e-9)
	assert.Equal(t, 1, cache.sets, "positive decision must be cached")

	// Second resolution is served from cache without another matcher call.
	m2, ok := r.Resolve(context.Background(), src, idx)
	require.True(t, ok)
	assert.Equal(t, domain.SourceCache, m2.Source)
	assert.Equal(t, 1, matcher.calls)
}

func TestResolveNegativeResultCached(t *testing.T) {
	base := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	src := mkMarket(domain.VenuePolymarket, "p1", "Will the Lakers beat Celtics tonight?", base)
	cand := mkMarket(domain.VenueBetfair, "b1", "Los Angeles Lakers vs Boston Celtics", base)

	idx := NewCandidateIndex([]domain.Market{cand}, 24*time.Hour)
	matcher := &stubMatcher{result: domain.MatchResult{Matched: false}}
	r := NewResolver(NewEntitySet(), newMemCache(), matcher, DefaultConfig(), testLogger())

	_, ok := r.Resolve(context.Background(), src, idx)
	assert.False(t, ok)
	_, ok = r.Resolve(context.Background(), src, idx)
	assert.False(t, ok)
	assert.Equal(t, 1, matcher.calls, "cached negative must suppress repeat matcher calls")
}

func TestResolvePriceConsistencyGuard(t *testing.T) {
	base := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	// 0.80 vs 1/4.0 = 0.25: divergence 0.55, far past the 0.20 ceiling.
	src := priced(mkMarket(domain.VenuePolymarket, "p1", "Will the Lakers beat Celtics tonight?", base), 0.80, 0)
	cand := priced(mkMarket(domain.VenueBetfair, "b1", "Los Angeles Lakers vs Boston Celtics", base), 0, 4.0)

	idx := NewCandidateIndex([]domain.Market{cand}, 24*time.Hour)
	matcher := &stubMatcher{result: domain.MatchResult{Matched: true, MarketID: "b1", Confidence: 0.95}}
	r := NewResolver(NewEntitySet(), newMemCache(), matcher, DefaultConfig(), testLogger())

	_, ok := r.Resolve(context.Background(), src, idx)
	assert.False(t, ok, "textual confidence must not override price divergence")
}

func TestResolveMatcherFailureDegrades(t *testing.T) {
	base := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	src := mkMarket(domain.VenuePolymarket, "p1", "Will the Lakers beat Celtics tonight?", base)
	cand := mkMarket(domain.VenueBetfair, "b1", "Los Angeles Lakers vs Boston Celtics", base)

	idx := NewCandidateIndex([]domain.Market{cand}, 24*time.Hour)
	matcher := &stubMatcher{err: context.DeadlineExceeded}
	r := NewResolver(NewEntitySet(), newMemCache(), matcher, DefaultConfig(), testLogger())

	_, ok := r.Resolve(context.Background(), src, idx)
	assert.False(t, ok, "matcher failure is a miss, not an error")
}

func TestResolveConfidenceFloorPerPair(t *testing.T) {
	base := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	src := mkMarket(domain.VenuePolymarket, "p1", "Will the Lakers beat Celtics tonight?", base)
	cand := mkMarket(domain.VenueBetfair, "b1", "Los Angeles Lakers vs Boston Celtics", base)

	idx := NewCandidateIndex([]domain.Market{cand}, 24*time.Hour)
	cfg := DefaultConfig()
	cfg.MinConfidence = map[string]float64{"polymarket:betfair": 0.97}
	matcher := &stubMatcher{result: domain.MatchResult{Matched: true, MarketID: "b1", Confidence: 0.9}}
	r := NewResolver(NewEntitySet(), newMemCache(), matcher, cfg, testLogger())

	_, ok := r.Resolve(context.Background(), src, idx)
	assert.False(t, ok)
}
