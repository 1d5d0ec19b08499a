package semantic

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmesh/crossarb/internal/domain"
)

func TestTokenSetRatio(t *testing.T) {
	assert.Equal(t, 100.0, TokenSetRatio("Lakers vs Celtics", "Celtics vs Lakers"),
		"word order must not matter")
	assert.Equal(t, 100.0, TokenSetRatio("Lakers", "Lakers vs Celtics"),
		"a full token subset scores 100")
	assert.Greater(t, TokenSetRatio("Manchester United vs Chelsea", "Man United v Chelsea"), 60.0)
	assert.Less(t, TokenSetRatio("Lakers vs Celtics", "Arsenal vs Spurs"), 40.0)
	assert.Equal(t, 0.0, TokenSetRatio("", "anything"))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float64{1, 2}, []float64{1, 2, 3}), "dimension mismatch scores zero")
	assert.Equal(t, 0.0, Cosine(nil, nil))
	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}))
}

func TestKeywordMatcherPicksBest(t *testing.T) {
	m := NewKeywordMatcher(70, slog.New(slog.DiscardHandler))
	res, err := m.Match(context.Background(), "Will the Lakers beat the Celtics?", time.Time{}, []domain.MatchCandidate{
		{MarketID: "a", Title: "Arsenal vs Spurs"},
		{MarketID: "b", Title: "Lakers vs Celtics"},
	})
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, "b", res.MarketID)
	assert.Greater(t, res.Confidence, 0.7)
}

func TestKeywordMatcherBelowFloorIsMiss(t *testing.T) {
	m := NewKeywordMatcher(85, slog.New(slog.DiscardHandler))
	res, err := m.Match(context.Background(), "Lakers vs Celtics", time.Time{}, []domain.MatchCandidate{
		{MarketID: "a", Title: "Arsenal vs Spurs"},
	})
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestKeywordMatcherTieBreaksOnStartTime(t *testing.T) {
	m := NewKeywordMatcher(70, slog.New(slog.DiscardHandler))
	tip := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

	// Both candidates score an identical 100; the one starting closest to
	// the source must win regardless of slice order.
	res, err := m.Match(context.Background(), "Lakers vs Celtics", tip, []domain.MatchCandidate{
		{MarketID: "far", Title: "Celtics vs Lakers", StartTime: tip.Add(20 * time.Hour)},
		{MarketID: "near", Title: "Celtics vs Lakers", StartTime: tip.Add(30 * time.Minute)},
	})
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, "near", res.MarketID)
}

func TestKeywordMatcherTiePrefersDatedCandidate(t *testing.T) {
	m := NewKeywordMatcher(70, slog.New(slog.DiscardHandler))
	tip := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

	res, err := m.Match(context.Background(), "Lakers vs Celtics", tip, []domain.MatchCandidate{
		{MarketID: "undated", Title: "Celtics vs Lakers"},
		{MarketID: "dated", Title: "Celtics vs Lakers", StartTime: tip.Add(2 * time.Hour)},
	})
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, "dated", res.MarketID)
}

func TestHybridScoreDateAlignment(t *testing.T) {
	day := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	sameDay := HybridScore("Lakers vs Celtics", day, "Lakers vs Celtics", day.Add(3*time.Hour))
	otherDay := HybridScore("Lakers vs Celtics", day, "Lakers vs Celtics", day.AddDate(0, 0, 3))
	undated := HybridScore("Lakers vs Celtics", day, "Lakers vs Celtics", time.Time{})

	assert.InDelta(t, 100.0, sameDay, 1e-9)
	assert.InDelta(t, 70.0, otherDay, 1e-9, "a date mismatch forfeits the 30 point date weight")
	assert.InDelta(t, 85.0, undated, 1e-9, "missing dates are neutral")
}
