package graph

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmesh/crossarb/internal/domain"
)

func testEngine() *Engine {
	return NewEngine(DefaultConfig(), slog.New(slog.DiscardHandler))
}

func market(venue domain.Venue, id, title string, start time.Time) domain.Market {
	return domain.Market{Venue: venue, ExternalID: id, Title: title, StartTime: start}
}

func TestGenerateAliases(t *testing.T) {
	aliases := GenerateAliases("Jannik Sinner")
	assert.Contains(t, aliases, "j. sinner")
	assert.Contains(t, aliases, "sinner, j.")
	assert.Contains(t, aliases, "j sinner")
	assert.Contains(t, aliases, "sinner")

	assert.Contains(t, GenerateAliases("Man Utd"), "manchester united")
}

func TestIndexTokensSkipsShortTokens(t *testing.T) {
	toks := indexTokens("fc de sinner vs alcaraz")
	assert.ElementsMatch(t, []string{"sinner", "alcaraz"}, toks)
}

func TestResolveClustersRewordedPairs(t *testing.T) {
	day := time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC)
	sources := []domain.Market{
		market(domain.VenuePolymarket, "p1", "Jannik Sinner vs Carlos Alcaraz", day),
		market(domain.VenuePolymarket, "p2", "Novak Djokovic vs Daniil Medvedev", day),
	}
	candidates := []domain.Market{
		market(domain.VenueBetfair, "b1", "Sinner, J. vs Alcaraz, C.", day),
		market(domain.VenueBetfair, "b2", "Djokovic vs Medvedev", day),
		market(domain.VenueBetfair, "b3", "Arsenal vs Chelsea", day),
	}

	suggestions := testEngine().Resolve(sources, candidates)
	require.Len(t, suggestions, 2)

	bySource := make(map[string]domain.MappingSuggestion)
	for _, s := range suggestions {
		bySource[s.SourceID] = s
	}
	require.Contains(t, bySource, "p1")
	require.Contains(t, bySource, "p2")
	assert.Equal(t, "b1", bySource["p1"].TargetID)
	assert.Equal(t, "b2", bySource["p2"].TargetID)

	for _, s := range suggestions {
		assert.Equal(t, domain.SuggestionPending, s.Status, "graph output is never pre-approved")
		assert.GreaterOrEqual(t, s.Score, 60.0)
		assert.Greater(t, s.ClusterConfidence, 0.0)
	}
}

func TestResolveDateMismatchSuppressesEdge(t *testing.T) {
	day := time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC)
	sources := []domain.Market{
		market(domain.VenuePolymarket, "p1", "Jannik Sinner vs Carlos Alcaraz", day),
	}
	candidates := []domain.Market{
		market(domain.VenueBetfair, "b1", "Jannik Sinner vs Carlos Alcaraz", day.AddDate(0, 2, 0)),
	}

	// Identical text scores 70 after the forfeited date weight, which stays
	// under a tightened threshold.
	cfg := DefaultConfig()
	cfg.EdgeThreshold = 75
	engine := NewEngine(cfg, slog.New(slog.DiscardHandler))
	assert.Empty(t, engine.Resolve(sources, candidates))
}

func TestResolveEmptyInputs(t *testing.T) {
	assert.Nil(t, testEngine().Resolve(nil, nil))
	assert.Nil(t, testEngine().Resolve([]domain.Market{market(domain.VenuePolymarket, "p", "X vs Y", time.Now())}, nil))
}
