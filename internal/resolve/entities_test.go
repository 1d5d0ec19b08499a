package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareEntitiesQualifierGuard(t *testing.T) {
	es := NewEntitySet()

	assert.Equal(t, entityCompatible,
		es.CompareEntities("Drake vs Illinois", "Illinois vs Drake"))

	assert.Equal(t, entityAmbiguous,
		es.CompareEntities("Drake vs Illinois", "Illinois State vs Drake"),
		"a qualifier on one side only must block the match")

	assert.Equal(t, entityAmbiguous,
		es.CompareEntities("Manchester United vs Chelsea", "Manchester City vs Chelsea"))

	assert.Equal(t, entityCompatible,
		es.CompareEntities("Manchester United vs Chelsea", "Manchester United v Chelsea"))
}

func TestCompareEntitiesNoOverlap(t *testing.T) {
	es := NewEntitySet()
	assert.Equal(t, entityNoOverlap,
		es.CompareEntities("Lakers vs Celtics", "Arsenal vs Spurs"))
}

func TestCompareEntitiesNoiseStripped(t *testing.T) {
	es := NewEntitySet()
	assert.Equal(t, entityCompatible,
		es.CompareEntities("Will Team A win?", "Team A vs Team B Match Odds"))
}

func TestAddAliasCanonicalizes(t *testing.T) {
	es := NewEntitySet()
	assert.True(t, es.AddAlias("Man Utd", "Manchester United"))

	toks := es.Tokens("Man Utd vs Chelsea")
	assert.Contains(t, toks, "manchester")
	assert.Contains(t, toks, "united")
}

func TestAddAliasRefusesConfusingTerms(t *testing.T) {
	es := NewEntitySet()
	assert.False(t, es.AddAlias("United", "Manchester United"))
	assert.False(t, es.AddAlias("City", "Manchester City"))
	assert.False(t, es.AddAlias("Real", "Real Madrid"))
}

func TestLearnFromSingleTokenDifference(t *testing.T) {
	es := NewEntitySet()
	assert.True(t, es.LearnFrom("Bayern Munich vs Borussia Dortmund", "Bayern Munchen vs Borussia Dortmund"))

	// The learned alias makes the two renderings token-identical.
	assert.Equal(t,
		es.Tokens("Bayern Munchen vs Borussia Dortmund"),
		es.Tokens("Bayern Munich vs Borussia Dortmund"))
}

func TestLearnFromRefusesAmbiguousPairings(t *testing.T) {
	es := NewEntitySet()

	assert.False(t, es.LearnFrom("Lakers vs Celtics", "Arsenal vs Spurs"),
		"no shared entity token, nothing to anchor the alias")
	assert.False(t, es.LearnFrom("Jannik Sinner vs Carlos Alcaraz", "Sinner, J. vs Alcaraz, C."),
		"more than one differing token per side is ambiguous")
	assert.False(t, es.LearnFrom("Drake vs Illinois Tech", "Drake vs Illinois State"),
		"qualifier tokens may never be learned as aliases")
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "atletico madrid", normalizeTitle("Atlético Madrid"))
	assert.Equal(t, "st germain", normalizeTitle("  St.  Germain "))
}
