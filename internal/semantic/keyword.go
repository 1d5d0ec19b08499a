package semantic

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/oddsmesh/crossarb/internal/domain"
)

// KeywordMatcher is the zero-dependency SemanticMatcher: token-set text
// similarity blended with a start-time alignment bonus. It keeps the
// pipeline functional when no LLM or embedding backend is configured, at
// lower recall.
type KeywordMatcher struct {
	minScore float64 // 0..100 acceptance floor
	logger   *slog.Logger
}

var _ domain.SemanticMatcher = (*KeywordMatcher)(nil)

func NewKeywordMatcher(minScore float64, logger *slog.Logger) *KeywordMatcher {
	if minScore <= 0 {
		minScore = 85
	}
	return &KeywordMatcher{
		minScore: minScore,
		logger:   logger.With(slog.String("component", "keyword_matcher")),
	}
}

// Match scores every candidate by token-set similarity and returns the
// best one when it clears the floor. Candidates arrive pre-filtered by date
// and structure, so text similarity is the primary signal; equal scores
// break toward the candidate whose start time sits closest to the source's.
func (m *KeywordMatcher) Match(ctx context.Context, sourceTitle string, sourceStart time.Time, candidates []domain.MatchCandidate) (domain.MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.MatchResult{}, err
	}

	var best domain.MatchCandidate
	bestScore := -1.0
	var bestDelta time.Duration
	for _, cand := range candidates {
		score := TokenSetRatio(sourceTitle, cand.Title)
		delta := startDelta(sourceStart, cand.StartTime)
		switch {
		case score > bestScore:
			bestScore = score
			best = cand
			bestDelta = delta
		case score == bestScore && delta < bestDelta:
			best = cand
			bestDelta = delta
		}
	}
	if bestScore < m.minScore {
		return domain.MatchResult{Matched: false, Reason: "below similarity floor"}, nil
	}

	m.logger.Debug("keyword match",
		slog.String("source", sourceTitle),
		slog.String("candidate", best.Title),
		slog.Float64("score", bestScore))

	return domain.MatchResult{
		Matched:    true,
		MarketID:   best.MarketID,
		Confidence: math.Min(bestScore/100, 1),
		Reason:     "token-set similarity",
	}, nil
}

// startDelta is the absolute gap between two start times. Missing times
// compare as the worst possible delta so a dated candidate wins a tie
// against an undated one.
func startDelta(a, b time.Time) time.Duration {
	if a.IsZero() || b.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

// hybridScore weighs text 0.7 and date alignment 0.3. Date scores 100 on a
// same-day match, 50 when either side is undated, 0 on a mismatch.
func hybridScore(sourceTitle string, sourceStart time.Time, cand domain.MatchCandidate) float64 {
	text := TokenSetRatio(sourceTitle, cand.Title)

	dateScore := 50.0
	if !sourceStart.IsZero() && !cand.StartTime.IsZero() {
		if sourceStart.UTC().Format("2006-01-02") == cand.StartTime.UTC().Format("2006-01-02") {
			dateScore = 100
		} else {
			dateScore = 0
		}
	}
	return text*0.7 + dateScore*0.3
}

// HybridScore is the shared edge weight used by the graph engine: the same
// 0.7/0.3 blend, with the source's start time supplied.
func HybridScore(sourceTitle string, sourceStart time.Time, candTitle string, candStart time.Time) float64 {
	return hybridScore(sourceTitle, sourceStart, domain.MatchCandidate{Title: candTitle, StartTime: candStart})
}
