package domain

import (
	"context"
	"time"
)

// MarketFeed supplies market snapshots for one venue. Implementations may be
// REST pollers or websocket caches; either way Markets returns only data
// fresh enough to trade on.
type MarketFeed interface {
	Venue() Venue
	Markets(ctx context.Context) ([]Market, error)
}

// OrderGateway submits orders to one venue. SubmitOrder honors the request's
// order type; for fill-or-kill the returned FillResult is all-or-nothing.
type OrderGateway interface {
	Venue() Venue
	SubmitOrder(ctx context.Context, req OrderRequest) (FillResult, error)
}

// BalanceOracle reports the tradable balance backing the engine.
type BalanceOracle interface {
	Balance(ctx context.Context) (float64, error)
}

// MatchCandidate is one structurally-compatible market offered to a
// semantic matcher for validation.
type MatchCandidate struct {
	MarketID  string
	Title     string
	StartTime time.Time
}

// MatchResult is a semantic matcher's verdict. Matched false with a nil
// error is the normal no-match outcome, not a failure.
type MatchResult struct {
	Matched    bool
	MarketID   string
	Confidence float64
	Reason     string
}

// SemanticMatcher decides whether a source title refers to the same event as
// one of the candidates. Implementations range from keyword similarity to
// LLM calls; the resolver treats them uniformly. The source start time lets
// implementations break score ties toward the closest-scheduled candidate.
type SemanticMatcher interface {
	Match(ctx context.Context, sourceTitle string, sourceStart time.Time, candidates []MatchCandidate) (MatchResult, error)
}

// EmbeddingProvider turns a title into a vector for the cache's semantic
// tier. Optional: a nil provider degrades the cache to exact-hash only.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
