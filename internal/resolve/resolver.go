package resolve

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oddsmesh/crossarb/internal/domain"
)

// Config tunes the resolver's acceptance gates.
type Config struct {
	// MinConfidence maps a venue pair ("polymarket:betfair") to the floor a
	// mapping must clear before it may feed the validator.
	MinConfidence        map[string]float64
	DefaultMinConfidence float64
	// MaxDivergence is the price-consistency guard: implied probabilities
	// further apart than this mark a wrong-market match however good the
	// text similarity looked.
	MaxDivergence float64
	// MappingTTL controls how long a positive decision stays cached.
	MappingTTL time.Duration
	// NegativeTTL controls how long a rejected pairing stays cached so the
	// matcher is not re-asked every cycle.
	NegativeTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultMinConfidence: 0.75,
		MaxDivergence:        0.20,
		MappingTTL:           24 * time.Hour,
		NegativeTTL:          time.Hour,
	}
}

func (c Config) minConfidence(pair string) float64 {
	if v, ok := c.MinConfidence[pair]; ok {
		return v
	}
	return c.DefaultMinConfidence
}

// Resolver runs the staged matching pipeline for one source market against
// a candidate index: structural filter, static entity match, cache lookup,
// then the semantic matcher as last resort. A miss at any gate is the
// expected majority outcome and is reported as (zero, false), never as an
// error.
type Resolver struct {
	entities *EntitySet
	cache    domain.SemanticCache
	matcher  domain.SemanticMatcher
	cfg      Config
	logger   *slog.Logger
}

func NewResolver(entities *EntitySet, cache domain.SemanticCache, matcher domain.SemanticMatcher, cfg Config, logger *slog.Logger) *Resolver {
	return &Resolver{
		entities: entities,
		cache:    cache,
		matcher:  matcher,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "resolver")),
	}
}

// Resolve maps a source market to its counterpart among the index's
// candidates. The boolean result is false for every rejection path: empty
// candidate set, fingerprint mismatch, ambiguity guard, price divergence,
// or confidence below the venue-pair floor.
func (r *Resolver) Resolve(ctx context.Context, src domain.Market, idx *CandidateIndex) (domain.Mapping, bool) {
	candidates := idx.Lookup(src)
	if len(candidates) == 0 {
		r.logger.Debug("no candidates in window", slog.String("market", src.ExternalID))
		return domain.Mapping{}, false
	}

	srcFP := ParseFingerprint(src.Title)
	structural := candidates[:0:0]
	for _, cand := range candidates {
		if !srcFP.CompatibleWith(ParseFingerprint(cand.Title)) {
			continue
		}
		switch r.entities.CompareEntities(src.Title, cand.Title) {
		case entityCompatible:
			structural = append(structural, cand)
		case entityAmbiguous:
			r.logger.Debug("ambiguity guard trip",
				slog.String("source", src.Title),
				slog.String("candidate", cand.Title))
		}
	}
	if len(structural) == 0 {
		return domain.Mapping{}, false
	}

	// Static pass: exact entity-token agreement needs no semantic call.
	if m, ok := r.staticPass(src, structural); ok {
		return m, true
	}

	candSet := make([]string, len(structural))
	byID := make(map[string]domain.Market, len(structural))
	for i, cand := range structural {
		candSet[i] = cand.Title
		byID[cand.ExternalID] = cand
	}

	if payload, hit := r.cache.Get(ctx, src.Title, candSet); hit {
		if !payload.Matched {
			return domain.Mapping{}, false
		}
		if cand, ok := byID[payload.MarketID]; ok {
			return r.emit(src, cand, payload.Confidence, domain.SourceCache)
		}
	}

	return r.semanticPass(ctx, src, structural, candSet, byID)
}

// staticPass accepts a candidate whose canonicalized entity tokens equal the
// source's exactly. Ties break toward the smaller start-time delta.
func (r *Resolver) staticPass(src domain.Market, candidates []domain.Market) (domain.Mapping, bool) {
	const staticConfidence = 0.95

	srcTokens := r.entities.Tokens(src.Title)
	var best *domain.Market
	var bestDelta time.Duration
	for i := range candidates {
		cand := candidates[i]
		if !tokenSetsEqual(srcTokens, r.entities.Tokens(cand.Title)) {
			continue
		}
		delta := absDelta(src.StartTime, cand.StartTime)
		if best == nil || delta < bestDelta {
			best = &candidates[i]
			bestDelta = delta
		}
	}
	if best == nil {
		return domain.Mapping{}, false
	}
	if !r.pricesConsistent(src, *best) {
		r.logger.Debug("price consistency reject on static match",
			slog.String("source", src.Title),
			slog.String("candidate", best.Title))
		return domain.Mapping{}, false
	}
	return r.emit(src, *best, staticConfidence, domain.SourceStatic)
}

func (r *Resolver) semanticPass(ctx context.Context, src domain.Market, structural []domain.Market, candSet []string, byID map[string]domain.Market) (domain.Mapping, bool) {
	if r.matcher == nil {
		return domain.Mapping{}, false
	}

	mcs := make([]domain.MatchCandidate, len(structural))
	for i, cand := range structural {
		mcs[i] = domain.MatchCandidate{
			MarketID:  cand.ExternalID,
			Title:     cand.Title,
			StartTime: cand.StartTime,
		}
	}

	result, err := r.matcher.Match(ctx, src.Title, src.StartTime, mcs)
	if err != nil {
		// The matcher is an optimization with a cost, not a correctness
		// dependency. Degrade to the static/cache path already tried.
		r.logger.Warn("semantic matcher unavailable", slog.Any("error", err))
		return domain.Mapping{}, false
	}

	pair := ""
	if len(structural) > 0 {
		pair = domain.VenuePair(src.Venue, structural[0].Venue)
	}
	if !result.Matched || result.Confidence < r.cfg.minConfidence(pair) {
		r.cache.Set(ctx, src.Title, candSet, domain.MatchPayload{
			Matched:  false,
			CachedAt: time.Now().UTC(),
		}, r.cfg.NegativeTTL)
		return domain.Mapping{}, false
	}

	cand, ok := byID[result.MarketID]
	if !ok {
		return domain.Mapping{}, false
	}
	if !r.pricesConsistent(src, cand) {
		r.logger.Debug("price consistency reject on semantic match",
			slog.String("source", src.Title),
			slog.String("candidate", cand.Title),
			slog.Float64("confidence", result.Confidence))
		return domain.Mapping{}, false
	}

	r.cache.Set(ctx, src.Title, candSet, domain.MatchPayload{
		Matched:    true,
		MarketID:   cand.ExternalID,
		Confidence: result.Confidence,
		CachedAt:   time.Now().UTC(),
	}, r.cfg.MappingTTL)

	return r.emit(src, cand, result.Confidence, domain.SourceLLM)
}

func (r *Resolver) emit(src, cand domain.Market, confidence float64, source domain.MappingSource) (domain.Mapping, bool) {
	pair := domain.VenuePair(src.Venue, cand.Venue)
	if confidence < r.cfg.minConfidence(pair) {
		return domain.Mapping{}, false
	}
	now := time.Now().UTC()
	return domain.Mapping{
		ID:           uuid.NewString(),
		SourceVenue:  src.Venue,
		SourceID:     src.ExternalID,
		TargetVenue:  cand.Venue,
		TargetID:     cand.ExternalID,
		SourceTitle:  src.Title,
		TargetTitle:  cand.Title,
		Confidence:   confidence,
		Source:       source,
		CreatedAt:    now,
		LastVerified: now,
	}, true
}

// pricesConsistent applies the divergence guard when both sides have a
// usable quote. Missing quotes soft-pass; the validator rechecks against
// live prices before any capital moves.
func (r *Resolver) pricesConsistent(a, b domain.Market) bool {
	pa := a.ImpliedProbability()
	pb := b.ImpliedProbability()
	if pa == 0 || pb == 0 {
		return true
	}
	diff := pa - pb
	if diff < 0 {
		diff = -diff
	}
	return diff <= r.cfg.MaxDivergence
}

func tokenSetsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for tok := range a {
		if _, ok := b[tok]; !ok {
			return false
		}
	}
	return true
}

func absDelta(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
