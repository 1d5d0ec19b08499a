package redis

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oddsmesh/crossarb/internal/domain"
	"github.com/oddsmesh/crossarb/internal/semantic"
)

// SemanticCache memoizes match decisions in two tiers: an exact hash on the
// normalized query plus candidate set, and an embedding-similarity tier over
// the query alone. The cache is advisory: every failure path is a miss, and
// a missing embedding provider silently degrades it to exact-only.
//
// Key schema:
//
//	match:exact:{md5}   - JSON MatchPayload, TTL-bound
//	match:embed:{md5}   - JSON embedEntry, TTL-bound
//	match:embed:index   - set of embed keys, scanned on tier-2 lookups
type SemanticCache struct {
	rdb       *redis.Client
	embedder  domain.EmbeddingProvider // nil disables the embedding tier
	threshold float64
	maxScan   int64
	logger    *slog.Logger
}

var _ domain.SemanticCache = (*SemanticCache)(nil)

const embedIndexKey = "match:embed:index"

type embedEntry struct {
	Embedding []float64           `json:"embedding"`
	Payload   domain.MatchPayload `json:"payload"`
}

func NewSemanticCache(c *Client, embedder domain.EmbeddingProvider, threshold float64, logger *slog.Logger) *SemanticCache {
	if threshold <= 0 {
		threshold = 0.90
	}
	return &SemanticCache{
		rdb:       c.Underlying(),
		embedder:  embedder,
		threshold: threshold,
		maxScan:   512,
		logger:    logger.With(slog.String("component", "semantic_cache")),
	}
}

// Get looks up a prior decision, exact tier first. Never errors; any
// backend trouble is logged at debug and reported as a miss.
func (sc *SemanticCache) Get(ctx context.Context, sourceTitle string, candidateSet []string) (domain.MatchPayload, bool) {
	raw, err := sc.rdb.Get(ctx, exactKey(sourceTitle, candidateSet)).Bytes()
	if err == nil {
		var payload domain.MatchPayload
		if json.Unmarshal(raw, &payload) == nil {
			return payload, true
		}
	} else if err != redis.Nil {
		sc.logger.Debug("exact tier unavailable", slog.Any("error", err))
		return domain.MatchPayload{}, false
	}

	return sc.embedLookup(ctx, sourceTitle)
}

// Set stores a decision in both tiers. Write failures are logged and
// swallowed; losing a cache entry costs a future matcher call, nothing more.
func (sc *SemanticCache) Set(ctx context.Context, sourceTitle string, candidateSet []string, payload domain.MatchPayload, ttl time.Duration) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := sc.rdb.Set(ctx, exactKey(sourceTitle, candidateSet), raw, ttl).Err(); err != nil {
		sc.logger.Debug("exact tier write failed", slog.Any("error", err))
	}
	sc.embedStore(ctx, sourceTitle, payload, ttl)
}

func (sc *SemanticCache) embedLookup(ctx context.Context, sourceTitle string) (domain.MatchPayload, bool) {
	if sc.embedder == nil {
		return domain.MatchPayload{}, false
	}
	query, err := sc.embedder.Embed(ctx, normalizeQuery(sourceTitle))
	if err != nil {
		sc.logger.Debug("embedding backend unavailable, exact-only", slog.Any("error", err))
		return domain.MatchPayload{}, false
	}

	keys, err := sc.rdb.SRandMemberN(ctx, embedIndexKey, sc.maxScan).Result()
	if err != nil || len(keys) == 0 {
		return domain.MatchPayload{}, false
	}
	values, err := sc.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return domain.MatchPayload{}, false
	}

	var best domain.MatchPayload
	bestSim := sc.threshold
	found := false
	var expired []string
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Entry expired out from under the index.
			expired = append(expired, keys[i])
			continue
		}
		var entry embedEntry
		if json.Unmarshal([]byte(s), &entry) != nil {
			continue
		}
		if sim := semantic.Cosine(query, entry.Embedding); sim >= bestSim {
			bestSim = sim
			best = entry.Payload
			found = true
		}
	}
	if len(expired) > 0 {
		sc.rdb.SRem(ctx, embedIndexKey, toAny(expired)...)
	}
	return best, found
}

func (sc *SemanticCache) embedStore(ctx context.Context, sourceTitle string, payload domain.MatchPayload, ttl time.Duration) {
	if sc.embedder == nil {
		return
	}
	vec, err := sc.embedder.Embed(ctx, normalizeQuery(sourceTitle))
	if err != nil {
		return
	}
	raw, err := json.Marshal(embedEntry{Embedding: vec, Payload: payload})
	if err != nil {
		return
	}
	key := "match:embed:" + hashOf(normalizeQuery(sourceTitle))
	pipe := sc.rdb.TxPipeline()
	pipe.Set(ctx, key, raw, ttl)
	pipe.SAdd(ctx, embedIndexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		sc.logger.Debug("embed tier write failed", slog.Any("error", err))
	}
}

// VolatilityTTL scales a price-derived cache entry's lifetime: calm markets
// keep decisions near maxTTL, volatile ones decay toward minTTL.
func VolatilityTTL(minTTL, maxTTL time.Duration, volatility float64) time.Duration {
	if volatility < 0 {
		volatility = 0
	}
	if volatility > 1 {
		volatility = 1
	}
	if maxTTL < minTTL {
		maxTTL = minTTL
	}
	return maxTTL - time.Duration(float64(maxTTL-minTTL)*volatility)
}

func normalizeQuery(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func exactKey(sourceTitle string, candidateSet []string) string {
	sorted := append([]string(nil), candidateSet...)
	sort.Strings(sorted)
	var b strings.Builder
	b.WriteString(normalizeQuery(sourceTitle))
	for _, c := range sorted {
		b.WriteString("|")
		b.WriteString(normalizeQuery(c))
	}
	return "match:exact:" + hashOf(b.String())
}

func hashOf(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
