package domain

import (
	"context"
	"time"
)

// MatchPayload is the cached product of a resolution decision. Negative
// results are cached too, so repeated misses do not re-trigger expensive
// semantic calls.
type MatchPayload struct {
	Matched    bool
	MarketID   string
	Confidence float64
	CachedAt   time.Time
}

// SemanticCache memoizes resolution decisions. Get returns (payload, true)
// on a hit in either the exact-hash tier or the embedding tier; a miss is
// (zero, false), never an error, because the cache is advisory.
type SemanticCache interface {
	Get(ctx context.Context, sourceTitle string, candidateSet []string) (MatchPayload, bool)
	Set(ctx context.Context, sourceTitle string, candidateSet []string, payload MatchPayload, ttl time.Duration)
}

// LockManager serializes execution per venue pair across engine instances.
// Unlock must be a no-op when the token no longer owns the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Release(ctx context.Context, key, token string) error
}
