package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oddsmesh/crossarb/internal/domain"
)

const snapshotTTL = 5 * time.Minute

// SnapshotCache holds the latest market snapshot per venue market, JSON-
// serialized with a short TTL, plus a token-to-market reverse index so
// gateways can resolve a fill's token back to the market it belongs to.
//
// Key schema:
//
//	snap:{venue}:{externalID}  - hash with field "data" containing JSON
//	snap:token:{tokenID}       - string "{venue}:{externalID}"
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying(), ttl: snapshotTTL}
}

func snapKey(venue domain.Venue, externalID string) string {
	return fmt.Sprintf("snap:%s:%s", venue, externalID)
}
func snapTokenKey(tok string) string { return "snap:token:" + tok }

// Set stores a market snapshot and indexes each of its outcome tokens.
func (sc *SnapshotCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s/%s: %w", market.Venue, market.ExternalID, err)
	}

	key := snapKey(market.Venue, market.ExternalID)

	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, sc.ttl)
	for _, tok := range market.Tokens {
		if tok.TokenID == "" {
			continue
		}
		pipe.Set(ctx, snapTokenKey(tok.TokenID), string(market.Venue)+":"+market.ExternalID, sc.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot %s/%s: %w", market.Venue, market.ExternalID, err)
	}
	return nil
}

// SetAll stores a batch of snapshots, stopping on the first failure.
func (sc *SnapshotCache) SetAll(ctx context.Context, markets []domain.Market) error {
	for _, m := range markets {
		if err := sc.Set(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a market snapshot. Returns domain.ErrNotFound when the
// entry is missing or has expired.
func (sc *SnapshotCache) Get(ctx context.Context, venue domain.Venue, externalID string) (domain.Market, error) {
	data, err := sc.rdb.HGet(ctx, snapKey(venue, externalID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get snapshot %s/%s: %w", venue, externalID, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal snapshot %s/%s: %w", venue, externalID, err)
	}
	return market, nil
}

// GetByToken looks up a snapshot by one of its outcome token IDs.
func (sc *SnapshotCache) GetByToken(ctx context.Context, tokenID string) (domain.Market, error) {
	ref, err := sc.rdb.Get(ctx, snapTokenKey(tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get snapshot by token %s: %w", tokenID, err)
	}

	venue, externalID, ok := splitRef(ref)
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return sc.Get(ctx, venue, externalID)
}

// Invalidate removes a snapshot and its token index entries.
func (sc *SnapshotCache) Invalidate(ctx context.Context, venue domain.Venue, externalID string) error {
	market, err := sc.Get(ctx, venue, externalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	pipe := sc.rdb.TxPipeline()
	pipe.Del(ctx, snapKey(venue, externalID))
	for _, tok := range market.Tokens {
		if tok.TokenID != "" {
			pipe.Del(ctx, snapTokenKey(tok.TokenID))
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate snapshot %s/%s: %w", venue, externalID, err)
	}
	return nil
}

func splitRef(ref string) (domain.Venue, string, bool) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == ':' {
			return domain.Venue(ref[:i]), ref[i+1:], true
		}
	}
	return "", "", false
}
