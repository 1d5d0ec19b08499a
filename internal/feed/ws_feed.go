// Package feed supplies per-venue market snapshots to the scanner, either by
// streaming over WebSocket or by polling REST endpoints. Both feeds stamp
// FetchedAt so downstream consumers can exclude stale data instead of
// trading on a last known good price.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oddsmesh/crossarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// Sink receives every accepted snapshot batch, typically the Redis snapshot
// cache. Optional.
type Sink interface {
	SetAll(ctx context.Context, markets []domain.Market) error
}

// wsEnvelope is the venue-neutral frame streamed by a venue's market
// channel. Heartbeat frames carry no markets and only refresh liveness.
type wsEnvelope struct {
	Type    string     `json:"type"`
	Markets []wsMarket `json:"markets,omitempty"`
}

type wsMarket struct {
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	StartTime   time.Time `json:"start_time"`
	Region      string    `json:"region,omitempty"`
	Competition string    `json:"competition,omitempty"`
	TypeCode    string    `json:"type_code,omitempty"`
	Tokens      []wsToken `json:"tokens"`
}

type wsToken struct {
	TokenID      string  `json:"token_id"`
	Outcome      string  `json:"outcome"`
	Price        float64 `json:"price,omitempty"`
	DecimalOdds  float64 `json:"decimal_odds,omitempty"`
	LiquidityUSD float64 `json:"liquidity_usd"`
}

// WSFeed implements domain.MarketFeed over a streaming WebSocket. It keeps
// the latest snapshot per market and reconnects with exponential backoff on
// disconnect. Markets never blocks on the connection; it serves whatever is
// fresh in the local table.
type WSFeed struct {
	venue  domain.Venue
	wsURL  string
	maxAge time.Duration
	sink   Sink
	logger *slog.Logger

	mu      sync.RWMutex
	markets map[string]domain.Market

	closeOnce sync.Once
	done      chan struct{}
}

var _ domain.MarketFeed = (*WSFeed)(nil)

// NewWSFeed creates a streaming feed for one venue. maxAge bounds how old a
// snapshot may be before Markets drops it; sink may be nil.
func NewWSFeed(venue domain.Venue, wsURL string, maxAge time.Duration, sink Sink, logger *slog.Logger) *WSFeed {
	if maxAge <= 0 {
		maxAge = 2 * time.Minute
	}
	return &WSFeed{
		venue:   venue,
		wsURL:   wsURL,
		maxAge:  maxAge,
		sink:    sink,
		logger:  logger.With(slog.String("component", "ws_feed"), slog.String("venue", string(venue))),
		markets: make(map[string]domain.Market),
		done:    make(chan struct{}),
	}
}

// Venue returns the venue this feed serves.
func (f *WSFeed) Venue() domain.Venue { return f.venue }

// Markets returns the snapshots younger than maxAge. An empty table after a
// long disconnect yields ErrStaleFeed so the scanner skips the venue rather
// than treating silence as an empty market list.
func (f *WSFeed) Markets(ctx context.Context) ([]domain.Market, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	cutoff := time.Now().Add(-f.maxAge)
	out := make([]domain.Market, 0, len(f.markets))
	for _, m := range f.markets {
		if m.FetchedAt.After(cutoff) {
			out = append(out, m)
		}
	}
	if len(out) == 0 && len(f.markets) > 0 {
		return nil, fmt.Errorf("feed: %s websocket: %w", f.venue, domain.ErrStaleFeed)
	}
	return out, nil
}

// Run connects and consumes frames until ctx is cancelled, reconnecting
// with exponential backoff on disconnect.
func (f *WSFeed) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		start := time.Now()
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) > time.Minute {
			delay = reconnectDelay
		}
		f.logger.Warn("websocket disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *WSFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go f.pingLoop(ctx, conn)
	f.logger.Info("websocket connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		var env wsEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			f.logger.Warn("dropping malformed frame", slog.Any("error", err))
			continue
		}
		if env.Type == "heartbeat" {
			continue
		}
		f.apply(ctx, env.Markets)
	}
}

func (f *WSFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *WSFeed) apply(ctx context.Context, updates []wsMarket) {
	if len(updates) == 0 {
		return
	}
	now := time.Now().UTC()
	batch := make([]domain.Market, 0, len(updates))

	f.mu.Lock()
	for _, u := range updates {
		m := toMarket(f.venue, u, now)
		f.markets[m.ExternalID] = m
		batch = append(batch, m)
	}
	f.mu.Unlock()

	if f.sink != nil {
		if err := f.sink.SetAll(ctx, batch); err != nil {
			f.logger.Warn("snapshot sink write failed", slog.Any("error", err))
		}
	}
}

func toMarket(venue domain.Venue, u wsMarket, fetched time.Time) domain.Market {
	tokens := make([]domain.OutcomeToken, 0, len(u.Tokens))
	for _, t := range u.Tokens {
		tokens = append(tokens, domain.OutcomeToken{
			TokenID:      t.TokenID,
			OutcomeLabel: t.Outcome,
			Price:        t.Price,
			DecimalOdds:  t.DecimalOdds,
			LiquidityUSD: t.LiquidityUSD,
		})
	}
	return domain.Market{
		Venue:          venue,
		ExternalID:     u.ExternalID,
		Title:          u.Title,
		StartTime:      u.StartTime,
		Tokens:         tokens,
		MarketTypeCode: u.TypeCode,
		CompetitionTag: u.Competition,
		Region:         u.Region,
		FetchedAt:      fetched,
	}
}

// Close stops the feed.
func (f *WSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
